// Package lifecycle derives auction lifecycle state from wall-clock time.
//
// Status is never trusted from storage: every reader calls Status (or Flags)
// with a single now taken once per request.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/models"
)

// Status maps now against the inclusive live window [start, end].
func Status(now, start, end time.Time) models.Status {
	switch {
	case now.Before(start):
		return models.StatusScheduled
	case now.After(end):
		return models.StatusEnded
	default:
		return models.StatusLive
	}
}

// Flags returns the is_live/has_ended pair for one now snapshot.
func Flags(now, start, end time.Time) (isLive, hasEnded bool) {
	s := Status(now, start, end)
	return s == models.StatusLive, s == models.StatusEnded
}

// ParseStatus validates a status filter value. Empty input means no filter.
func ParseStatus(raw string) (*models.Status, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return nil, nil
	}
	s := models.Status(raw)
	switch s {
	case models.StatusScheduled, models.StatusLive, models.StatusEnded:
		return &s, nil
	}
	return nil, fmt.Errorf("%w: %q", biddingerrors.ErrInvalidStatus, raw)
}

// Resolution is the precision every store keeps for auction and bid times.
const Resolution = time.Millisecond

// Normalize converts t to UTC at Resolution, so it round-trips through any store unchanged.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Resolution)
}

// Bounds returns the Resolution-aligned instants floor <= now <= ceil. For a
// stored aligned value v, v > now holds exactly when v > floor, and v >= now
// exactly when v >= ceil.
func Bounds(now time.Time) (floor, ceil time.Time) {
	floor = now.Truncate(Resolution)
	ceil = floor
	if !floor.Equal(now) {
		ceil = floor.Add(Resolution)
	}
	return floor, ceil
}
