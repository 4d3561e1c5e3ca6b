package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/events"
	"live-auction/internal/repository"
	"live-auction/internal/repository/sqlstore"
	"live-auction/internal/server"
	"live-auction/services/auctions/handler"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type backend interface {
	repository.AuctionStore
	repository.BidStore
	repository.Diagnoser
}

// testClock lets a test move time while requests are served
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

// newBackend returns a fresh store for the named driver
func newBackend(t *testing.T, driver string) backend {
	t.Helper()
	switch driver {
	case "sqlite":
		s, err := sqlstore.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	default:
		return repository.NewMemoryRepo()
	}
}

// SetupTestRouter wires the full HTTP stack over the given store with an injected clock.
func SetupTestRouter(t *testing.T, driver string, clock *testClock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	repo := newBackend(t, driver)
	hub := events.NewHub()
	service := bidding.NewBiddingService(repo, repo,
		bidding.WithClock(clock.Now),
		bidding.WithPublisher(hub),
	)
	return server.SetupRouter(
		handler.NewAuctionHandler(service, hub),
		handler.NewSystemHandler(repo, ""),
		server.Options{CORSOrigins: []string{"*"}},
	)
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// createAuction posts an auction and returns its id
func createAuction(t *testing.T, router *gin.Engine, body map[string]any) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, "POST", "/auctions", body)
	require.Equal(t, 201, w.Code, w.Body.String())
	return resp["data"].(map[string]any)["id"].(string)
}
