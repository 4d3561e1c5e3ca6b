package handler

import (
	"context"
	"net/http"
	"os"

	"live-auction/internal/repository"
	"live-auction/services/auctions/helpers"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

const maxReportedCollections = 10

// SystemHandler serves liveness, diagnostics and schema endpoints
type SystemHandler struct {
	store    repository.Diagnoser
	database string
}

func NewSystemHandler(store repository.Diagnoser, database string) *SystemHandler {
	return &SystemHandler{store: store, database: database}
}

// RootHandler handles GET /
func (h *SystemHandler) RootHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, gin.H{"service": "live-auction", "status": "running"}, "Live Sports Auction API is running")
}

// SchemaHandler handles GET /schema
func (h *SystemHandler) SchemaHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, helpers.Schemas(), "schema retrieved successfully")
}

// DiagnosticsHandler handles GET /test. It always answers 200 and reports store problems in the body.
func (h *SystemHandler) DiagnosticsHandler(c *gin.Context) {
	report := h.diagnose(c.Request.Context())
	utils.JSONResponse(c, http.StatusOK, report, "diagnostics collected")
}

func (h *SystemHandler) diagnose(ctx context.Context) helpers.DiagnosticsResponse {
	report := helpers.DiagnosticsResponse{
		Backend:          "running",
		Driver:           h.store.Driver(),
		Database:         "not available",
		DatabaseURL:      envState("DATABASE_URL"),
		DatabaseName:     envState("DATABASE_NAME"),
		ConnectionStatus: "not connected",
		Collections:      []string{},
	}

	if err := h.store.Ping(ctx); err != nil {
		report.Database = "error: " + truncate(err.Error(), 50)
		utils.Warn("DiagnosticsHandler: store ping failed", map[string]any{"driver": report.Driver, "error": err.Error()})
		return report
	}
	report.ConnectionStatus = "connected"
	report.Database = "available"
	if h.database != "" {
		report.Database = "available (" + h.database + ")"
	}

	collections, err := h.store.Collections(ctx)
	if err != nil {
		report.Database = "connected but error: " + truncate(err.Error(), 50)
		return report
	}
	if len(collections) > maxReportedCollections {
		collections = collections[:maxReportedCollections]
	}
	report.Collections = collections
	report.Database = "connected and working"
	return report
}

func envState(name string) string {
	if os.Getenv(name) != "" {
		return "set"
	}
	return "not set"
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
