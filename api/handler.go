// Package api provides the HTTP handlers of the run ledger service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/config"
	"github.com/runmeter/runmeter/dispatch"
	"github.com/runmeter/runmeter/hitl"
	"github.com/runmeter/runmeter/ingest"
	"github.com/runmeter/runmeter/ledger"
	"github.com/runmeter/runmeter/scratchpad"
	"github.com/runmeter/runmeter/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store      store.Store
	ledger     *ledger.Ledger
	dispatcher *dispatch.Dispatcher
	ingestor   *ingest.Ingestor
	gate       *hitl.Gate
	pad        *scratchpad.Storage
	config     *config.Config
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, led *ledger.Ledger, disp *dispatch.Dispatcher, ing *ingest.Ingestor, gate *hitl.Gate, pad *scratchpad.Storage, cfg *config.Config) *Handler {
	return &Handler{
		store:      st,
		ledger:     led,
		dispatcher: disp,
		ingestor:   ing,
		gate:       gate,
		pad:        pad,
		config:     cfg,
	}
}

// RegisterRoutes registers the public API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Accounting API
	e.GET("/v1/accounting/balance/:user_id", h.GetBalance)
	e.POST("/v1/accounting/charge/:user_id", h.Charge)
	e.POST("/v1/accounting/refill/:user_id", h.Refill)
	e.GET("/v1/accounting/report/:interval", h.GetReport)

	// Agent registry API
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)

	// Run API
	e.POST("/v1/operations/run", h.CreateRun)
	e.GET("/v1/operations/run/:run_id", h.GetRun)
	e.DELETE("/v1/operations/run/:run_id", h.DeleteRun)
	e.GET("/v1/operations/agents/:agent_id/runs", h.GetRunHistory)

	// Human-in-the-loop API
	e.GET("/v1/operations/human-feedback/:hitl_id", h.GetApproval)
	e.POST("/v1/operations/human-feedback/:hitl_id/update", h.DecideApproval)
	e.GET("/v1/operations/run/:run_id/human-feedback", h.ListApprovals)

	// Scratchpad API
	e.GET("/v1/scratchpads/:run_id", h.ListScratchpadFiles)
	e.DELETE("/v1/scratchpads/:run_id", h.PurgeScratchpad)

	e.GET("/health", h.Health)
}

// RegisterInternalRoutes registers the routes the workflow engine calls.
func (h *Handler) RegisterInternalRoutes(e *echo.Echo) {
	e.GET("/internal/workflow/:run_id/env", h.GetWorkflowEnv)
	e.POST("/internal/workflow/:run_id/results/:agent_id", h.PostResults)
	e.POST("/internal/workflow/:run_id/request-human-feedback/:agent_id", h.RequestApproval)
	e.POST("/internal/workflow/status/:run_id", h.UpdateRunStatus)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
