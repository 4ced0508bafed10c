package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// CreateRun creates a run and dispatches its workflow.
// POST /v1/operations/run
func (h *Handler) CreateRun(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	var req domain.RunCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	run, err := h.dispatcher.CreateRun(c.Request().Context(), userID, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

// GetRun returns a run owned by the caller.
// GET /v1/operations/run/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	run, err := h.dispatcher.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return fail(c, err)
	}
	if run.UserID != userID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "run is not owned by caller"})
	}
	return c.JSON(http.StatusOK, run)
}

// DeleteRun removes a run owned by the caller.
// DELETE /v1/operations/run/:run_id
func (h *Handler) DeleteRun(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	runID := c.Param("run_id")
	if err := h.dispatcher.DeleteRun(c.Request().Context(), runID, userID); err != nil {
		return fail(c, err)
	}

	// A deleted run takes its scratchpad with it.
	if _, err := h.pad.Purge(c.Request().Context(), runID); err != nil {
		log.Printf("ERROR: failed to purge scratchpad for run %s: %v", runID, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

// GetRunHistory returns the caller's recent runs of one agent.
// GET /v1/operations/agents/:agent_id/runs
func (h *Handler) GetRunHistory(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	runs, err := h.dispatcher.History(c.Request().Context(), c.Param("agent_id"), userID)
	if err != nil {
		return fail(c, err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}
