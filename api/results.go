package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// GetWorkflowEnv returns the bootstrap environment for a running workflow.
// GET /internal/workflow/:run_id/env
func (h *Handler) GetWorkflowEnv(c echo.Context) error {
	if err := h.requireWorkflowKey(c); err != nil {
		return fail(c, err)
	}

	env, err := h.dispatcher.WorkflowEnv(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

// PostResults ingests an agent's result payload for a run.
// POST /internal/workflow/:run_id/results/:agent_id
func (h *Handler) PostResults(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "failed to read request body")
	}

	summary, err := h.ingestor.ProcessResults(c.Request().Context(),
		c.Param("run_id"), c.Param("agent_id"),
		c.Request().Header.Get("X-Workflow-Key"), payload)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// RequestApproval records a pending human-in-the-loop request for a run.
// POST /internal/workflow/:run_id/request-human-feedback/:agent_id
func (h *Handler) RequestApproval(c echo.Context) error {
	if err := h.requireWorkflowKey(c); err != nil {
		return fail(c, err)
	}

	var req domain.ApprovalCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	approval, err := h.gate.RequestApproval(c.Request().Context(), c.Param("run_id"), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, approval)
}

// UpdateRunStatus updates a run's status on behalf of the workflow engine.
// The run id may also be an engine execution id.
// POST /internal/workflow/status/:run_id
func (h *Handler) UpdateRunStatus(c echo.Context) error {
	if err := h.requireWorkflowKey(c); err != nil {
		return fail(c, err)
	}

	var req domain.StatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	run, err := h.dispatcher.UpdateStatus(c.Request().Context(), c.Param("run_id"), req.Status)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
