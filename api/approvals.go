package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// GetApproval returns one human-in-the-loop request.
// GET /v1/operations/human-feedback/:hitl_id
func (h *Handler) GetApproval(c echo.Context) error {
	if _, err := h.requireUser(c); err != nil {
		return fail(c, err)
	}

	approval, err := h.gate.GetApproval(c.Request().Context(), c.Param("hitl_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, approval)
}

// DecideApproval records a reviewer decision and, on approval, resumes the
// paused workflow.
// POST /v1/operations/human-feedback/:hitl_id/update
func (h *Handler) DecideApproval(c echo.Context) error {
	if _, err := h.requireUser(c); err != nil {
		return fail(c, err)
	}

	var req domain.ApprovalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	approval, err := h.gate.UpdateApproval(c.Request().Context(), c.Param("hitl_id"), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, approval)
}

// ListApprovals returns the human-in-the-loop requests of a run, optionally
// filtered by ?status=.
// GET /v1/operations/run/:run_id/human-feedback
func (h *Handler) ListApprovals(c echo.Context) error {
	if _, err := h.requireUser(c); err != nil {
		return fail(c, err)
	}

	status := domain.ApprovalStatus(c.QueryParam("status"))
	approvals, err := h.gate.ListByRun(c.Request().Context(), c.Param("run_id"), status)
	if err != nil {
		return fail(c, err)
	}
	if approvals == nil {
		approvals = []domain.Approval{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"requests": approvals,
	})
}
