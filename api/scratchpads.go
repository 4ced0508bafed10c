package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// ListScratchpadFiles returns the artifact metadata of a run owned by the
// caller.
// GET /v1/scratchpads/:run_id
func (h *Handler) ListScratchpadFiles(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	files, err := h.pad.List(c.Request().Context(), c.Param("run_id"), userID)
	if err != nil {
		return fail(c, err)
	}
	if files == nil {
		files = []domain.ScratchpadFile{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"files": files,
	})
}

// PurgeScratchpad deletes all artifacts of a run owned by the caller.
// DELETE /v1/scratchpads/:run_id
func (h *Handler) PurgeScratchpad(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	runID := c.Param("run_id")
	run, err := h.dispatcher.GetRun(c.Request().Context(), runID)
	if err != nil {
		return fail(c, err)
	}
	if run.UserID != userID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "run is not owned by caller"})
	}

	deleted, err := h.pad.Purge(c.Request().Context(), runID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted_files": deleted,
	})
}
