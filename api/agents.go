package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// AgentRegisterRequest is the request to register an agent.
type AgentRegisterRequest struct {
	AgentID       string          `json:"agent_id"`
	Title         string          `json:"title"`
	Endpoint      string          `json:"endpoint"`
	CreditsPerRun int             `json:"credits_per_run"`
	Capabilities  json.RawMessage `json:"capabilities,omitempty"`
}

// RegisterAgent registers or updates an agent.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	if _, err := h.requireUser(c); err != nil {
		return fail(c, err)
	}

	var req AgentRegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}
	if req.Title == "" {
		return badRequest(c, "title is required")
	}
	if req.Endpoint == "" {
		return badRequest(c, "endpoint is required")
	}
	if req.CreditsPerRun < 0 {
		return badRequest(c, "credits_per_run must not be negative")
	}

	now := time.Now()
	agent := &domain.Agent{
		ID:            req.AgentID,
		Title:         req.Title,
		Endpoint:      req.Endpoint,
		CreditsPerRun: req.CreditsPerRun,
		Capabilities:  req.Capabilities,
		CreatedAt:     now,
	}

	if err := h.store.RegisterAgent(c.Request().Context(), agent); err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":            true,
		"registered_at": now.UnixMilli(),
	})
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.store.ListAgents(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
	})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.store.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return fail(c, err)
	}
	if agent == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return c.JSON(http.StatusOK, agent)
}
