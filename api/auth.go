package api

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/runmeter/runmeter/domain"
)

// requireUser resolves the calling user. End users present a bearer token
// whose subject is the user id; trusted services present the shared service
// key and name the user explicitly.
func (h *Handler) requireUser(c echo.Context) (string, error) {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return h.userFromToken(strings.TrimPrefix(auth, "Bearer "))
	}

	if key := c.Request().Header.Get("X-Service-Key"); key != "" {
		if h.config.ServiceKey == "" || key != h.config.ServiceKey {
			return "", fmt.Errorf("invalid service key: %w", domain.ErrUnauthorized)
		}
		userID := c.Request().Header.Get("X-User-ID")
		if userID == "" {
			userID = c.QueryParam("user_id")
		}
		if userID == "" {
			return "", fmt.Errorf("user_id is required with service key auth: %w", domain.ErrInvalidArgument)
		}
		return userID, nil
	}

	return "", fmt.Errorf("missing credentials: %w", domain.ErrUnauthorized)
}

// userFromToken validates a bearer token and returns its subject.
func (h *Handler) userFromToken(raw string) (string, error) {
	if h.config.AuthSecret == "" {
		return "", fmt.Errorf("bearer auth not configured: %w", domain.ErrUnauthorized)
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), []byte(h.config.AuthSecret)),
		jwt.WithValidate(true))
	if err != nil {
		return "", fmt.Errorf("invalid bearer token: %w", domain.ErrUnauthorized)
	}

	var sub string
	if err := tok.Get(jwt.SubjectKey, &sub); err != nil || sub == "" {
		return "", fmt.Errorf("bearer token has no subject: %w", domain.ErrUnauthorized)
	}
	return sub, nil
}

// requireServiceKey authenticates a trusted internal service caller.
func (h *Handler) requireServiceKey(c echo.Context) error {
	key := c.Request().Header.Get("X-Service-Key")
	if h.config.ServiceKey == "" || key != h.config.ServiceKey {
		return fmt.Errorf("invalid service key: %w", domain.ErrUnauthorized)
	}
	return nil
}

// requireWorkflowKey authenticates a call from the workflow engine.
func (h *Handler) requireWorkflowKey(c echo.Context) error {
	key := c.Request().Header.Get("X-Workflow-Key")
	if h.config.WorkflowKey == "" || key != h.config.WorkflowKey {
		return fmt.Errorf("invalid workflow key: %w", domain.ErrUnauthorized)
	}
	return nil
}
