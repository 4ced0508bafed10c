// Package engine provides the HTTP client for the external workflow engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runmeter/runmeter/domain"
)

// webhookNodeName is the engine node that receives the trigger payload.
// Its parameters carry the webhook path of the created workflow.
const webhookNodeName = "run-description"

// Workflow describes a workflow instance created on the engine.
type Workflow struct {
	ID         string
	Name       string
	WebhookID  string
	WebhookURL string
}

// Client calls the workflow engine API.
type Client struct {
	baseURL     string
	apiKey      string
	platformURL string
	httpClient  *http.Client
}

// NewClient creates a new engine client. An empty baseURL or apiKey leaves
// the client unconfigured; workflow creation is then skipped by callers.
func NewClient(baseURL, apiKey, platformURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		platformURL: platformURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the engine connection is set up.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// CreateWorkflow creates a new workflow instance on the engine, keyed by a
// generated webhook identifier.
func (c *Client) CreateWorkflow(ctx context.Context, name string) (*Workflow, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("engine not configured: %w", domain.ErrUpstream)
	}

	webhookID := uuid.New().String()
	definition := c.workflowDefinition(name, webhookID)

	respBody, err := c.do(ctx, http.MethodPost, "/api/v1/workflows", definition)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Nodes []struct {
			Name       string          `json:"name"`
			Parameters json.RawMessage `json:"parameters"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to decode workflow response: %w", err)
	}

	// The engine may rewrite the webhook path; prefer what it reports.
	webhookPath := webhookID
	for _, node := range created.Nodes {
		if node.Name != webhookNodeName {
			continue
		}
		var params struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(node.Parameters, &params); err == nil && params.Path != "" {
			webhookPath = params.Path
		}
		break
	}

	return &Workflow{
		ID:         created.ID,
		Name:       created.Name,
		WebhookID:  webhookPath,
		WebhookURL: c.baseURL + "/webhook/" + webhookPath,
	}, nil
}

// ActivateWorkflow activates a workflow on the engine.
func (c *Client) ActivateWorkflow(ctx context.Context, workflowID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/workflows/"+workflowID+"/activate", nil)
	return err
}

// GetExecution fetches a single execution record including its data.
func (c *Client) GetExecution(ctx context.Context, executionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/executions/"+executionID+"?includeData=true", nil)
}

// TriggerWebhook fires the trigger payload at the webhook URL without
// waiting for the response. Failures are logged only; the run has already
// been created and the caller does not wait for the workflow to start.
func (c *Client) TriggerWebhook(webhookURL string, payload domain.TriggerPayload) {
	if webhookURL == "" {
		log.Printf("ERROR: cannot trigger workflow: webhook URL is empty")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
		defer cancel()

		body, err := json.Marshal(payload)
		if err != nil {
			log.Printf("ERROR: failed to marshal trigger payload: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			log.Printf("ERROR: failed to build trigger request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Printf("ERROR: failed to trigger webhook %s: %v", webhookURL, err)
			return
		}
		defer resp.Body.Close()

		log.Printf("Webhook trigger sent to %s, status: %d", webhookURL, resp.StatusCode)
	}()
}

// ResumeCallback posts the approval message to the workflow's wait webhook.
// The callback URL supplied by the engine is rebased onto the configured
// engine base URL, keeping only its path.
func (c *Client) ResumeCallback(ctx context.Context, callbackURL, message string) error {
	target, err := c.RebaseCallbackURL(callbackURL)
	if err != nil {
		return err
	}

	body, err := json.Marshal(domain.CallbackPayload{ApprovalMessage: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback to %s failed: %w", target, domain.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback to %s returned status %d: %w", target, resp.StatusCode, domain.ErrUpstream)
	}
	return nil
}

// RebaseCallbackURL replaces scheme, host and port of a callback URL with
// the configured engine base URL, keeping only the path. With no engine
// base URL configured the original URL is used unchanged.
func (c *Client) RebaseCallbackURL(callbackURL string) (string, error) {
	if c.baseURL == "" {
		log.Printf("WARN: engine base URL not set, using original callback URL")
		return callbackURL, nil
	}

	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL %q: %w", callbackURL, domain.ErrInvalidArgument)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid engine base URL %q: %w", c.baseURL, err)
	}

	return base.ResolveReference(&url.URL{Path: parsed.Path}).String(), nil
}

// workflowDefinition builds the workflow template submitted to the engine:
// a webhook entry node keyed by the generated webhook id and a bootstrap
// node pointing back at this service.
func (c *Client) workflowDefinition(name, webhookID string) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"nodes": []map[string]interface{}{
			{
				"name": webhookNodeName,
				"type": "webhook",
				"parameters": map[string]interface{}{
					"httpMethod": "POST",
					"path":       webhookID,
				},
			},
			{
				"name": "bootstrap-env",
				"type": "httpRequest",
				"parameters": map[string]interface{}{
					"url": c.platformURL + "/internal/workflow/{{ $json.body.run_id }}/env",
				},
			},
		},
		"settings": map[string]interface{}{
			"executionOrder": "v1",
		},
	}
}

// do performs an authenticated engine API call and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("engine not configured: %w", domain.ErrUpstream)
	}

	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Engine-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine request %s %s failed: %w", method, path, domain.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrUpstream)
	}
	return respBody, nil
}
