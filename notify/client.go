// Package notify sends reviewer notifications through the external
// notification service. Rendering is the notifier's concern; this client
// only posts the review request.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/runmeter/runmeter/domain"
)

// Client posts review requests to the notifier service.
type Client struct {
	baseURL       string
	reviewBaseURL string
	httpClient    *http.Client
}

// NewClient creates a notifier client. An empty baseURL disables delivery;
// SendReviewRequest then becomes a no-op.
func NewClient(baseURL, reviewBaseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		reviewBaseURL: strings.TrimSuffix(reviewBaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// ReviewURL returns the link a reviewer follows to decide a request.
func (c *Client) ReviewURL(approvalID string) string {
	return c.reviewBaseURL + "/human-in-the-loop/" + approvalID
}

type reviewRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Subject   string `json:"subject"`
	ReviewURL string `json:"review_url"`
	Reason    string `json:"reason,omitempty"`
	Important bool   `json:"important,omitempty"`
}

// SendReviewRequest notifies one recipient about a pending approval.
func (c *Client) SendReviewRequest(ctx context.Context, rcpt domain.EmailRecipient, subject, reviewURL, reason string, important bool) error {
	if c.baseURL == "" {
		return nil
	}
	if subject == "" {
		subject = "Review Request"
	}

	body, err := json.Marshal(reviewRequest{
		Email:     rcpt.Email,
		Name:      rcpt.Name,
		Subject:   subject,
		ReviewURL: reviewURL,
		Reason:    reason,
		Important: important,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/review-request", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier unreachable: %w", domain.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notifier returned status %d: %w", resp.StatusCode, domain.ErrUpstream)
	}
	return nil
}
