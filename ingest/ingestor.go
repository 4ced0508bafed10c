// Package ingest receives agent result payloads from the workflow engine,
// stores them, harvests embedded downloads and charges the run's owner.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/runmeter/runmeter/domain"
	"github.com/runmeter/runmeter/jsonscan"
	"github.com/runmeter/runmeter/ledger"
	"github.com/runmeter/runmeter/scratchpad"
	"github.com/runmeter/runmeter/store"
)

// Ingestor processes result payloads posted back by the workflow engine.
type Ingestor struct {
	store       store.Store
	pad         *scratchpad.Storage
	ledger      *ledger.Ledger
	workflowKey string
	httpClient  *http.Client
}

// NewIngestor creates a result ingestor. Downloads use the client timeout.
func NewIngestor(st store.Store, pad *scratchpad.Storage, led *ledger.Ledger, workflowKey string, downloadTimeout time.Duration) *Ingestor {
	return &Ingestor{
		store:       st,
		pad:         pad,
		ledger:      led,
		workflowKey: workflowKey,
		httpClient:  &http.Client{Timeout: downloadTimeout},
	}
}

// ProcessResults validates the caller, stores the raw payload as an
// artifact, downloads every *_url reference found in it, appends the result
// to the run's flow and asynchronously charges the run's owner.
func (i *Ingestor) ProcessResults(ctx context.Context, runID, agentID, apiKey string, payload json.RawMessage) (*domain.IngestSummary, error) {
	if i.workflowKey == "" || apiKey != i.workflowKey {
		return nil, fmt.Errorf("invalid workflow API key: %w", domain.ErrUnauthorized)
	}

	run, err := i.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}

	if _, err := i.pad.SaveJSON(ctx, run.UserID, runID, agentID, payload); err != nil {
		return nil, fmt.Errorf("failed to store result payload: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("invalid result payload: %w", domain.ErrInvalidArgument)
	}

	refs := jsonscan.FindURLRefs(decoded)
	log.Printf("Found %d URL properties to download for run %s", len(refs), runID)

	downloaded := 0
	for _, ref := range refs {
		if err := i.harvest(ctx, run.UserID, runID, agentID, ref, downloaded); err != nil {
			// One failed download must not abort the remaining URLs.
			log.Printf("ERROR: failed to harvest %s: %v", ref.URL, err)
			continue
		}
		downloaded++
	}

	if err := i.store.AppendRunResult(ctx, runID, flowResultFrom(decoded, agentID, payload)); err != nil {
		// The artifacts are already stored; log and keep going.
		log.Printf("ERROR: failed to append result to run %s: %v", runID, err)
	}

	i.chargeOwnerAsync(run, agentID)

	return &domain.IngestSummary{
		Message:            "Results successfully stored",
		RunID:              runID,
		AgentID:            agentID,
		UserID:             run.UserID,
		DownloadedFiles:    downloaded,
		URLPropertiesFound: len(refs),
	}, nil
}

// harvest downloads one referenced file and stores it as an artifact.
func (i *Ingestor) harvest(ctx context.Context, userID, runID, agentID string, ref jsonscan.URLRef, ordinal int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return err
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	filename := filenameFromURL(ref.URL)
	if filename == "" {
		filename = fmt.Sprintf("file_%d_%d", ordinal, time.Now().UnixMilli())
	}

	_, err = i.pad.SaveDownload(ctx, userID, runID, agentID, filename, contentType, ref.Path, ref.URL, data)
	return err
}

// chargeOwnerAsync charges the run's owner for the agent execution without
// blocking the ingestion response. Failures are logged only.
func (i *Ingestor) chargeOwnerAsync(run *domain.Run, agentID string) {
	agent, err := i.store.GetAgent(context.Background(), agentID)
	if err != nil {
		log.Printf("ERROR: failed to fetch agent %s for charging: %v", agentID, err)
		return
	}
	if agent == nil || agent.CreditsPerRun <= 0 {
		return
	}

	title := agent.Title
	if title == "" {
		title = "Agent " + agentID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		txn, err := i.ledger.Charge(ctx, run.UserID, domain.ChargeRequest{
			Credits:     agent.CreditsPerRun,
			AgentID:     agentID,
			RunID:       run.ID,
			Description: "Agent execution: " + title,
		})
		if err != nil {
			log.Printf("ERROR: failed to charge user %s for agent %s: %v", run.UserID, agentID, err)
			return
		}
		log.Printf("Charged %d credits to user %s for run %s, balance %d", txn.Credits, run.UserID, run.ID, txn.Balance)
	}()
}

// flowResultFrom extracts the flow record from the payload. The engine
// sends agentId, executionId and resultJson at the top level; missing
// fields fall back to the routed agent id and the raw payload.
func flowResultFrom(decoded interface{}, agentID string, payload json.RawMessage) domain.FlowResult {
	result := domain.FlowResult{
		AgentID:    agentID,
		ResultJSON: json.RawMessage(`{}`),
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return result
	}
	if v, ok := obj["agentId"].(string); ok && v != "" {
		result.AgentID = v
	}
	if v, ok := obj["executionId"].(string); ok {
		result.ExecutionID = v
	}
	if raw, ok := obj["resultJson"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			result.ResultJSON = b
		}
	}
	return result
}

// filenameFromURL derives a filename from the last URL path segment,
// dropping any query string.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}
