package store

import (
	"database/sql"
	"encoding/json"

	"github.com/runmeter/runmeter/domain"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var workflowID, webhookURL, caps sql.NullString
	err := row.Scan(&agent.ID, &agent.Title, &agent.Endpoint, &agent.CreditsPerRun,
		&workflowID, &webhookURL, &caps, &agent.CreatedAt)
	if err != nil {
		return nil, err
	}
	agent.WorkflowID = workflowID.String
	agent.WebhookURL = webhookURL.String
	if caps.Valid {
		agent.Capabilities = json.RawMessage(caps.String)
	}
	return &agent, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var agentID, runID, description sql.NullString
	err := row.Scan(&txn.ID, &txn.UserID, &agentID, &runID, &txn.Type,
		&txn.Credits, &txn.Balance, &description, &txn.Timestamp)
	if err != nil {
		return nil, err
	}
	txn.AgentID = agentID.String
	txn.RunID = runID.String
	txn.Description = description.String
	return &txn, nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var agentID, workflowID, status, prompt, results, subAgents, emailSettings sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.UserID, &agentID, &workflowID, &status, &prompt,
		&run.SumCredits, &results, &subAgents, &emailSettings, &run.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.AgentID = agentID.String
	run.WorkflowID = workflowID.String
	run.Status = status.String
	run.Prompt = prompt.String
	if results.Valid {
		run.Results = json.RawMessage(results.String)
	}
	if subAgents.Valid {
		run.SubAgents = json.RawMessage(subAgents.String)
	}
	if emailSettings.Valid {
		run.EmailSettings = json.RawMessage(emailSettings.String)
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func scanApproval(row rowScanner) (*domain.Approval, error) {
	var approval domain.Approval
	var workflowID, callbackURL, emailSettings, reason sql.NullString
	err := row.Scan(&approval.ID, &approval.RunID, &workflowID, &callbackURL,
		&emailSettings, &reason, &approval.Status, &approval.CreatedAt)
	if err != nil {
		return nil, err
	}
	approval.WorkflowID = workflowID.String
	approval.CallbackURL = callbackURL.String
	approval.Reason = reason.String
	if emailSettings.Valid {
		approval.EmailSettings = json.RawMessage(emailSettings.String)
	}
	return &approval, nil
}

func scanScratchpadFile(row rowScanner) (*domain.ScratchpadFile, error) {
	var file domain.ScratchpadFile
	var sourcePath, sourceURL, contentType sql.NullString
	err := row.Scan(&file.ID, &file.UserID, &file.RunID, &file.AgentID,
		&file.Filename, &file.Path, &sourcePath, &sourceURL, &contentType, &file.CreatedAt)
	if err != nil {
		return nil, err
	}
	file.SourcePath = sourcePath.String
	file.SourceURL = sourceURL.String
	file.ContentType = contentType.String
	return &file, nil
}

// appendFlowResult appends a flow record to the serialized results tree,
// creating the tree or the flow array as needed.
func appendFlowResult(current string, result domain.FlowResult) (string, error) {
	results := map[string]json.RawMessage{}
	if current != "" {
		if err := json.Unmarshal([]byte(current), &results); err != nil {
			return "", err
		}
	}

	var flow []json.RawMessage
	if raw, ok := results["flow"]; ok {
		if err := json.Unmarshal(raw, &flow); err != nil {
			return "", err
		}
	}

	entry, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	flow = append(flow, entry)

	rawFlow, err := json.Marshal(flow)
	if err != nil {
		return "", err
	}
	results["flow"] = rawFlow

	updated, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(updated), nil
}
