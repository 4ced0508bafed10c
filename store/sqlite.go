package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/runmeter/runmeter/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			credits_per_run INTEGER NOT NULL DEFAULT 0,
			workflow_id TEXT,
			webhook_url TEXT,
			capabilities TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			run_id TEXT,
			type TEXT NOT NULL,
			credits INTEGER NOT NULL CHECK (credits > 0),
			balance INTEGER NOT NULL,
			description TEXT,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			workflow_id TEXT,
			status TEXT,
			prompt TEXT,
			sum_credits INTEGER NOT NULL DEFAULT 0,
			results TEXT,
			sub_agents TEXT,
			email_settings TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS human_in_the_loop (
			hitl_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			workflow_id TEXT,
			callback_url TEXT,
			email_settings TEXT,
			reason TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hitl_run ON human_in_the_loop(run_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS scratchpad_files (
			file_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			source_path TEXT,
			source_url TEXT,
			content_type TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scratchpad_run ON scratchpad_files(run_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RegisterAgent registers or updates an agent.
func (s *SQLiteStore) RegisterAgent(ctx context.Context, agent *domain.Agent) error {
	var caps sql.NullString
	if agent.Capabilities != nil {
		caps = sql.NullString{String: string(agent.Capabilities), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (agent_id, title, endpoint, credits_per_run, workflow_id, webhook_url, capabilities, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Title, agent.Endpoint, agent.CreditsPerRun,
		nullString(agent.WorkflowID), nullString(agent.WebhookURL), caps, agent.CreatedAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, title, endpoint, credits_per_run, workflow_id, webhook_url, capabilities, created_at
		 FROM agents WHERE agent_id = ?`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, title, endpoint, credits_per_run, workflow_id, webhook_url, capabilities, created_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgentWorkflow persists the lazily created workflow binding onto the
// agent record so later runs reuse it.
func (s *SQLiteStore) UpdateAgentWorkflow(ctx context.Context, agentID, workflowID, webhookURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET workflow_id = ?, webhook_url = ? WHERE agent_id = ?`,
		workflowID, webhookURL, agentID)
	return err
}

// AppendTransaction writes a ledger entry. The resulting balance is derived
// from the most recent row for the user inside the same INSERT statement, so
// two concurrent charges cannot both read a stale balance. A debit that
// would go negative inserts nothing and returns ErrInsufficientFunds.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	var delta int
	switch txn.Type {
	case domain.TransactionTypeRun:
		delta = -txn.Credits
	case domain.TransactionTypeRefill, domain.TransactionTypeOther:
		delta = txn.Credits
	default:
		return fmt.Errorf("unknown transaction type %q: %w", txn.Type, domain.ErrInvalidArgument)
	}

	const balanceExpr = `COALESCE((SELECT balance FROM transactions WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT 1), 0)`

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, user_id, agent_id, run_id, type, credits, balance, description, timestamp)
		 SELECT ?, ?, ?, ?, ?, ?, `+balanceExpr+` + ?, ?, ?
		 WHERE `+balanceExpr+` + ? >= 0`,
		txn.ID, txn.UserID, nullString(txn.AgentID), nullString(txn.RunID),
		txn.Type, txn.Credits, txn.UserID, delta, nullString(txn.Description), txn.Timestamp,
		txn.UserID, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInsufficientFunds
	}

	return s.db.QueryRowContext(ctx,
		`SELECT balance FROM transactions WHERE transaction_id = ?`, txn.ID).Scan(&txn.Balance)
}

// LatestTransaction returns the most recent transaction for a user, or nil.
func (s *SQLiteStore) LatestTransaction(ctx context.Context, userID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT transaction_id, user_id, agent_id, run_id, type, credits, balance, description, timestamp
		 FROM transactions WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT 1`, userID)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns transactions of one type for a user within [from, to].
func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, typ domain.TransactionType, from, to time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, user_id, agent_id, run_id, type, credits, balance, description, timestamp
		 FROM transactions WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp ASC`, userID, typ, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, user_id, agent_id, workflow_id, status, prompt, sum_credits, results, sub_agents, email_settings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, nullString(run.AgentID), nullString(run.WorkflowID),
		nullString(run.Status), nullString(run.Prompt), run.SumCredits,
		nullRaw(run.Results), nullRaw(run.SubAgents), nullRaw(run.EmailSettings), run.CreatedAt)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, user_id, agent_id, workflow_id, status, prompt, sum_credits, results, sub_agents, email_settings, created_at, finished_at
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// DeleteRun removes a run. Returns false if no row matched.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRunsByAgent returns the most recent runs of an agent owned by a user.
func (s *SQLiteStore) ListRunsByAgent(ctx context.Context, agentID, userID string, limit int) ([]domain.Run, error) {
	query := `SELECT run_id, user_id, agent_id, workflow_id, status, prompt, sum_credits, results, sub_agents, email_settings, created_at, finished_at
		 FROM runs WHERE agent_id = ? AND user_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, agentID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// AppendRunResult appends a flow record to the run's results inside a
// database transaction so concurrent appends cannot lose each other.
func (s *SQLiteStore) AppendRunResult(ctx context.Context, runID string, result domain.FlowResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT results FROM runs WHERE run_id = ?`, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	updated, err := appendFlowResult(raw.String, result)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET results = ? WHERE run_id = ?`, updated, runID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateRunStatus sets the status and finish time of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID, status string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, finishedAt, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateApproval creates a new human-in-the-loop request.
func (s *SQLiteStore) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO human_in_the_loop (hitl_id, run_id, workflow_id, callback_url, email_settings, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		approval.ID, approval.RunID, nullString(approval.WorkflowID), nullString(approval.CallbackURL),
		nullRaw(approval.EmailSettings), nullString(approval.Reason), approval.Status, approval.CreatedAt)
	return err
}

// GetApproval retrieves a human-in-the-loop request by ID.
func (s *SQLiteStore) GetApproval(ctx context.Context, approvalID string) (*domain.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hitl_id, run_id, workflow_id, callback_url, email_settings, reason, status, created_at
		 FROM human_in_the_loop WHERE hitl_id = ?`, approvalID)
	approval, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return approval, nil
}

// ListApprovals returns requests for a run, optionally filtered by status,
// most recent first.
func (s *SQLiteStore) ListApprovals(ctx context.Context, runID string, status domain.ApprovalStatus) ([]domain.Approval, error) {
	query := `SELECT hitl_id, run_id, workflow_id, callback_url, email_settings, reason, status, created_at
		 FROM human_in_the_loop WHERE run_id = ?`
	args := []interface{}{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *approval)
	}
	return approvals, rows.Err()
}

// DecideApproval transitions a pending request to a terminal status. The
// WHERE clause enforces the single pending->terminal transition.
func (s *SQLiteStore) DecideApproval(ctx context.Context, approvalID string, status domain.ApprovalStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE human_in_the_loop SET status = ?, reason = COALESCE(NULLIF(?, ''), reason)
		 WHERE hitl_id = ? AND status = ?`,
		status, reason, approvalID, domain.ApprovalStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	existing, err := s.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyDecided
}

// CreateScratchpadFile records artifact metadata.
func (s *SQLiteStore) CreateScratchpadFile(ctx context.Context, file *domain.ScratchpadFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scratchpad_files (file_id, user_id, run_id, agent_id, filename, path, source_path, source_url, content_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.UserID, file.RunID, file.AgentID, file.Filename, file.Path,
		nullString(file.SourcePath), nullString(file.SourceURL), nullString(file.ContentType), file.CreatedAt)
	return err
}

// ListScratchpadFiles returns artifact metadata for a run in creation order.
func (s *SQLiteStore) ListScratchpadFiles(ctx context.Context, runID string) ([]domain.ScratchpadFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, user_id, run_id, agent_id, filename, path, source_path, source_url, content_type, created_at
		 FROM scratchpad_files WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.ScratchpadFile
	for rows.Next() {
		file, err := scanScratchpadFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// DeleteScratchpadFiles removes all artifact rows of a run and returns the
// deleted metadata so the caller can remove the bytes.
func (s *SQLiteStore) DeleteScratchpadFiles(ctx context.Context, runID string) ([]domain.ScratchpadFile, error) {
	files, err := s.ListScratchpadFiles(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scratchpad_files WHERE run_id = ?`, runID); err != nil {
		return nil, err
	}
	return files, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullRaw(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
