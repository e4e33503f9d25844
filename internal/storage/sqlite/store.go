package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/CortexDesk/models"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps WAL mode free of "database is locked" under concurrent portfolio runs
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    symbol TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    status TEXT NOT NULL,
    phase TEXT NOT NULL DEFAULT '',
    failure_kind TEXT NOT NULL DEFAULT '',
    final_decision TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stage_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    phase TEXT NOT NULL,
    stage TEXT NOT NULL,
    agent TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_symbol_date ON runs(symbol, trade_date);
CREATE INDEX IF NOT EXISTS idx_stage_events_run ON stage_events(run_id, seq);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run models.RunRecord) error {
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, symbol, trade_date, status, phase)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    symbol=excluded.symbol,
    trade_date=excluded.trade_date,
    status=excluded.status,
    phase=excluded.phase,
    updated_at=CURRENT_TIMESTAMP
`, run.RunID, run.Symbol, run.TradeDate, run.Status, run.Phase)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) InsertStageEvent(ctx context.Context, ev models.StageEventRecord) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("stage event seq must be positive")
	}
	if strings.TrimSpace(ev.Stage) == "" {
		return fmt.Errorf("stage name is required")
	}
	if ev.Status == "" {
		ev.Status = StatusDone
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stage_events (run_id, seq, phase, stage, agent, content, status, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, seq) DO NOTHING
`, ev.RunID, ev.Seq, ev.Phase, ev.Stage, ev.Agent, ev.Content, ev.Status, ev.DurationMs)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state of a run. Creating the row first is not required.
func (s *Store) FinishRun(ctx context.Context, run models.RunRecord) error {
	if strings.TrimSpace(run.RunID) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, symbol, trade_date, status, phase, failure_kind, final_decision, action)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    status=excluded.status,
    phase=excluded.phase,
    failure_kind=excluded.failure_kind,
    final_decision=excluded.final_decision,
    action=excluded.action,
    updated_at=CURRENT_TIMESTAMP
`, run.RunID, run.Symbol, run.TradeDate, run.Status, run.Phase, run.FailureKind, run.FinalDecision, run.Action)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runColumns = `id, run_id, symbol, trade_date, status, phase, failure_kind, final_decision, action, created_at, updated_at`

func scanRun(row interface{ Scan(...any) error }) (models.RunRecord, error) {
	var rec models.RunRecord
	err := row.Scan(&rec.Id, &rec.RunID, &rec.Symbol, &rec.TradeDate, &rec.Status, &rec.Phase,
		&rec.FailureKind, &rec.FinalDecision, &rec.Action, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// ListRuns pages through runs newest first. cursor is the Id of the last row already seen, 0 for the first page.
func (s *Store) ListRuns(ctx context.Context, cursor int64, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
WHERE (? = 0 OR id < ?)
ORDER BY id DESC
LIMIT ?
`, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// GetRun returns nil without an error when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ? LIMIT 1`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListStageEvents(ctx context.Context, runID string) ([]models.StageEventRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, seq, phase, stage, agent, content, status, duration_ms, created_at
FROM stage_events
WHERE run_id = ?
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	var events []models.StageEventRecord
	for rows.Next() {
		var rec models.StageEventRecord
		if err := rows.Scan(&rec.Id, &rec.RunID, &rec.Seq, &rec.Phase, &rec.Stage, &rec.Agent,
			&rec.Content, &rec.Status, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stage events rows: %w", err)
	}
	return events, nil
}
