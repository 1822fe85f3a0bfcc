// Package recordstore persists a run's audit trail — the run itself, every
// task attempt's outcome, and every HITL decision — to SQLite. It follows
// the teacher's internal/learning Store exactly: an embedded schema.sql
// executed once at open, database/sql plus mattn/go-sqlite3 underneath, and
// idempotent upserts so a crashed-and-resumed orchestrator run never
// duplicates rows.
package recordstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/corerun/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed Record Store. The zero value is not usable;
// construct with Open.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the parent directory, opens the database at
// dbPath — or an in-memory database for ":memory:" — and applies the schema.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("recordstore: create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("recordstore: open database: %w", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("recordstore: apply schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection for callers (such as tests)
// that need to run ad-hoc queries the Store doesn't wrap itself.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunRecord is the top-level row for one orchestrator run.
type RunRecord struct {
	RunID      string
	Goal       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in flight
}

// UpsertRun inserts or updates a run's status, keyed by RunID — called once
// at run start and again at run end.
func (s *Store) UpsertRun(ctx context.Context, r RunRecord) error {
	var finishedAt interface{}
	if !r.FinishedAt.IsZero() {
		finishedAt = r.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, goal, status, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at
	`, r.RunID, r.Goal, r.Status, r.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("recordstore: upsert run %s: %w", r.RunID, err)
	}
	return nil
}

// TaskOutcomeRecord is one attempt at one task, persisted verbatim from
// models.TaskOutcome.
type TaskOutcomeRecord struct {
	RunID      string
	TaskID     string
	Attempt    int
	Kind       models.OutcomeKind
	Output     string
	Err        string
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// FromTaskOutcome converts a wave executor result into a persistable record.
func FromTaskOutcome(runID string, o models.TaskOutcome) TaskOutcomeRecord {
	rec := TaskOutcomeRecord{
		RunID:      runID,
		TaskID:     o.TaskID,
		Attempt:    o.Attempt,
		Kind:       o.Kind,
		Output:     o.Output,
		SessionID:  o.SessionID,
		StartedAt:  o.Started,
		FinishedAt: o.Finished,
	}
	if o.Err != nil {
		rec.Err = o.Err.Error()
	}
	return rec
}

// UpsertTaskOutcome records one task attempt, keyed by (run_id, task_id,
// attempt) so re-publishing the same attempt (e.g. a crash-resumed
// orchestrator replaying its last batch) overwrites rather than duplicates.
func (s *Store) UpsertTaskOutcome(ctx context.Context, r TaskOutcomeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_outcomes (run_id, task_id, attempt, kind, output, error, session_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id, attempt) DO UPDATE SET
			kind = excluded.kind,
			output = excluded.output,
			error = excluded.error,
			session_id = excluded.session_id,
			finished_at = excluded.finished_at
	`, r.RunID, r.TaskID, r.Attempt, string(r.Kind), r.Output, r.Err, r.SessionID, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("recordstore: upsert task outcome %s/%s#%d: %w", r.RunID, r.TaskID, r.Attempt, err)
	}
	return nil
}

// TaskOutcomesForRun returns every persisted attempt for a run, ordered by
// task then attempt, for audit replay.
func (s *Store) TaskOutcomesForRun(ctx context.Context, runID string) ([]TaskOutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, attempt, kind, output, error, session_id, started_at, finished_at
		FROM task_outcomes WHERE run_id = ? ORDER BY task_id, attempt
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("recordstore: query task outcomes for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []TaskOutcomeRecord
	for rows.Next() {
		var r TaskOutcomeRecord
		var kind string
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.Attempt, &kind, &r.Output, &r.Err, &r.SessionID, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("recordstore: scan task outcome: %w", err)
		}
		r.Kind = models.OutcomeKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HITLDecisionRecord is one human checkpoint, from request through
// resolution.
type HITLDecisionRecord struct {
	RequestID  string
	RunID      string
	TaskID     string
	WaveName   string
	Mode       models.HITLMode
	Reason     string
	Decision   models.HITLDecision // empty while pending
	CreatedAt  time.Time
	ResolvedAt time.Time // zero while pending
}

// UpsertHITLDecision records a checkpoint's creation and, once resolved, its
// decision — keyed by RequestID so the resolution update lands on the same
// row the request created.
func (s *Store) UpsertHITLDecision(ctx context.Context, r HITLDecisionRecord) error {
	var resolvedAt interface{}
	if !r.ResolvedAt.IsZero() {
		resolvedAt = r.ResolvedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hitl_decisions (request_id, run_id, task_id, wave_name, mode, reason, decision, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			decision = excluded.decision,
			resolved_at = excluded.resolved_at
	`, r.RequestID, r.RunID, r.TaskID, r.WaveName, string(r.Mode), r.Reason, string(r.Decision), r.CreatedAt, resolvedAt)
	if err != nil {
		return fmt.Errorf("recordstore: upsert hitl decision %s: %w", r.RequestID, err)
	}
	return nil
}
