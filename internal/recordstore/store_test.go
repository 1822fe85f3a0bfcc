package recordstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrison/corerun/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("in-memory database", func(t *testing.T) {
		s, err := Open(":memory:")
		require.NoError(t, err)
		require.NotNil(t, s)
		defer s.Close()
	})

	t.Run("creates parent directories if needed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
	})

	t.Run("invalid path fails", func(t *testing.T) {
		_, err := Open("/nonexistent-root-dir-xyz/deep/path/db.sqlite")
		require.Error(t, err)
	})
}

func TestUpsertRun_IsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertRun(ctx, RunRecord{RunID: "run-1", Goal: "rename foo to bar", Status: "running", StartedAt: started}))
	require.NoError(t, s.UpsertRun(ctx, RunRecord{RunID: "run-1", Goal: "rename foo to bar", Status: "completed", StartedAt: started, FinishedAt: started.Add(time.Minute)}))

	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, "run-1")
	require.NoError(t, row.Scan(&status))
	assert.Equal(t, "completed", status)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, "run-1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertTaskOutcome_OverwritesSameAttempt(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := FromTaskOutcome("run-2", models.TaskOutcome{
		TaskID: "write", Kind: models.OutcomeToolError, Attempt: 1, Started: now, Finished: now,
		Err: errors.New("filesystem.write: LockTimeout"),
	})
	require.NoError(t, s.UpsertTaskOutcome(ctx, rec))

	rec.Kind = models.OutcomeSuccess
	rec.Err = ""
	rec.Output = "wrote 12 bytes"
	require.NoError(t, s.UpsertTaskOutcome(ctx, rec))

	got, err := s.TaskOutcomesForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.OutcomeSuccess, got[0].Kind)
	assert.Equal(t, "wrote 12 bytes", got[0].Output)
	assert.Empty(t, got[0].Err)
}

func TestTaskOutcomesForRun_OrdersByTaskThenAttempt(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for _, rec := range []TaskOutcomeRecord{
		{RunID: "run-3", TaskID: "b", Attempt: 1, Kind: models.OutcomeSuccess, StartedAt: now, FinishedAt: now},
		{RunID: "run-3", TaskID: "a", Attempt: 2, Kind: models.OutcomeSuccess, StartedAt: now, FinishedAt: now},
		{RunID: "run-3", TaskID: "a", Attempt: 1, Kind: models.OutcomeToolError, StartedAt: now, FinishedAt: now},
	} {
		require.NoError(t, s.UpsertTaskOutcome(ctx, rec))
	}

	got, err := s.TaskOutcomesForRun(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "a", "b"}, []string{got[0].TaskID, got[1].TaskID, got[2].TaskID})
	assert.Equal(t, []int{1, 2, 1}, []int{got[0].Attempt, got[1].Attempt, got[2].Attempt})
}

func TestUpsertHITLDecision_ResolvesSameRow(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertHITLDecision(ctx, HITLDecisionRecord{
		RequestID: "req-1", RunID: "run-4", TaskID: "deploy", Mode: models.HITLBlocking,
		Reason: "high risk", CreatedAt: now,
	}))

	require.NoError(t, s.UpsertHITLDecision(ctx, HITLDecisionRecord{
		RequestID: "req-1", RunID: "run-4", TaskID: "deploy", Mode: models.HITLBlocking,
		Reason: "high risk", CreatedAt: now, Decision: models.HITLApprove, ResolvedAt: now.Add(time.Second),
	}))

	var decision string
	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT decision FROM hitl_decisions WHERE request_id = ?`, "req-1").Scan(&decision))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hitl_decisions WHERE request_id = ?`, "req-1").Scan(&count))
	assert.Equal(t, string(models.HITLApprove), decision)
	assert.Equal(t, 1, count)
}
