package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embj-org/ej/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateJobAndStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	jobID, err := s.CreateJob(ctx, store.JobKindRun, "deadbeef", "https://example.com/repo.git")
	require.NoError(t, err)

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusNotStarted, job.Status)
	require.Nil(t, job.DispatchedAt)
	require.Nil(t, job.FinishedAt)

	now := time.Now()
	require.NoError(t, s.SetJobStatus(ctx, jobID, store.JobStatusRunning, now))

	job, err = s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusRunning, job.Status)
	require.NotNil(t, job.DispatchedAt)

	dispatchedAt := *job.DispatchedAt

	// Re-entering Running must not move dispatched_at.
	later := now.Add(time.Minute)
	require.NoError(t, s.SetJobStatus(ctx, jobID, store.JobStatusRunning, later))
	job, err = s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.True(t, job.DispatchedAt.Equal(dispatchedAt))

	require.NoError(t, s.SetJobStatus(ctx, jobID, store.JobStatusSuccess, later))
	job, err = s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusSuccess, job.Status)
	require.NotNil(t, job.FinishedAt)
}

func TestUpsertBuilderConfigIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	builderID, err := s.CreateBuilder(ctx, "client-1", "secret-token")
	require.NoError(t, err)

	specs := []store.BoardConfigSpec{
		{BoardName: "rpi4", ConfigName: "release", BuildScript: "/a", RunScript: "/b", ResultsPath: "/c"},
	}

	ids1, err := s.UpsertBuilderConfig(ctx, builderID, "1.0.0", "hash1", specs)
	require.NoError(t, err)

	ids2, err := s.UpsertBuilderConfig(ctx, builderID, "1.0.0", "hash1", specs)
	require.NoError(t, err)

	require.Equal(t, ids1, ids2)
}

func TestAppendJobLogAndResultReferenceRealBoardConfigID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	builderID, err := s.CreateBuilder(ctx, "client-1", "secret-token")
	require.NoError(t, err)

	ids, err := s.UpsertBuilderConfig(ctx, builderID, "1.0.0", "hash1", []store.BoardConfigSpec{
		{BoardName: "rpi4", ConfigName: "release", BuildScript: "/a", RunScript: "/b", ResultsPath: "/c"},
	})
	require.NoError(t, err)
	boardConfigID := ids["rpi4/release"]
	require.NotEqual(t, "rpi4/release", boardConfigID, "UpsertBuilderConfig must return a minted id, not the name key")

	jobID, err := s.CreateJob(ctx, store.JobKindRun, "deadbeef", "https://example.com/repo.git")
	require.NoError(t, err)

	require.NoError(t, s.AppendJobLog(ctx, jobID, boardConfigID, "log text"))
	require.NoError(t, s.AppendJobResult(ctx, jobID, boardConfigID, "result text"))

	var logText string
	err = s.db.QueryRowContext(ctx, `
		SELECT job_logs.text FROM job_logs
		JOIN board_configs ON board_configs.id = job_logs.board_config_id
		WHERE job_logs.job_id = ? AND board_configs.id = ?
	`, jobID, boardConfigID).Scan(&logText)
	require.NoError(t, err, "job_logs.board_config_id must join against board_configs.id")
	require.Equal(t, "log text", logText)

	var resultText string
	err = s.db.QueryRowContext(ctx, `
		SELECT job_results.text FROM job_results
		JOIN board_configs ON board_configs.id = job_results.board_config_id
		WHERE job_results.job_id = ? AND board_configs.id = ?
	`, jobID, boardConfigID).Scan(&resultText)
	require.NoError(t, err, "job_results.board_config_id must join against board_configs.id")
	require.Equal(t, "result text", resultText)
}

func TestVerifyBuilderToken(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	builderID, err := s.CreateBuilder(ctx, "client-1", "correct-token")
	require.NoError(t, err)

	ok, err := s.VerifyBuilderToken(ctx, builderID, "correct-token")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.VerifyBuilderToken(ctx, builderID, "wrong-token")
	require.NoError(t, err)
	require.False(t, ok)
}
