package dispatcher

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embj-org/ej/internal/store"
	"github.com/embj-org/ej/logger"
)

// fakeStore is a minimal in-memory store.Store, enough to exercise the
// dispatcher core's persistence calls without a real database.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[string]*store.Job
	logs    []string
	results []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*store.Job{}}
}

func (s *fakeStore) CreateJob(ctx context.Context, kind store.JobKind, commitHash, remoteURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := time.Now().Format("20060102150405") + "-" + string(rune('a'+s.nextID))
	s.jobs[id] = &store.Job{ID: id, Kind: kind, CommitHash: commitHash, RemoteURL: remoteURL, Status: store.JobStatusNotStarted}
	return id, nil
}

func (s *fakeStore) SetJobStatus(ctx context.Context, jobID string, status store.JobStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.Status = status
	}
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, jobID string) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID], nil
}

func (s *fakeStore) UpsertBuilderConfig(ctx context.Context, builderID, version, hash string, specs []store.BoardConfigSpec) (map[string]string, error) {
	out := map[string]string{}
	for _, sp := range specs {
		out[sp.BoardName+"/"+sp.ConfigName] = sp.BoardName + "/" + sp.ConfigName
	}
	return out, nil
}

func (s *fakeStore) AppendJobLog(ctx context.Context, jobID, boardConfigID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, text)
	return nil
}

func (s *fakeStore) AppendJobResult(ctx context.Context, jobID, boardConfigID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, text)
	return nil
}

func (s *fakeStore) VerifyBuilderToken(ctx context.Context, builderID, presentedToken string) (bool, error) {
	return true, nil
}

func (s *fakeStore) CreateBuilder(ctx context.Context, ownerClientID, token string) (string, error) {
	return "builder-1", nil
}

func (s *fakeStore) CreateRootUser(ctx context.Context, username, password string) (string, error) {
	return "client-1", nil
}

func (s *fakeStore) Close() error { return nil }

func discardTestLogger() logger.Logger {
	return logger.NewConsoleLogger(logger.NewTextPrinter(io.Discard), func(int) {})
}

func TestSubmitWithNonPositiveTimeoutFailsImmediately(t *testing.T) {
	d := New(discardTestLogger(), newFakeStore())

	outcome, err := d.Submit(context.Background(), store.JobKindBuild, "deadbeef", "https://example.com/repo.git", "", 0)

	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Contains(t, outcome.ErrorSummary, "timed out")
}

func TestSubmitDispatchesToIdleBuilderAndWaitsForReport(t *testing.T) {
	d := New(discardTestLogger(), newFakeStore())
	d.Start()
	defer d.Stop()

	sess := newSession("builder-a", nil)
	d.OnBuilderConnect("builder-a", sess)

	resultCh := make(chan JobOutcome, 1)
	go func() {
		outcome, err := d.Submit(context.Background(), store.JobKindBuild, "deadbeef", "https://example.com/repo.git", "", 10)
		require.NoError(t, err)
		resultCh <- outcome
	}()

	require.Eventually(t, func() bool { return sess.currentJobID() != "" }, time.Second, 5*time.Millisecond)
	jobID := sess.currentJobID()

	d.OnBuilderReport("builder-a", jobID, true, nil, nil, "")

	select {
	case outcome := <-resultCh:
		require.True(t, outcome.Success)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after the sole participant reported")
	}
}

func TestSubmitFailsWhenBuilderDisconnectsMidAssignment(t *testing.T) {
	d := New(discardTestLogger(), newFakeStore())
	d.Start()
	defer d.Stop()

	sess := newSession("builder-a", nil)
	d.OnBuilderConnect("builder-a", sess)

	resultCh := make(chan JobOutcome, 1)
	go func() {
		outcome, _ := d.Submit(context.Background(), store.JobKindRun, "deadbeef", "https://example.com/repo.git", "", 10)
		resultCh <- outcome
	}()

	require.Eventually(t, func() bool { return sess.currentJobID() != "" }, time.Second, 5*time.Millisecond)
	d.OnBuilderDisconnect("builder-a", sess)

	select {
	case outcome := <-resultCh:
		require.False(t, outcome.Success)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after its sole builder disconnected")
	}
}
