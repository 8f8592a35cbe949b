// Package store defines the persistence adapter interface the dispatcher
// core depends on. The core imports only this interface; the concrete
// implementation lives in internal/store/sqlite so the core never imports
// database/sql directly.
package store

import (
	"context"
	"time"
)

// JobKind distinguishes a build job from a run job.
type JobKind string

const (
	JobKindBuild JobKind = "build"
	JobKindRun   JobKind = "run"
)

// JobStatus is a job's position in its NotStarted -> Running ->
// Success/Failed state machine.
type JobStatus string

const (
	JobStatusNotStarted JobStatus = "not_started"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the persisted row backing one submission.
type Job struct {
	ID           string
	Kind         JobKind
	CommitHash   string
	RemoteURL    string
	Status       JobStatus
	CreatedAt    time.Time
	DispatchedAt *time.Time
	FinishedAt   *time.Time
}

// BoardConfigSpec is one (board, board-config) pair posted by a builder,
// shaped like protocol.BoardConfigAnnounce but independent of the wire
// package so storage doesn't import protocol.
type BoardConfigSpec struct {
	BoardName   string
	BoardDesc   string
	ConfigName  string
	Tags        []string
	BuildScript string
	RunScript   string
	ResultsPath string
	LibraryPath string
}

// Store is the persistence adapter the dispatcher core depends on.
type Store interface {
	// CreateJob creates a Job in NotStarted and returns its id.
	CreateJob(ctx context.Context, kind JobKind, commitHash, remoteURL string) (jobID string, err error)

	// SetJobStatus transitions a job's status. The adapter is responsible
	// for the dispatched_at/finished_at side effects named in the data
	// model: dispatched_at is set on the first transition into Running and
	// never thereafter; finished_at is set on the transition into a
	// terminal state and only then.
	SetJobStatus(ctx context.Context, jobID string, status JobStatus, now time.Time) error

	// GetJob fetches a job by id.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// UpsertBuilderConfig upserts boards and board-configs for a builder's
	// posted config, returning ids keyed by "board/config-name". Boards and
	// configs are matched by name, so re-posting the same config yields the
	// same ids.
	UpsertBuilderConfig(ctx context.Context, builderID, version, hash string, specs []BoardConfigSpec) (boardConfigIDs map[string]string, err error)

	// AppendJobLog records a board-config's captured log text. Only valid
	// once the job has reached a terminal state.
	AppendJobLog(ctx context.Context, jobID, boardConfigID, text string) error

	// AppendJobResult records a board-config's captured result-file text.
	AppendJobResult(ctx context.Context, jobID, boardConfigID, text string) error

	// VerifyBuilderToken bcrypt-compares a presented token against the
	// stored hash for a builder.
	VerifyBuilderToken(ctx context.Context, builderID, presentedToken string) (bool, error)

	// CreateBuilder registers a new builder and returns its id. token is the
	// plaintext credential; the adapter hashes it before storing.
	CreateBuilder(ctx context.Context, ownerClientID, token string) (builderID string, err error)

	// CreateRootUser creates the first client/owner account, served over
	// the dispatcher's local control socket.
	CreateRootUser(ctx context.Context, username, password string) (clientID string, err error)

	Close() error
}
