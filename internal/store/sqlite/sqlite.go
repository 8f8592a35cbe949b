// Package sqlite is the concrete store.Store adapter backed by
// modernc.org/sqlite (pure Go, no cgo -- the dispatcher binary is built for
// a fleet of host architectures, so a cgo-free driver avoids cross-compile
// pain).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS builders (
	id TEXT PRIMARY KEY,
	owner_client_id TEXT NOT NULL,
	token_hash TEXT NOT NULL,
	config_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS boards (
	id TEXT PRIMARY KEY,
	builder_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	UNIQUE (builder_id, name)
);

CREATE TABLE IF NOT EXISTS board_configs (
	id TEXT PRIMARY KEY,
	board_id TEXT NOT NULL,
	name TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	build_script TEXT NOT NULL DEFAULT '',
	run_script TEXT NOT NULL DEFAULT '',
	results_path TEXT NOT NULL DEFAULT '',
	library_path TEXT NOT NULL DEFAULT '',
	UNIQUE (board_id, name)
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	commit_hash TEXT NOT NULL,
	remote_url TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	dispatched_at INTEGER,
	finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS job_logs (
	job_id TEXT NOT NULL,
	board_config_id TEXT NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (job_id, board_config_id)
);

CREATE TABLE IF NOT EXISTS job_results (
	job_id TEXT NOT NULL,
	board_config_id TEXT NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (job_id, board_config_id)
);
`

// Store implements store.Store on top of a SQLite database file (or
// ":memory:" for tests).
type Store struct {
	db *sql.DB
	mu sync.Mutex

	newID func() string
}

var _ store.Store = (*Store)(nil)

// Option configures a Store at construction.
type Option func(*Store)

// WithIDFunc overrides the id generator (tests want determinism); default is
// uuid.NewString.
func WithIDFunc(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// Open opens (creating if necessary) a SQLite-backed Store at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	s := &Store{db: db, newID: defaultNewID}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateJob(ctx context.Context, kind store.JobKind, commitHash, remoteURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, commit_hash, remote_url, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), commitHash, remoteURL, string(store.JobStatusNotStarted), time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert job: %v", ejerr.StorageError, err)
	}
	return id, nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID string, status store.JobStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch status {
	case store.JobStatusRunning:
		// dispatched_at is set on the first transition into Running only.
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, dispatched_at = COALESCE(dispatched_at, ?) WHERE id = ?`,
			string(status), now.Unix(), jobID,
		)
		if err != nil {
			return fmt.Errorf("%w: set job status running: %v", ejerr.StorageError, err)
		}
	case store.JobStatusSuccess, store.JobStatusFailed:
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ?`,
			string(status), now.Unix(), jobID,
		)
		if err != nil {
			return fmt.Errorf("%w: set job status terminal: %v", ejerr.StorageError, err)
		}
	default:
		_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(status), jobID)
		if err != nil {
			return fmt.Errorf("%w: set job status: %v", ejerr.StorageError, err)
		}
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, commit_hash, remote_url, status, created_at, dispatched_at, finished_at FROM jobs WHERE id = ?`,
		jobID,
	)

	var j store.Job
	var kind, status string
	var createdAt int64
	var dispatchedAt, finishedAt sql.NullInt64

	if err := row.Scan(&j.ID, &kind, &j.CommitHash, &j.RemoteURL, &status, &createdAt, &dispatchedAt, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: job %s not found", ejerr.BadRequest, jobID)
		}
		return nil, fmt.Errorf("%w: get job: %v", ejerr.StorageError, err)
	}

	j.Kind = store.JobKind(kind)
	j.Status = store.JobStatus(status)
	j.CreatedAt = time.Unix(createdAt, 0)
	if dispatchedAt.Valid {
		t := time.Unix(dispatchedAt.Int64, 0)
		j.DispatchedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		j.FinishedAt = &t
	}
	return &j, nil
}

func (s *Store) UpsertBuilderConfig(ctx context.Context, builderID, version, hash string, specs []store.BoardConfigSpec) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ejerr.StorageError, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op if committed

	if _, err := tx.ExecContext(ctx, `UPDATE builders SET config_hash = ? WHERE id = ?`, hash, builderID); err != nil {
		return nil, fmt.Errorf("%w: update builder config hash: %v", ejerr.StorageError, err)
	}

	ids := map[string]string{}
	for _, spec := range specs {
		boardID, err := s.upsertBoard(ctx, tx, builderID, spec.BoardName, spec.BoardDesc)
		if err != nil {
			return nil, err
		}

		configID, err := s.upsertBoardConfig(ctx, tx, boardID, spec)
		if err != nil {
			return nil, err
		}

		ids[spec.BoardName+"/"+spec.ConfigName] = configID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %v", ejerr.StorageError, err)
	}
	return ids, nil
}

func (s *Store) upsertBoard(ctx context.Context, tx *sql.Tx, builderID, name, description string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM boards WHERE builder_id = ? AND name = ?`, builderID, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = s.newID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO boards (id, builder_id, name, description) VALUES (?, ?, ?, ?)`,
			id, builderID, name, description,
		); err != nil {
			return "", fmt.Errorf("%w: insert board: %v", ejerr.StorageError, err)
		}
	case err != nil:
		return "", fmt.Errorf("%w: lookup board: %v", ejerr.StorageError, err)
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE boards SET description = ? WHERE id = ?`, description, id); err != nil {
			return "", fmt.Errorf("%w: update board: %v", ejerr.StorageError, err)
		}
	}
	return id, nil
}

func (s *Store) upsertBoardConfig(ctx context.Context, tx *sql.Tx, boardID string, spec store.BoardConfigSpec) (string, error) {
	tags := joinTags(spec.Tags)

	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM board_configs WHERE board_id = ? AND name = ?`, boardID, spec.ConfigName).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = s.newID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO board_configs (id, board_id, name, tags, build_script, run_script, results_path, library_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, boardID, spec.ConfigName, tags, spec.BuildScript, spec.RunScript, spec.ResultsPath, spec.LibraryPath,
		); err != nil {
			return "", fmt.Errorf("%w: insert board_config: %v", ejerr.StorageError, err)
		}
	case err != nil:
		return "", fmt.Errorf("%w: lookup board_config: %v", ejerr.StorageError, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE board_configs SET tags = ?, build_script = ?, run_script = ?, results_path = ?, library_path = ? WHERE id = ?`,
			tags, spec.BuildScript, spec.RunScript, spec.ResultsPath, spec.LibraryPath, id,
		); err != nil {
			return "", fmt.Errorf("%w: update board_config: %v", ejerr.StorageError, err)
		}
	}
	return id, nil
}

func (s *Store) AppendJobLog(ctx context.Context, jobID, boardConfigID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, board_config_id, text) VALUES (?, ?, ?)
		 ON CONFLICT (job_id, board_config_id) DO UPDATE SET text = excluded.text`,
		jobID, boardConfigID, text,
	)
	if err != nil {
		return fmt.Errorf("%w: append job log: %v", ejerr.StorageError, err)
	}
	return nil
}

func (s *Store) AppendJobResult(ctx context.Context, jobID, boardConfigID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_results (job_id, board_config_id, text) VALUES (?, ?, ?)
		 ON CONFLICT (job_id, board_config_id) DO UPDATE SET text = excluded.text`,
		jobID, boardConfigID, text,
	)
	if err != nil {
		return fmt.Errorf("%w: append job result: %v", ejerr.StorageError, err)
	}
	return nil
}

func (s *Store) VerifyBuilderToken(ctx context.Context, builderID, presentedToken string) (bool, error) {
	s.mu.Lock()
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT token_hash FROM builders WHERE id = ?`, builderID).Scan(&hash)
	s.mu.Unlock()

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup builder token: %v", ejerr.StorageError, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presentedToken)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) CreateBuilder(ctx context.Context, ownerClientID, token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sqlite: hash builder token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO builders (id, owner_client_id, token_hash) VALUES (?, ?, ?)`,
		id, ownerClientID, string(hash),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert builder: %v", ejerr.StorageError, err)
	}
	return id, nil
}

func (s *Store) CreateRootUser(ctx context.Context, username, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sqlite: hash root user password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO clients (id, username, password_hash) VALUES (?, ?, ?)`,
		id, username, string(hash),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert root user: %v", ejerr.StorageError, err)
	}
	return id, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
