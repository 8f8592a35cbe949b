package dispatcher

import (
	"sync"
	"time"

	"github.com/embj-org/ej/internal/protocol"
	"github.com/embj-org/ej/internal/store"
)

// JobOutcome is returned to a submitter once a job reaches a terminal state
// (or its deadline forces one).
type JobOutcome struct {
	Success      bool
	Logs         []protocol.LogEntry
	Results      []protocol.ResultEntry
	ErrorSummary string
}

// builderOutcome accumulates one builder's terminal report. A job may be
// broadcast to several idle builders at once, and only finalizes once every
// participant has reported or the deadline fires.
type builderOutcome struct {
	reported bool
	ok       bool
	logs     []protocol.LogEntry
	results  []protocol.ResultEntry
	errSumm  string
}

// job is the dispatcher's in-memory, authoritative record of one submission.
// The dispatcher is the sole owner and mutator of this state; builders only
// ever see it through protocol messages.
type job struct {
	mu sync.Mutex

	id         string
	kind       store.JobKind
	commitHash string
	remoteURL  string
	fetchToken string

	status       store.JobStatus
	createdAt    time.Time
	dispatchedAt time.Time
	finishedAt   time.Time
	deadline     time.Time

	// participants is the set of builder ids a Build/Run was broadcast to;
	// the job only finalizes once all of them have reported, or the
	// deadline timer forces a finalize.
	participants map[string]*builderOutcome

	done    chan struct{}
	outcome JobOutcome
}

func newJob(id string, kind store.JobKind, commitHash, remoteURL, fetchToken string, now time.Time) *job {
	return &job{
		id:           id,
		kind:         kind,
		commitHash:   commitHash,
		remoteURL:    remoteURL,
		fetchToken:   fetchToken,
		status:       store.JobStatusNotStarted,
		createdAt:    now,
		participants: map[string]*builderOutcome{},
		done:         make(chan struct{}),
	}
}

// markDispatched transitions NotStarted -> Running exactly once, setting
// dispatched_at permanently, and arms the per-job deadline as an absolute
// instant.
func (j *job) markDispatched(now time.Time, timeout time.Duration, builderIDs []string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != store.JobStatusNotStarted {
		return
	}
	j.status = store.JobStatusRunning
	j.dispatchedAt = now
	j.deadline = now.Add(timeout)
	for _, id := range builderIDs {
		j.participants[id] = &builderOutcome{}
	}
}

// isTerminal reports whether the job has already reached Success or Failed.
// Every terminal transition happens exactly once.
func (j *job) isTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == store.JobStatusSuccess || j.status == store.JobStatusFailed
}

// recordBuilderReport applies one builder's terminal report to the
// accumulator and finalizes the job once every participant has reported.
func (j *job) recordBuilderReport(builderID string, ok bool, logs []protocol.LogEntry, results []protocol.ResultEntry, errSumm string, now time.Time) (finalized bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != store.JobStatusRunning {
		return false // cancel/timeout already finalized this job; idempotent no-op
	}

	acc, known := j.participants[builderID]
	if !known {
		acc = &builderOutcome{}
		j.participants[builderID] = acc
	}
	acc.reported = true
	acc.ok = ok
	acc.logs = logs
	acc.results = results
	acc.errSumm = errSumm

	allReported := true
	anyFailed := false
	for _, p := range j.participants {
		if !p.reported {
			allReported = false
		}
		if p.reported && !p.ok {
			anyFailed = true
		}
	}
	if !allReported {
		return false
	}

	j.finalizeLocked(!anyFailed, now)
	return true
}

// failDisconnect fails the job when a participating builder disconnects
// mid-assignment, keeping whatever partial logs/results other participants
// already reported.
func (j *job) failDisconnect(builderID string, now time.Time) (finalized bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != store.JobStatusRunning {
		return false
	}
	if _, known := j.participants[builderID]; !known {
		return false
	}
	j.finalizeLocked(false, now)
	return true
}

// forceTimeout finalizes the job as Failed with whatever partial data has
// arrived, after the deadline (and its grace period) has passed.
func (j *job) forceTimeout(now time.Time) (finalized bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != store.JobStatusRunning {
		return false
	}
	j.finalizeLocked(false, now)
	return true
}

// finalizeLocked must be called with j.mu held. It sets the terminal status
// exactly once, sets finished_at, and snapshots the aggregated outcome.
func (j *job) finalizeLocked(success bool, now time.Time) {
	status := store.JobStatusFailed
	if success {
		status = store.JobStatusSuccess
	}
	j.status = status
	j.finishedAt = now

	var logs []protocol.LogEntry
	var results []protocol.ResultEntry
	var errSumm string
	for _, p := range j.participants {
		logs = append(logs, p.logs...)
		results = append(results, p.results...)
		if !p.ok && p.errSumm != "" {
			if errSumm != "" {
				errSumm += "; "
			}
			errSumm += p.errSumm
		}
	}

	j.outcome = JobOutcome{
		Success:      success,
		Logs:         logs,
		Results:      results,
		ErrorSummary: errSumm,
	}
	close(j.done)
}

func (j *job) snapshotStatus() store.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *job) snapshotDeadline() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deadline
}
