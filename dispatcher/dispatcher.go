// Package dispatcher implements the job queue, scheduler, and builder
// session registry: a single global FIFO queue, broadcast dispatch to every
// currently-idle builder, a per-job deadline timer, and a Store-backed
// record of terminal outcomes.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/internal/protocol"
	"github.com/embj-org/ej/internal/store"
	"github.com/embj-org/ej/logger"
)

// gracePeriod is the fixed window the dispatcher waits for terminal reports
// after broadcasting Cancel on timeout, before force-finalizing.
const gracePeriod = 5 * time.Second

// schedulerTick is the fallback cadence of the scheduler loop; real work is
// driven by the queue's notify channel, this is a backstop so a missed wake
// (e.g. a builder reconnecting between a push and a select) is bounded.
const schedulerTick = 1 * time.Second

// Dispatcher ties together the queue, the session registry, and the
// persistence adapter. One Dispatcher instance exists per dispatcher
// process; there is no clustering or leader election.
type Dispatcher struct {
	log   logger.Logger
	store store.Store

	queue    *queue
	sessions *sessionRegistry
	jobsMu   sync.Mutex
	jobsByID map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher backed by s. Start must be called before jobs
// can be submitted.
func New(log logger.Logger, s store.Store) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:      log,
		store:    s,
		queue:    newQueue(),
		sessions: newSessionRegistry(),
		jobsByID: map[string]*job{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the scheduler loop. Call Stop to shut it down.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.schedulerLoop()
}

// Stop halts the scheduler loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Submit creates a Job, enqueues it, and blocks the caller until it reaches
// a terminal state or its timeout elapses. seconds<=0 fails the job
// immediately with a timeout outcome rather than ever dispatching it.
func (d *Dispatcher) Submit(ctx context.Context, kind store.JobKind, commitHash, remoteURL, fetchToken string, seconds int) (JobOutcome, error) {
	now := time.Now()

	id, err := d.store.CreateJob(ctx, kind, commitHash, remoteURL)
	if err != nil {
		return JobOutcome{}, err
	}

	j := newJob(id, kind, commitHash, remoteURL, fetchToken, now)
	j.deadline = now.Add(time.Duration(seconds) * time.Second)

	d.jobsMu.Lock()
	d.jobsByID[id] = j
	d.jobsMu.Unlock()

	d.log.Info("job %s submitted", id)

	if seconds <= 0 {
		j.mu.Lock()
		if j.status == store.JobStatusNotStarted {
			j.status = store.JobStatusFailed
			j.finishedAt = now
			j.outcome = JobOutcome{Success: false, ErrorSummary: ejerr.Timeout.Error()}
			close(j.done)
		}
		j.mu.Unlock()
		d.persistTerminal(j)
		return j.outcome, nil
	}

	d.queue.push(j)

	select {
	case <-j.done:
	case <-ctx.Done():
		return JobOutcome{}, ctx.Err()
	}

	d.persistTerminal(j)
	return j.outcome, nil
}

// RegisterBuilderConfig upserts a builder's posted board/board-config set.
// Returned ids are keyed "board/config".
func (d *Dispatcher) RegisterBuilderConfig(ctx context.Context, builderID string, announce protocol.ConfigAnnounce) (map[string]string, error) {
	specs := make([]store.BoardConfigSpec, 0, len(announce.BoardConfig))
	for _, b := range announce.BoardConfig {
		specs = append(specs, store.BoardConfigSpec{
			BoardName:   b.BoardName,
			BoardDesc:   b.BoardDesc,
			ConfigName:  b.ConfigName,
			Tags:        b.Tags,
			BuildScript: b.BuildScript,
			RunScript:   b.RunScript,
			ResultsPath: b.ResultsPath,
			LibraryPath: b.LibraryPath,
		})
	}
	return d.store.UpsertBuilderConfig(ctx, builderID, announce.Version, announce.ConfigHash, specs)
}

// OnBuilderConnect installs sess as builderID's live session, closing any
// prior session, and wakes the scheduler so a queued head gets retried
// against the newly-idle builder.
func (d *Dispatcher) OnBuilderConnect(builderID string, sess *session) {
	prev := d.sessions.put(builderID, sess)
	if prev != nil {
		prev.close()
	}
	d.log.Info("builder %s connected", builderID)
	d.queue.wake()
}

// OnBuilderDisconnect removes builderID's session (if it's still the
// current one) and fails any job it was mid-assignment on.
func (d *Dispatcher) OnBuilderDisconnect(builderID string, sess *session) {
	d.sessions.remove(builderID, sess)

	jobID := sess.currentJobID()
	if jobID == "" {
		d.log.Info("builder %s disconnected", builderID)
		return
	}

	d.jobsMu.Lock()
	j, ok := d.jobsByID[jobID]
	d.jobsMu.Unlock()
	if ok && j.failDisconnect(builderID, time.Now()) {
		d.log.Warn("job %s failed: builder %s disconnected mid-assignment", jobID, builderID)
	}
}

// OnBuilderReport applies a builder's terminal Build/Run report to the job
// it names.
func (d *Dispatcher) OnBuilderReport(builderID, jobID string, ok bool, logs []protocol.LogEntry, results []protocol.ResultEntry, errSumm string) {
	d.jobsMu.Lock()
	j, known := d.jobsByID[jobID]
	d.jobsMu.Unlock()
	if !known {
		d.log.Warn("report from builder %s for unknown job %s", builderID, jobID)
		return
	}

	if sess, ok2 := d.sessions.get(builderID); ok2 {
		sess.release()
		d.queue.wake()
	}

	j.recordBuilderReport(builderID, ok, logs, results, errSumm, time.Now())
}

// schedulerLoop is the single task that wakes whenever the queue is
// non-empty or a builder goes idle, tries a dispatch, and sweeps deadlines.
func (d *Dispatcher) schedulerLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.queue.notify:
			d.tryDispatch()
			d.sweepDeadlines()
		case <-ticker.C:
			d.tryDispatch()
			d.sweepDeadlines()
		}
	}
}

// tryDispatch dispatches the queue head if at least one builder is idle. If
// the head cannot be dispatched it stays head.
func (d *Dispatcher) tryDispatch() {
	j := d.queue.peek()
	if j == nil {
		return
	}
	if j.snapshotStatus() != store.JobStatusNotStarted {
		// Already finalized (e.g. expired while queued); drop it.
		d.queue.popFront()
		return
	}

	idle := d.sessions.idleSessions()
	if len(idle) == 0 {
		return
	}

	builderIDs := make([]string, 0, len(idle))
	for _, s := range idle {
		builderIDs = append(builderIDs, s.builderID)
	}

	now := time.Now()
	timeout := j.deadline.Sub(j.createdAt)
	j.markDispatched(now, timeout, builderIDs)

	var msgType string
	var payload any
	if j.kind == store.JobKindBuild {
		msgType = protocol.TypeBuild
		payload = protocol.Build{JobID: j.id, CommitHash: j.commitHash, RemoteURL: j.remoteURL, FetchToken: j.fetchToken}
	} else {
		msgType = protocol.TypeRun
		payload = protocol.Run{JobID: j.id, CommitHash: j.commitHash, RemoteURL: j.remoteURL, FetchToken: j.fetchToken}
	}

	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		d.log.Error("encode dispatch message: %v", err)
		return
	}

	for _, s := range idle {
		s.assign(j.id)
		if !s.enqueue(frame) {
			d.log.Warn("builder %s outbound queue full, closing session", s.builderID)
			s.close()
		}
	}

	d.queue.popFront()
	d.log.Info("job %s dispatched to %d builder(s)", j.id, len(idle))
}

// sweepDeadlines force-finalizes any Running job whose deadline (plus grace
// period) has passed, broadcasting Cancel first, and fails with NoBuilders
// any job still queued when its deadline passes.
func (d *Dispatcher) sweepDeadlines() {
	d.jobsMu.Lock()
	jobs := make([]*job, 0, len(d.jobsByID))
	for _, j := range d.jobsByID {
		jobs = append(jobs, j)
	}
	d.jobsMu.Unlock()

	now := time.Now()
	for _, j := range jobs {
		status := j.snapshotStatus()
		if status == store.JobStatusNotStarted {
			j.mu.Lock()
			if j.status == store.JobStatusNotStarted && !now.Before(j.deadline) {
				j.status = store.JobStatusFailed
				j.finishedAt = now
				j.outcome = JobOutcome{Success: false, ErrorSummary: ejerr.NoBuilders.Error()}
				close(j.done)
			}
			j.mu.Unlock()
			continue
		}
		if status != store.JobStatusRunning {
			continue
		}
		deadline := j.snapshotDeadline()
		if now.Before(deadline) {
			continue
		}

		if now.Before(deadline.Add(gracePeriod)) {
			d.broadcastCancel(j.id)
			continue
		}

		if j.forceTimeout(now) {
			d.log.Warn("job %s force-finalized on timeout", j.id)
		}
	}
}

// broadcastCancel sends Cancel to every session currently assigned jobID.
// Idempotent: sessions that already moved on (idle again) aren't touched.
func (d *Dispatcher) broadcastCancel(jobID string) {
	frame, err := protocol.Encode(protocol.TypeCancel, protocol.Cancel{JobID: jobID})
	if err != nil {
		d.log.Error("encode cancel message: %v", err)
		return
	}
	for _, s := range d.sessions.sessionsForJob(jobID) {
		if !s.enqueue(frame) {
			s.close()
		}
	}
}

func (d *Dispatcher) persistTerminal(j *job) {
	ctx := context.Background()
	status := store.JobStatusFailed
	if j.outcome.Success {
		status = store.JobStatusSuccess
	}
	if err := d.store.SetJobStatus(ctx, j.id, status, time.Now()); err != nil {
		d.log.Error("persist terminal job status: %v", err)
	}
	// Storage write failures are logged but never block the submitter's
	// reply: the outcome already lives in memory and has been returned.
	for _, l := range j.outcome.Logs {
		if err := d.store.AppendJobLog(ctx, j.id, l.BoardConfigID, l.Text); err != nil {
			d.log.Error("append job log: %v", err)
		}
	}
	for _, r := range j.outcome.Results {
		if err := d.store.AppendJobResult(ctx, j.id, r.BoardConfigID, r.Text); err != nil {
			d.log.Error("append job result: %v", err)
		}
	}
}
