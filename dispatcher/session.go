package dispatcher

import (
	"sync"

	"github.com/gorilla/websocket"
)

// outboundQueueSize bounds the per-session outbound channel. A builder that
// can't keep up and fills it gets its session closed rather than letting
// the dispatcher buffer unboundedly.
const outboundQueueSize = 32

// session is the dispatcher-side handle for one connected builder's
// websocket. It owns the outbound queue and refers to its builder only by
// id, so there's no reference cycle back to the registry.
type session struct {
	builderID string
	conn      *websocket.Conn
	outbound  chan []byte

	mu         sync.Mutex
	idle       bool
	currentJob string // empty when idle
	closed     bool
}

func newSession(builderID string, conn *websocket.Conn) *session {
	return &session{
		builderID: builderID,
		conn:      conn,
		outbound:  make(chan []byte, outboundQueueSize),
		idle:      true,
	}
}

// enqueue attempts a non-blocking send on the outbound queue. A full queue
// means the peer isn't draining fast enough; the caller closes the session.
func (s *session) enqueue(frame []byte) bool {
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

func (s *session) isIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

func (s *session) assign(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = false
	s.currentJob = jobID
}

func (s *session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = true
	s.currentJob = ""
}

func (s *session) currentJobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentJob
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.conn.Close()
}

// sessionRegistry maps builder_id -> session, guarded by a reader-writer
// lock since lookups vastly outnumber connects/disconnects.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: map[string]*session{}}
}

// put installs sess for builderID, atomically replacing any prior session;
// the caller is responsible for closing the returned previous session.
func (r *sessionRegistry) put(builderID string, sess *session) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[builderID]
	r.sessions[builderID] = sess
	return prev
}

func (r *sessionRegistry) get(builderID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[builderID]
	return s, ok
}

// remove deletes builderID's session entry if it still points at sess (a
// stale disconnect callback from a superseded session must not evict the
// new one).
func (r *sessionRegistry) remove(builderID string, sess *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[builderID]; ok && cur == sess {
		delete(r.sessions, builderID)
	}
}

// idleSessions returns every currently-idle session. All of them receive
// the same Build/Run broadcast for the next dispatched job.
func (r *sessionRegistry) idleSessions() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*session
	for _, s := range r.sessions {
		if s.isIdle() {
			out = append(out, s)
		}
	}
	return out
}

// sessionsForJob returns every connected session currently assigned jobID,
// used to broadcast Cancel.
func (r *sessionRegistry) sessionsForJob(jobID string) []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*session
	for _, s := range r.sessions {
		if s.currentJobID() == jobID {
			out = append(out, s)
		}
	}
	return out
}
