// Package sdk is the client half of a build/run script's control endpoint:
// dial the socket the builder passed as the script's last argument, read
// back the job's Identity, and optionally be notified when the builder
// wants the script to stop.
package sdk

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/embj-org/ej/internal/controlproto"
)

// Job describes the single build/run invocation the calling script is
// performing, as told to it by the builder over the control socket.
type Job struct {
	Action          string
	ConfigPath      string
	BoardName       string
	BoardConfigName string

	conn net.Conn

	mu     sync.Mutex
	onExit func()
}

// Connect dials socketPath, performs the Hello/Identity handshake, and
// starts listening in the background for the builder's Exit signal. The
// returned Job is valid until the process exits; there is no Close — the
// socket is torn down by the builder once the script itself exits.
func Connect(ctx context.Context, socketPath string) (*Job, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to control socket: %w", err)
	}

	w := controlproto.NewWriter(conn)
	if err := w.Write(controlproto.Hello{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	r := controlproto.NewReader(conn)
	var identity controlproto.Identity
	if err := r.Read(&identity); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read identity: %w", err)
	}

	j := &Job{
		Action:          identity.Action,
		ConfigPath:      identity.ConfigPath,
		BoardName:       identity.BoardName,
		BoardConfigName: identity.BoardConfigName,
		conn:            conn,
	}
	go j.waitForExit(r)

	return j, nil
}

// OnExit registers fn to be called, exactly once and on its own goroutine,
// when the builder signals the script should stop. Calling it more than
// once replaces the previously registered callback.
func (j *Job) OnExit(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onExit = fn
}

func (j *Job) waitForExit(r *controlproto.Reader) {
	var exit controlproto.Exit
	if err := r.Read(&exit); err != nil {
		return
	}

	j.mu.Lock()
	fn := j.onExit
	j.mu.Unlock()

	if fn != nil {
		go fn()
	}
}
