package builder

import (
	"context"
	"net"
	"os"

	"github.com/embj-org/ej/internal/controlproto"
	"github.com/embj-org/ej/logger"
)

// controlServer is the per-script-invocation control endpoint: a Unix
// socket the script's SDK connects to for its Identity and an Exit signal
// on cancellation. Unauthenticated by design — the trust boundary is the
// host filesystem, not the channel.
type controlServer struct {
	path     string
	identity controlproto.Identity
	log      logger.Logger
	ln       net.Listener
}

func newControlServer(path string, identity controlproto.Identity, log logger.Logger) (*controlServer, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &controlServer{path: path, identity: identity, log: log, ln: ln}, nil
}

// serve accepts the script's single connection, answers Hello with Identity,
// and relays ctx cancellation as Exit. A script that never connects gets no
// Exit message; cancellation still reaches it via OS-level process kill.
func (s *controlServer) serve(ctx context.Context) {
	defer os.Remove(s.path)
	defer s.ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
	}()

	var conn net.Conn
	select {
	case conn = <-connCh:
	case <-ctx.Done():
		return
	}
	defer conn.Close()

	r := controlproto.NewReader(conn)
	w := controlproto.NewWriter(conn)

	var hello controlproto.Hello
	if err := r.Read(&hello); err != nil {
		s.log.Warn("control endpoint for %s/%s: hello failed: %v", s.identity.BoardName, s.identity.BoardConfigName, err)
		return
	}
	if err := w.Write(s.identity); err != nil {
		s.log.Warn("control endpoint for %s/%s: write identity failed: %v", s.identity.BoardName, s.identity.BoardConfigName, err)
		return
	}

	<-ctx.Done()
	_ = w.Write(controlproto.Exit{})
}
