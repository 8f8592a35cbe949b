package builder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/buildkite/roko"
	"github.com/gorilla/websocket"

	"github.com/embj-org/ej/internal/config"
	"github.com/embj-org/ej/internal/protocol"
	"github.com/embj-org/ej/logger"
)

// pingMissThreshold is how long the builder waits without a frame from the
// dispatcher (two 20s ping intervals) before it gives up on a connection and
// reconnects.
const pingMissThreshold = 2 * 20 * time.Second

// Session is the builder-side websocket client: connect, authenticate,
// announce config, run whatever the dispatcher sends through the
// Builder, and reconnect with backoff on disconnect.
type Session struct {
	dispatcherURL string
	builderID     string
	token         string
	cfg           *config.BuilderConfig
	b             *Builder
	log           logger.Logger

	currentJobID string
	cancelJob    context.CancelFunc

	boardConfigIDs map[string]string // "board/config" -> dispatcher-assigned board_configs.id
}

func NewSession(dispatcherURL, builderID, token string, cfg *config.BuilderConfig, b *Builder, log logger.Logger) *Session {
	return &Session{dispatcherURL: dispatcherURL, builderID: builderID, token: token, cfg: cfg, b: b, log: log}
}

// Run connects and serves until ctx is cancelled, reconnecting with
// exponential backoff on every disconnect.
func (s *Session) Run(ctx context.Context) {
	for ctx.Err() == nil {
		err := roko.NewRetrier(
			roko.WithMaxAttempts(10),
			roko.WithStrategy(roko.Exponential(2*time.Second, 0)),
			roko.WithJitter(),
		).DoWithContext(ctx, func(r *roko.Retrier) error {
			conn, err := s.dial(ctx)
			if err != nil {
				s.log.Warn("connect to dispatcher failed: %s (%s)", err, r)
				return err
			}
			s.serve(ctx, conn)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			s.log.Error("giving up reconnecting to dispatcher, retrying from scratch in 30s: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(30 * time.Second):
			}
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{"Authorization": []string{s.token}}
	u := fmt.Sprintf("%s?builder_id=%s", s.dispatcherURL, s.builderID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	return conn, err
}

// serve drives one connection's read loop until it errors or ctx is
// cancelled, dispatching Build/Run/Cancel to the orchestrator.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	if err := s.announce(conn); err != nil {
		s.log.Error("config announce failed: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(pingMissThreshold))
	conn.SetPingHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingMissThreshold))
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msgType, payload, err := protocol.Decode(data)
		if err != nil {
			s.log.Warn("malformed frame from dispatcher: %v", err)
			return
		}

		switch msgType {
		case protocol.TypeConfigAnnounceAck:
			ack, err := protocol.DecodePayload[protocol.ConfigAnnounceAck](payload)
			if err != nil {
				return
			}
			s.boardConfigIDs = ack.BoardConfigIDs

		case protocol.TypePing:
			conn.SetReadDeadline(time.Now().Add(pingMissThreshold))
			pong, _ := protocol.Encode(protocol.TypePong, protocol.Pong{Timestamp: time.Now().Unix()})
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return
			}

		case protocol.TypeBuild:
			msg, err := protocol.DecodePayload[protocol.Build](payload)
			if err != nil {
				return
			}
			s.runJob(ctx, conn, msg.JobID, "build", msg.CommitHash, msg.RemoteURL, msg.FetchToken)

		case protocol.TypeRun:
			msg, err := protocol.DecodePayload[protocol.Run](payload)
			if err != nil {
				return
			}
			s.runJob(ctx, conn, msg.JobID, "run", msg.CommitHash, msg.RemoteURL, msg.FetchToken)

		case protocol.TypeCancel:
			msg, err := protocol.DecodePayload[protocol.Cancel](payload)
			if err == nil && msg.JobID == s.currentJobID && s.cancelJob != nil {
				s.cancelJob()
			}

		default:
			s.log.Warn("unexpected message from dispatcher: %s", msgType)
			return
		}
	}
}

func (s *Session) announce(conn *websocket.Conn) error {
	var boardConfigs []protocol.BoardConfigAnnounce
	for _, b := range s.cfg.Boards {
		for _, c := range b.Configs {
			boardConfigs = append(boardConfigs, protocol.BoardConfigAnnounce{
				BoardName:   b.Name,
				BoardDesc:   b.Description,
				ConfigName:  c.Name,
				Tags:        c.Tags,
				BuildScript: c.BuildScript,
				RunScript:   c.RunScript,
				ResultsPath: c.ResultsPath,
				LibraryPath: c.LibraryPath,
			})
		}
	}

	frame, err := protocol.Encode(protocol.TypeConfigAnnounce, protocol.ConfigAnnounce{
		Version:     s.cfg.Version,
		ConfigHash:  s.cfg.Hash,
		BoardConfig: boardConfigs,
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// runJob executes one assignment on the orchestrator, honoring a Cancel
// sent mid-flight, and reports the terminal outcome back to the dispatcher.
func (s *Session) runJob(ctx context.Context, conn *websocket.Conn, jobID, action, commitHash, remoteURL, fetchToken string) {
	jobCtx, cancel := context.WithCancel(ctx)
	s.currentJobID = jobID
	s.cancelJob = cancel
	defer func() {
		cancel()
		s.currentJobID = ""
		s.cancelJob = nil
	}()

	var outcome Outcome
	if action == "build" {
		outcome = s.b.RunBuild(jobCtx, remoteURL, commitHash, fetchToken)
	} else {
		outcome = s.b.RunRun(jobCtx, remoteURL, commitHash, fetchToken)
	}

	s.report(conn, jobID, action, outcome)
}

func (s *Session) report(conn *websocket.Conn, jobID, action string, outcome Outcome) {
	logs := s.toLogEntries(outcome.Logs)

	var msgType string
	var payload any
	switch {
	case action == "build" && outcome.Success:
		msgType, payload = protocol.TypeBuildOk, protocol.BuildOk{JobID: jobID, Logs: logs}
	case action == "build":
		msgType, payload = protocol.TypeBuildErr, protocol.BuildErr{JobID: jobID, Logs: logs, ErrorSummary: outcome.ErrorSummary}
	case outcome.Success:
		msgType, payload = protocol.TypeRunOk, protocol.RunOk{JobID: jobID, Logs: logs, Results: s.toResultEntries(outcome.Results)}
	default:
		msgType, payload = protocol.TypeRunErr, protocol.RunErr{JobID: jobID, Logs: logs, Results: s.toResultEntries(outcome.Results), ErrorSummary: outcome.ErrorSummary}
	}

	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.log.Error("encode report: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Error("send report: %v", err)
	}
}

// boardConfigID translates a "board/config" name key into the dispatcher's
// board_configs.id, learned from the ConfigAnnounceAck sent right after
// connect. It falls back to the name key if the ack hasn't arrived yet,
// which should never happen since a job can't be assigned before it does.
func (s *Session) boardConfigID(key string) string {
	if id, ok := s.boardConfigIDs[key]; ok {
		return id
	}
	s.log.Warn("no board_config_id registered for %q, reporting name key instead", key)
	return key
}

func (s *Session) toLogEntries(logs map[string]string) []protocol.LogEntry {
	entries := make([]protocol.LogEntry, 0, len(logs))
	for key, text := range logs {
		entries = append(entries, protocol.LogEntry{BoardConfigID: s.boardConfigID(key), Text: text})
	}
	return entries
}

func (s *Session) toResultEntries(results map[string]string) []protocol.ResultEntry {
	entries := make([]protocol.ResultEntry, 0, len(results))
	for key, text := range results {
		entries = append(entries, protocol.ResultEntry{BoardConfigID: s.boardConfigID(key), Text: text})
	}
	return entries
}
