package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/internal/protocol"
	"github.com/embj-org/ej/logger"
)

// pingInterval is how often the dispatcher probes a connected builder. A
// builder that misses pongWindow's worth of pings has its session closed.
const pingInterval = 20 * time.Second

// pongWindow is the read deadline renewed on every received pong; it must
// exceed pingInterval to tolerate one missed beat under load.
const pongWindow = pingInterval * 2

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades GET /dispatcher/v1/builders/connect, authenticates the
// builder, and drives its read/write pumps for the lifetime of the
// connection.
type WSHandler struct {
	d   *Dispatcher
	log logger.Logger
}

func NewWSHandler(d *Dispatcher, log logger.Logger) *WSHandler {
	return &WSHandler{d: d, log: log}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	builderID := r.URL.Query().Get("builder_id")
	token := r.Header.Get("Authorization")
	if builderID == "" || token == "" {
		http.Error(w, "missing builder_id or Authorization", http.StatusBadRequest)
		return
	}

	ok, err := h.d.store.VerifyBuilderToken(r.Context(), builderID, token)
	if err != nil {
		h.log.Error("verify builder token: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, ejerr.AuthFailed.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade: %v", err)
		return
	}

	sess := newSession(builderID, conn)
	h.d.OnBuilderConnect(builderID, sess)

	go h.writePump(sess)
	h.readPump(sess) // blocks until the connection closes

	h.d.OnBuilderDisconnect(builderID, sess)
}

// readPump decodes every frame the builder sends and applies it to the
// dispatcher core. It returns when the connection errors or closes.
func (h *WSHandler) readPump(sess *session) {
	defer sess.close()

	sess.conn.SetReadDeadline(time.Now().Add(pongWindow))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWindow))
		return nil
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		msgType, payload, err := protocol.Decode(data)
		if err != nil {
			h.log.Warn("builder %s sent malformed frame", sess.builderID)
			return
		}

		if err := h.dispatch(sess, msgType, payload); err != nil {
			h.log.Warn("protocol error from builder %s: %v", sess.builderID, err)
			return
		}
	}
}

func (h *WSHandler) dispatch(sess *session, msgType string, payload []byte) error {
	ctx := context.Background()

	switch msgType {
	case protocol.TypeConfigAnnounce:
		announce, err := protocol.DecodePayload[protocol.ConfigAnnounce](payload)
		if err != nil {
			return err
		}
		ids, err := h.d.RegisterBuilderConfig(ctx, sess.builderID, announce)
		if err != nil {
			h.log.Error("register builder config: %v", err)
			return nil
		}
		ack, err := protocol.Encode(protocol.TypeConfigAnnounceAck, protocol.ConfigAnnounceAck{BoardConfigIDs: ids})
		if err != nil {
			h.log.Error("encode config announce ack: %v", err)
			return nil
		}
		if !sess.enqueue(ack) {
			h.log.Warn("builder %s outbound queue full, closing session", sess.builderID)
			sess.close()
		}
		return nil

	case protocol.TypePong:
		// The builder answers Ping with a text-frame Pong, which the control
		// pong handler never sees, so the read deadline is renewed here.
		sess.conn.SetReadDeadline(time.Now().Add(pongWindow))
		return nil

	case protocol.TypeBuildOk:
		msg, err := protocol.DecodePayload[protocol.BuildOk](payload)
		if err != nil {
			return err
		}
		h.d.OnBuilderReport(sess.builderID, msg.JobID, true, msg.Logs, nil, "")
		return nil

	case protocol.TypeBuildErr:
		msg, err := protocol.DecodePayload[protocol.BuildErr](payload)
		if err != nil {
			return err
		}
		h.d.OnBuilderReport(sess.builderID, msg.JobID, false, msg.Logs, nil, msg.ErrorSummary)
		return nil

	case protocol.TypeRunOk:
		msg, err := protocol.DecodePayload[protocol.RunOk](payload)
		if err != nil {
			return err
		}
		h.d.OnBuilderReport(sess.builderID, msg.JobID, true, msg.Logs, msg.Results, "")
		return nil

	case protocol.TypeRunErr:
		msg, err := protocol.DecodePayload[protocol.RunErr](payload)
		if err != nil {
			return err
		}
		h.d.OnBuilderReport(sess.builderID, msg.JobID, false, msg.Logs, msg.Results, msg.ErrorSummary)
		return nil

	default:
		return ejerr.BuilderProtocolError
	}
}

// writePump serializes all writes to the connection: outbound dispatch
// frames and periodic pings. gorilla/websocket forbids concurrent writers,
// so this is the only goroutine that calls conn.WriteMessage.
func (h *WSHandler) writePump(sess *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer sess.close()

	for {
		select {
		case frame, ok := <-sess.outbound:
			if !ok {
				return
			}
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			ping, err := protocol.Encode(protocol.TypePing, protocol.Ping{Timestamp: time.Now().Unix()})
			if err != nil {
				continue
			}
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}
