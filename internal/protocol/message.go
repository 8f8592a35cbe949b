// Package protocol defines the dispatcher<->builder wire protocol: a tagged
// JSON envelope carried over a websocket connection, plus one Go struct per
// message kind.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message kinds sent dispatcher -> builder.
const (
	TypeBuild  = "BUILD"
	TypeRun    = "RUN"
	TypeCancel = "CANCEL"
	TypePing   = "PING"
)

// Message kinds sent builder -> dispatcher.
const (
	TypeConfigAnnounce = "CONFIG_ANNOUNCE"
	TypeBuildOk        = "BUILD_OK"
	TypeBuildErr       = "BUILD_ERR"
	TypeRunOk          = "RUN_OK"
	TypeRunErr         = "RUN_ERR"
	TypePong           = "PONG"
)

// Message kinds sent dispatcher -> builder in reply to ConfigAnnounce.
const (
	TypeConfigAnnounceAck = "CONFIG_ANNOUNCE_ACK"
)

// Message is the envelope every protocol frame is wrapped in. Type is the
// discriminator; Payload is decoded with DecodePayload once the caller knows
// which struct it expects.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps payload in an envelope of the given type and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// Decode splits a raw frame into its type discriminator and raw payload.
func Decode(data []byte) (msgType string, payload json.RawMessage, err error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", nil, fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	return msg.Type, msg.Payload, nil
}

// DecodePayload unmarshals a raw payload into the requested type.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("protocol: unmarshal payload: %w", err)
	}
	return v, nil
}

// Build instructs the builder to run the build phase for a job.
type Build struct {
	JobID      string `json:"job_id"`
	CommitHash string `json:"commit_hash"`
	RemoteURL  string `json:"remote_url"`
	FetchToken string `json:"fetch_token,omitempty"`
}

// Run instructs the builder to check out the commit afresh and run only the
// run scripts for a job; build scripts are not run for a Run job.
type Run struct {
	JobID      string `json:"job_id"`
	CommitHash string `json:"commit_hash"`
	RemoteURL  string `json:"remote_url"`
	FetchToken string `json:"fetch_token,omitempty"`
}

// Cancel asks the builder to abort the named job. Idempotent: a builder that
// receives a second Cancel for a job it has already abandoned is a no-op.
type Cancel struct {
	JobID string `json:"job_id"`
}

// Ping is the dispatcher's liveness probe. A builder must answer with Pong
// within the session's ping window or the session is closed.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong answers a Ping.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// BoardConfigAnnounce is one (board, board-config) pair posted by the
// builder so the dispatcher can upsert Board/BoardConfig rows.
type BoardConfigAnnounce struct {
	BoardName   string   `json:"board_name"`
	BoardDesc   string   `json:"board_description"`
	ConfigName  string   `json:"config_name"`
	Tags        []string `json:"tags"`
	BuildScript string   `json:"build_script"`
	RunScript   string   `json:"run_script"`
	ResultsPath string   `json:"results_path"`
	LibraryPath string   `json:"library_path"`
}

// ConfigAnnounce is sent once right after each connect so the dispatcher can
// refresh BoardConfig ids before any job is dispatched to this builder.
type ConfigAnnounce struct {
	Version     string                `json:"version"`
	ConfigHash  string                `json:"config_hash"`
	BoardConfig []BoardConfigAnnounce `json:"board_configs"`
}

// ConfigAnnounceAck answers ConfigAnnounce with the board_configs.id the
// dispatcher minted (or already held) for each "board/config" name pair the
// builder just announced, so the builder can report logs and results keyed
// by the real id rather than the name.
type ConfigAnnounceAck struct {
	BoardConfigIDs map[string]string `json:"board_config_ids"` // "board/config" -> id
}

// LogEntry is one board-config's captured log text.
type LogEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

// ResultEntry is one board-config's captured result-file text.
type ResultEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

// BuildOk is the terminal success report for a Build job.
type BuildOk struct {
	JobID string     `json:"job_id"`
	Logs  []LogEntry `json:"logs"`
}

// BuildErr is the terminal failure report for a Build job.
type BuildErr struct {
	JobID        string     `json:"job_id"`
	Logs         []LogEntry `json:"logs"`
	ErrorSummary string     `json:"error_summary"`
}

// RunOk is the terminal success report for a Run job.
type RunOk struct {
	JobID   string        `json:"job_id"`
	Logs    []LogEntry    `json:"logs"`
	Results []ResultEntry `json:"results"`
}

// RunErr is the terminal failure report for a Run job.
type RunErr struct {
	JobID        string        `json:"job_id"`
	Logs         []LogEntry    `json:"logs"`
	Results      []ResultEntry `json:"results"`
	ErrorSummary string        `json:"error_summary"`
}
