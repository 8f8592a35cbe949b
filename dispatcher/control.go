package dispatcher

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/internal/socket"
	"github.com/embj-org/ej/internal/store"
	"github.com/embj-org/ej/logger"
)

// ControlHandler serves the dispatcher's local control socket: one JSON
// POST per request path, mirroring the shape of a length-prefixed RPC
// without hand-rolling the framing ourselves.
type ControlHandler struct {
	d   *Dispatcher
	log logger.Logger
}

func NewControlHandler(d *Dispatcher, log logger.Logger) http.Handler {
	h := &ControlHandler{d: d, log: log}

	r := chi.NewRouter()
	r.Post("/create-root-user", h.createRootUser)
	r.Post("/create-builder", h.createBuilder)
	r.Post("/dispatch/build", h.dispatchBuild)
	r.Post("/dispatch/run", h.dispatchRun)
	return r
}

type createRootUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRootUserResponse struct {
	ClientID string `json:"client_id"`
}

func (h *ControlHandler) createRootUser(w http.ResponseWriter, r *http.Request) {
	var req createRootUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}

	clientID, err := h.d.store.CreateRootUser(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, createRootUserResponse{ClientID: clientID})
}

type createBuilderRequest struct {
	OwnerClientID string `json:"owner_client_id"`
}

type createBuilderResponse struct {
	BuilderID string `json:"builder_id"`
	Token     string `json:"token"`
}

// createBuilder registers a new builder under an owner client and hands
// back a freshly generated token; the token is never stored in the clear
// and this is the only time it's returned.
func (h *ControlHandler) createBuilder(w http.ResponseWriter, r *http.Request) {
	var req createBuilderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}
	if req.OwnerClientID == "" {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}

	token, err := socket.GenerateToken(32)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}

	builderID, err := h.d.store.CreateBuilder(r.Context(), req.OwnerClientID, token)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, createBuilderResponse{BuilderID: builderID, Token: token})
}

type dispatchRequest struct {
	CommitHash     string `json:"commit_hash"`
	RemoteURL      string `json:"remote_url"`
	FetchToken     string `json:"fetch_token,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type dispatchResponse struct {
	Success      bool                  `json:"success"`
	ErrorSummary string                `json:"error_summary,omitempty"`
	Logs         []dispatchLogEntry    `json:"logs,omitempty"`
	Results      []dispatchResultEntry `json:"results,omitempty"`
}

type dispatchLogEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

type dispatchResultEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

func (h *ControlHandler) dispatchBuild(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, store.JobKindBuild)
}

func (h *ControlHandler) dispatchRun(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, store.JobKindRun)
}

func (h *ControlHandler) dispatch(w http.ResponseWriter, r *http.Request, kind store.JobKind) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}
	if req.CommitHash == "" || req.RemoteURL == "" {
		h.writeError(w, ejerr.BadRequest, http.StatusBadRequest)
		return
	}

	outcome, err := h.d.Submit(r.Context(), kind, req.CommitHash, req.RemoteURL, req.FetchToken, req.TimeoutSeconds)
	if err != nil {
		h.writeError(w, err, http.StatusInternalServerError)
		return
	}

	resp := dispatchResponse{Success: outcome.Success, ErrorSummary: outcome.ErrorSummary}
	for _, l := range outcome.Logs {
		resp.Logs = append(resp.Logs, dispatchLogEntry{BoardConfigID: l.BoardConfigID, Text: l.Text})
	}
	for _, rs := range outcome.Results {
		resp.Results = append(resp.Results, dispatchResultEntry{BoardConfigID: rs.BoardConfigID, Text: rs.Text})
	}
	h.writeJSON(w, resp)
}

func (h *ControlHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write control response: %v", err)
	}
}

func (h *ControlHandler) writeError(w http.ResponseWriter, err error, status int) {
	if werr := socket.WriteError(w, ejerr.CodeFor(err), status); werr != nil {
		h.log.Error("write control error response: %v", werr)
	}
}
