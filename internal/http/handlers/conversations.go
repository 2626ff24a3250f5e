package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// ConversationEngine is the part of the crisis engine exposed over REST.
type ConversationEngine interface {
	Open(ctx context.Context, req conversation.OpenRequest) (*conversation.Info, error)
	Close(ctx context.Context, conversationID string) error
	SubmitUtterance(ctx context.Context, conversationID, text string, source conversation.Source) (*conversation.Outcome, error)
	SubmitPredefined(ctx context.Context, conversationID, questionID string) (*conversation.Outcome, error)
	Emergency(conversationID string) (*emergency.Snapshot, error)
	ConnectNow(ctx context.Context, conversationID string) (*emergency.Snapshot, error)
	Cancel(ctx context.Context, conversationID string) (crisis.State, error)
}

// ConversationsHandler serves conversation and emergency endpoints.
type ConversationsHandler struct {
	engine ConversationEngine
	logger *logging.Logger
}

// NewConversationsHandler creates a handler backed by engine.
func NewConversationsHandler(engine ConversationEngine, logger *logging.Logger) *ConversationsHandler {
	if engine == nil {
		panic("handlers: conversation engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{engine: engine, logger: logger}
}

// OpenConversationRequest starts or resumes a conversation.
type OpenConversationRequest struct {
	ConversationID string               `json:"conversation_id"`
	Profile        conversation.Profile `json:"profile"`
}

// MessageRequest carries one user utterance.
type MessageRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// CancelResponse reports the escalation state after a cancel.
type CancelResponse struct {
	ConversationID string       `json:"conversation_id"`
	State          crisis.State `json:"state"`
}

// Open handles POST /v1/conversations.
func (h *ConversationsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := h.engine.Open(r.Context(), conversation.OpenRequest{
		ConversationID: req.ConversationID,
		Profile:        req.Profile,
	})
	if err != nil {
		h.fail(w, "open conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Close handles DELETE /v1/conversations/{id}.
func (h *ConversationsHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "close conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles POST /v1/conversations/{id}/messages.
func (h *ConversationsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := h.engine.SubmitUtterance(r.Context(), chi.URLParam(r, "id"), req.Text, conversation.ParseSource(req.Source))
	if err != nil {
		h.fail(w, "submit utterance", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PostPredefined handles POST /v1/conversations/{id}/predefined/{questionID}.
func (h *ConversationsHandler) PostPredefined(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.SubmitPredefined(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "questionID"))
	if err != nil {
		h.fail(w, "submit predefined question", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetEmergency handles GET /v1/conversations/{id}/emergency.
func (h *ConversationsHandler) GetEmergency(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Emergency(chi.URLParam(r, "id"))
	if errors.Is(err, conversation.ErrNoActiveEmergency) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, "get emergency", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ConnectEmergency handles POST /v1/conversations/{id}/emergency/connect. A failed
// call is reported in the snapshot, not as an HTTP error.
func (h *ConversationsHandler) ConnectEmergency(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.ConnectNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if snap != nil && errors.Is(err, emergency.ErrAlreadyConnected) {
			writeJSON(w, http.StatusConflict, snap)
			return
		}
		h.fail(w, "connect emergency", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CancelEmergency handles POST /v1/conversations/{id}/emergency/cancel.
func (h *ConversationsHandler) CancelEmergency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := h.engine.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, "cancel emergency", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{ConversationID: id, State: state})
}

func (h *ConversationsHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("conversation request failed", "op", op, "error", err)
	}
	jsonError(w, publicMessage(err, status), status)
}
