package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// QuestionsHandler exposes the predefined bank and each user's custom questions.
type QuestionsHandler struct {
	bank   *answers.Bank
	store  answers.CustomStore
	logger *logging.Logger
}

// NewQuestionsHandler creates a questions handler. A nil bank uses the embedded one.
func NewQuestionsHandler(bank *answers.Bank, store answers.CustomStore, logger *logging.Logger) *QuestionsHandler {
	if store == nil {
		panic("handlers: custom question store cannot be nil")
	}
	if bank == nil {
		bank = answers.DefaultBank()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QuestionsHandler{bank: bank, store: store, logger: logger}
}

// QuestionsResponse lists every question a user can tap.
type QuestionsResponse struct {
	Predefined []answers.Answer `json:"predefined"`
	Custom     []answers.Answer `json:"custom"`
}

// CreateQuestionRequest is a new custom question.
type CreateQuestionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// List handles GET /v1/users/{userID}/questions.
func (h *QuestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		jsonError(w, "missing user id", http.StatusBadRequest)
		return
	}
	custom, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list custom questions", "user_id", userID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, QuestionsResponse{
		Predefined: h.bank.All(),
		Custom:     custom,
	})
}

// Create handles POST /v1/users/{userID}/questions.
func (h *QuestionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		jsonError(w, "missing user id", http.StatusBadRequest)
		return
	}
	var req CreateQuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	q, err := h.store.Add(r.Context(), userID, answers.Answer{
		Question: req.Question,
		Answer:   req.Answer,
		Category: strings.TrimSpace(req.Category),
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to add custom question", "user_id", userID, "error", err)
		}
		jsonError(w, publicMessage(err, status), status)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// Delete handles DELETE /v1/users/{userID}/questions/{questionID}.
func (h *QuestionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	questionID := chi.URLParam(r, "questionID")
	if err := h.store.Delete(r.Context(), userID, questionID); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to delete custom question", "user_id", userID, "error", err)
		}
		jsonError(w, publicMessage(err, status), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
