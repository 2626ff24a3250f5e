package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a bounded request body. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrUnknownConversation),
		errors.Is(err, answers.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrEmptyUtterance),
		errors.Is(err, answers.ErrInvalidQuestion):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrNoActiveEmergency),
		errors.Is(err, emergency.ErrSessionTerminated),
		errors.Is(err, emergency.ErrAlreadyConnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error text behind 5xx responses.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
