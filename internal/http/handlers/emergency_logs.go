package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/http/middleware"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// EmergencyLogLister reads the primary audit store.
type EmergencyLogLister interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// PendingLogLister reads entries parked in the local fallback.
type PendingLogLister interface {
	List(ctx context.Context, limit int64) ([]audit.Entry, error)
}

// AdminEmergencyLogsHandler lists emergency protocol activations for reviewers.
type AdminEmergencyLogsHandler struct {
	store    EmergencyLogLister
	fallback PendingLogLister
	logger   *logging.Logger
}

// NewAdminEmergencyLogsHandler creates the handler. Either source may be nil.
func NewAdminEmergencyLogsHandler(store EmergencyLogLister, fallback PendingLogLister, logger *logging.Logger) *AdminEmergencyLogsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminEmergencyLogsHandler{store: store, fallback: fallback, logger: logger}
}

// EmergencyLogsResponse is a page of audit entries, newest first. Pending entries
// missed the primary store and still sit in the fallback list.
type EmergencyLogsResponse struct {
	Logs    []audit.Entry `json:"logs"`
	Pending []audit.Entry `json:"pending,omitempty"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// List handles GET /admin/emergency-logs.
// Query: conversation_id, user_id, since, until (RFC 3339), limit, offset, include_pending.
func (h *AdminEmergencyLogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil && h.fallback == nil {
		jsonError(w, "audit storage not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		ConversationID: q.Get("conversation_id"),
		UserID:         q.Get("user_id"),
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	filter.Limit, filter.Offset = limit, offset

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		jsonError(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		jsonError(w, "invalid until: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := EmergencyLogsResponse{Logs: []audit.Entry{}, Limit: limit, Offset: offset}
	if h.store != nil {
		logs, err := h.store.List(r.Context(), filter)
		if err != nil {
			h.logger.Error("failed to list emergency logs", "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		if logs != nil {
			resp.Logs = logs
		}
	}

	includePending, _ := strconv.ParseBool(q.Get("include_pending"))
	if h.fallback != nil && (includePending || h.store == nil) {
		pending, err := h.fallback.List(r.Context(), int64(limit))
		if err != nil {
			h.logger.Warn("failed to read fallback emergency logs", "error", err)
		}
		resp.Pending = filterPending(pending, filter)
	}

	// Reads of the audit trail are themselves recorded.
	reviewer, ok := middleware.AdminSubject(r.Context())
	if !ok {
		reviewer = "unknown"
	}
	h.logger.Info("emergency logs read",
		"reviewer", reviewer,
		"conversation_id", filter.ConversationID,
		"user_id", filter.UserID,
		"returned", len(resp.Logs),
		"pending", len(resp.Pending),
	)

	writeJSON(w, http.StatusOK, resp)
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// filterPending applies the listing filter to fallback entries, which are not indexed.
func filterPending(entries []audit.Entry, filter audit.Filter) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if filter.ConversationID != "" && e.ConversationID != filter.ConversationID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if !filter.Since.IsZero() && e.ActivatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.ActivatedAt.After(filter.Until) {
			continue
		}
		out = append(out, e)
	}
	return out
}
