package handlers

import (
	"net/http"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

// HotlinesHandler serves the static crisis numbers.
type HotlinesHandler struct {
	settings emergency.Settings
}

func NewHotlinesHandler(settings emergency.Settings) *HotlinesHandler {
	return &HotlinesHandler{settings: settings}
}

// HotlinesResponse lists the numbers to show a user in crisis.
type HotlinesResponse struct {
	Hotlines []emergency.Hotline `json:"hotlines"`
}

// Get handles GET /v1/hotlines. The optional contact_name and contact_phone query
// parameters add the user's emergency contact.
func (h *HotlinesHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contact := emergency.Contact{
		Name:  q.Get("contact_name"),
		Phone: q.Get("contact_phone"),
	}
	writeJSON(w, http.StatusOK, HotlinesResponse{
		Hotlines: emergency.Hotlines(h.settings, contact),
	})
}
