package api

import (
	"net/http"
	"strings"

	"github.com/kidandcat/taskmaster/internal/auth"
	"github.com/kidandcat/taskmaster/internal/db"
)

func (s *Server) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	subs, err := s.store.ListSubscriptionsByUser(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err, "Failed to get subscriptions")
		return
	}
	if subs == nil {
		subs = []db.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sub, err := s.store.SaveSubscription(r.Context(), u.ID,
		strings.TrimSpace(req.Endpoint), req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		s.fail(w, r, err, "Failed to save subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subscription": sub})
}

// handleDeleteSubscription takes the endpoint from the JSON body, falling
// back to the endpoint query parameter.
func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	endpoint := r.URL.Query().Get("endpoint")
	if r.ContentLength != 0 {
		var req struct {
			Endpoint string `json:"endpoint"`
		}
		if err := decodeJSON(w, r, &req); err == nil && req.Endpoint != "" {
			endpoint = req.Endpoint
		}
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		writeError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	if err := s.store.RemoveSubscription(r.Context(), u.ID, endpoint); err != nil {
		s.fail(w, r, err, "Failed to delete subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
