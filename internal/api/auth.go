package api

import (
	"net/http"
	"time"
)

type userResponse struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := s.resolver.Resolve(r.Context(), req.DeviceID)
	if err != nil {
		s.fail(w, r, err, "Authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": userResponse{
			ID:        u.ID,
			DeviceID:  u.DeviceID,
			CreatedAt: u.CreatedAt,
		},
	})
}
