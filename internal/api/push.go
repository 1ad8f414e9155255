package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/auth"
	"github.com/kidandcat/taskmaster/internal/reminder"
)

const pushDisabled = "Push notifications are not configured"

// cronRunTimeout bounds a triggered run once it is detached from the request.
const cronRunTimeout = 5 * time.Minute

func (s *Server) handleVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" {
		writeError(w, http.StatusServiceUnavailable, pushDisabled)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.publicKey})
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		writeError(w, http.StatusServiceUnavailable, pushDisabled)
		return
	}
	u := auth.CurrentUser(r)

	var req struct {
		Message string `json:"message"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	summary, err := s.job.SendTest(r.Context(), u.ID, req.Message)
	if errors.Is(err, reminder.ErrNoSubscriptions) {
		writeError(w, http.StatusNotFound, "No push subscriptions found")
		return
	}
	if err != nil {
		s.fail(w, r, err, "Failed to send test notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           summary.Message,
		"notificationsSent": summary.NotificationsSent,
		"errors":            summary.Errors,
	})
}

// authorizedCron reports whether the request carries the configured bearer
// secret. An unset secret rejects every request.
func (s *Server) authorizedCron(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

func (s *Server) handleCheckDueTasks(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedCron(r) {
		s.logger.Warn("rejected cron request", zap.String("remote", clientIP(r)))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.job == nil {
		writeError(w, http.StatusServiceUnavailable, pushDisabled)
		return
	}

	// A run completes even if the scheduler hangs up mid-request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cronRunTimeout)
	defer cancel()
	summary := s.job.Run(ctx)
	resp := map[string]any{
		"success":           true,
		"notificationsSent": summary.NotificationsSent,
		"errors":            summary.Errors,
		"timestamp":         summary.Timestamp,
	}
	if summary.Message != "" {
		resp["message"] = summary.Message
	}
	writeJSON(w, http.StatusOK, resp)
}
