package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kidandcat/taskmaster/internal/auth"
	"github.com/kidandcat/taskmaster/internal/db"
)

// optionalString distinguishes an absent key from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Layouts accepted for dueDate. Layouts without a zone are read in the
// server's reminder time zone, except a bare date which is UTC midnight.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func (s *Server) parseDueDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.ParseInLocation(layout, v, s.location); err == nil {
			return &t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return &t, nil
	}
	return nil, &db.ValidationError{Field: "dueDate", Reason: "must be an ISO 8601 date or date-time"}
}

func emptyToNil(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	tasks, err := s.store.ListTasksByUser(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []db.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	var req struct {
		Text         string  `json:"text"`
		DueDate      *string `json:"dueDate"`
		ReminderTime *string `json:"reminderTime"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var due *time.Time
	if req.DueDate != nil {
		var err error
		if due, err = s.parseDueDate(*req.DueDate); err != nil {
			s.fail(w, r, err, "Failed to create task")
			return
		}
	}

	task, err := s.store.CreateTask(r.Context(), u.ID, req.Text, due, emptyToNil(req.ReminderTime))
	if err != nil {
		s.fail(w, r, err, "Failed to create task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	var req struct {
		ID           string         `json:"id"`
		Text         *string        `json:"text"`
		Completed    *bool          `json:"completed"`
		DueDate      optionalString `json:"dueDate"`
		ReminderTime optionalString `json:"reminderTime"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Task ID is required")
		return
	}
	if !s.ownsTask(w, r, u.ID, req.ID, "Failed to update task") {
		return
	}

	update := db.TaskUpdate{Text: req.Text, Completed: req.Completed}
	if req.DueDate.Set {
		var (
			due *time.Time
			err error
		)
		if req.DueDate.Value != nil {
			if due, err = s.parseDueDate(*req.DueDate.Value); err != nil {
				s.fail(w, r, err, "Failed to update task")
				return
			}
		}
		update.DueDate = db.Nullable[time.Time]{Set: true, Value: due}
	}
	if req.ReminderTime.Set {
		update.ReminderTime = db.Nullable[string]{Set: true, Value: emptyToNil(req.ReminderTime.Value)}
	}

	task, err := s.store.UpdateTask(r.Context(), req.ID, update)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		s.fail(w, r, err, "Failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	u := auth.CurrentUser(r)
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Task ID is required")
		return
	}
	if !s.ownsTask(w, r, u.ID, id, "Failed to delete task") {
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.fail(w, r, err, "Failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ownsTask writes a 404 and returns false unless the task exists and belongs
// to userID.
func (s *Server) ownsTask(w http.ResponseWriter, r *http.Request, userID, taskID, msg string) bool {
	t, err := s.store.GetTask(r.Context(), taskID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && t.UserID != userID) {
		writeError(w, http.StatusNotFound, "Task not found")
		return false
	}
	if err != nil {
		s.fail(w, r, err, msg)
		return false
	}
	return true
}
