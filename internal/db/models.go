package db

import (
	"regexp"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Text         string     `json:"text"`
	Completed    bool       `json:"completed"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReminderTime *string    `json:"reminder_time,omitempty"`
	NotifiedAt   *time.Time `json:"notified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

var reminderTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidReminderTime reports whether s is a 24-hour HH:MM time of day.
func ValidReminderTime(s string) bool {
	return reminderTimeRe.MatchString(s)
}

// Clock formats t as the HH:MM key used to match reminder times.
func Clock(t time.Time) string {
	return t.Format("15:04")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
