// Package reminder runs the due-task reminder job: one pass over all push
// subscriptions that sends each user a single message summarizing the tasks
// whose reminder time is the current minute.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kidandcat/taskmaster/internal/db"
	"github.com/kidandcat/taskmaster/internal/push"
)

// ErrNoSubscriptions is returned by SendTest when the user has not subscribed.
var ErrNoSubscriptions = errors.New("no push subscriptions")

type TaskStore interface {
	DueTasks(ctx context.Context, userID, currentTime string, now time.Time) ([]db.Task, error)
	MarkNotified(ctx context.Context, ids []string, at time.Time) error
}

type SubscriptionStore interface {
	ListActiveSubscriptions(ctx context.Context) ([]db.PushSubscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]db.PushSubscription, error)
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
}

type Sender interface {
	Send(ctx context.Context, sub db.PushSubscription, payload push.Payload) error
}

type Options struct {
	Concurrency int
	Title       string
	Icon        string
	Badge       string
	URL         string
	Location    *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Summary is the outcome of one run. Counters are per delivery attempt.
type Summary struct {
	NotificationsSent int       `json:"notificationsSent"`
	Errors            int       `json:"errors"`
	Message           string    `json:"message,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type Job struct {
	tasks   TaskStore
	subs    SubscriptionStore
	sender  Sender
	opts    Options
	logger  *zap.Logger
	metrics *Metrics
}

func NewJob(tasks TaskStore, subs SubscriptionStore, sender Sender, opts Options, logger *zap.Logger, metrics *Metrics) *Job {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Title == "" {
		opts.Title = "TaskMaster Reminder"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Job{tasks: tasks, subs: subs, sender: sender, opts: opts, logger: logger, metrics: metrics}
}

// Run performs one pass and always returns a summary; individual failures
// are logged and counted.
func (j *Job) Run(ctx context.Context) Summary {
	start := time.Now()
	defer func() { j.metrics.RunDuration.Observe(time.Since(start).Seconds()) }()
	j.metrics.Runs.Inc()

	now := j.opts.Now().In(j.opts.Location)
	currentTime := db.Clock(now)
	summary := Summary{Timestamp: now}

	subs, err := j.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		j.logger.Error("list subscriptions", zap.Error(err))
		j.metrics.NotificationErrors.WithLabelValues("storage").Inc()
		summary.Errors++
		return summary
	}
	if len(subs) == 0 {
		summary.Message = "No subscriptions to check"
		return summary
	}

	j.logger.Info("checking due tasks",
		zap.String("time", currentTime),
		zap.Int("subscriptions", len(subs)),
	)

	var order []string
	byUser := make(map[string][]db.PushSubscription)
	for _, s := range subs {
		if _, ok := byUser[s.UserID]; !ok {
			order = append(order, s.UserID)
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	for _, userID := range order {
		due, err := j.tasks.DueTasks(ctx, userID, currentTime, now)
		if err != nil {
			j.logger.Error("query due tasks", zap.String("user_id", userID), zap.Error(err))
			j.metrics.NotificationErrors.WithLabelValues("storage").Inc()
			summary.Errors++
			continue
		}
		if len(due) == 0 {
			continue
		}

		sent, failed := j.fanOut(ctx, byUser[userID], j.reminderPayload(due))
		summary.NotificationsSent += sent
		summary.Errors += failed

		if sent > 0 {
			ids := make([]string, len(due))
			for i, t := range due {
				ids[i] = t.ID
			}
			if err := j.tasks.MarkNotified(ctx, ids, now); err != nil {
				j.logger.Warn("mark tasks notified", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	j.logger.Info("reminder run complete",
		zap.Int("sent", summary.NotificationsSent),
		zap.Int("errors", summary.Errors),
	)
	return summary
}

// SendTest sends a test notification to every subscription of one user.
func (j *Job) SendTest(ctx context.Context, userID, message string) (Summary, error) {
	now := j.opts.Now().In(j.opts.Location)
	subs, err := j.subs.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if len(subs) == 0 {
		return Summary{}, ErrNoSubscriptions
	}
	if message == "" {
		message = "Test notification from TaskMaster!"
	}

	sent, failed := j.fanOut(ctx, subs, push.Payload{
		Title: "TaskMaster Test",
		Body:  message,
		Icon:  j.opts.Icon,
		Badge: j.opts.Badge,
		Data: map[string]any{
			"url":       j.opts.URL,
			"timestamp": now.UTC().Format(time.RFC3339),
		},
	})
	return Summary{
		NotificationsSent: sent,
		Errors:            failed,
		Message:           fmt.Sprintf("Test notification sent to %d devices", sent),
		Timestamp:         now,
	}, nil
}

// fanOut delivers payload to every subscription, removing the ones the
// push service reports gone.
func (j *Job) fanOut(ctx context.Context, subs []db.PushSubscription, payload push.Payload) (sent, failed int) {
	var nSent, nFailed atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.opts.Concurrency)

	for _, sub := range subs {
		g.Go(func() error {
			err := j.sender.Send(ctx, sub, payload)
			if err == nil {
				nSent.Add(1)
				j.metrics.NotificationsSent.Inc()
				return nil
			}
			nFailed.Add(1)

			if !errors.Is(err, push.ErrGone) {
				j.metrics.NotificationErrors.WithLabelValues("transient").Inc()
				j.logger.Warn("push send failed",
					zap.String("user_id", sub.UserID),
					zap.String("endpoint", push.Redact(sub.Endpoint)),
					zap.Error(err),
				)
				return nil
			}

			j.metrics.NotificationErrors.WithLabelValues("gone").Inc()
			if err := j.subs.RemoveSubscription(ctx, sub.UserID, sub.Endpoint); err != nil {
				j.logger.Error("remove gone subscription", zap.String("user_id", sub.UserID), zap.Error(err))
				return nil
			}
			j.metrics.SubscriptionsRemoved.Inc()
			j.logger.Info("removed invalid subscription",
				zap.String("user_id", sub.UserID),
				zap.String("endpoint", push.Redact(sub.Endpoint)),
			)
			return nil
		})
	}
	g.Wait()
	return int(nSent.Load()), int(nFailed.Load())
}

type taskSummary struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ReminderTime *string    `json:"reminderTime,omitempty"`
}

func (j *Job) reminderPayload(due []db.Task) push.Payload {
	body := "You have a task due: " + due[0].Text
	if len(due) > 1 {
		body = fmt.Sprintf("You have tasks due: %d tasks", len(due))
	}
	tasks := make([]taskSummary, len(due))
	for i, t := range due {
		tasks[i] = taskSummary{ID: t.ID, Text: t.Text, DueDate: t.DueDate, ReminderTime: t.ReminderTime}
	}
	return push.Payload{
		Title: j.opts.Title,
		Body:  body,
		Icon:  j.opts.Icon,
		Badge: j.opts.Badge,
		Data: map[string]any{
			"url":   j.opts.URL,
			"tasks": tasks,
		},
	}
}
