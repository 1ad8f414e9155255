package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const subscriptionColumns = "id, user_id, endpoint, p256dh, auth, created_at"

func scanSubscription(row interface{ Scan(...any) error }) (*PushSubscription, error) {
	var s PushSubscription
	if err := row.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSubscription upserts on (user_id, endpoint); an existing row keeps its
// id and gets the new keys.
func (d *DB) SaveSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) (*PushSubscription, error) {
	switch {
	case endpoint == "":
		return nil, &ValidationError{Field: "endpoint", Reason: "is required"}
	case p256dh == "":
		return nil, &ValidationError{Field: "keys.p256dh", Reason: "is required"}
	case auth == "":
		return nil, &ValidationError{Field: "keys.auth", Reason: "is required"}
	}

	_, err := d.exec(ctx, `INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			created_at = excluded.created_at`,
		uuid.NewString(), userID, endpoint, p256dh, auth, time.Now().UTC())
	if err != nil {
		return nil, wrap("upsert subscription", err)
	}

	s, err := scanSubscription(d.queryRow(ctx,
		"SELECT "+subscriptionColumns+" FROM push_subscriptions WHERE user_id = ? AND endpoint = ?",
		userID, endpoint))
	if err != nil {
		return nil, wrap("query subscription", err)
	}
	return s, nil
}

func (d *DB) ListSubscriptionsByUser(ctx context.Context, userID string) ([]PushSubscription, error) {
	return d.listSubscriptions(ctx,
		"SELECT "+subscriptionColumns+" FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC",
		userID)
}

// ListActiveSubscriptions returns every subscription whose owner still exists.
func (d *DB) ListActiveSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	return d.listSubscriptions(ctx, `SELECT ps.id, ps.user_id, ps.endpoint, ps.p256dh, ps.auth, ps.created_at
		FROM push_subscriptions ps
		INNER JOIN users u ON ps.user_id = u.id`)
}

func (d *DB) listSubscriptions(ctx context.Context, query string, args ...any) ([]PushSubscription, error) {
	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, wrap("query subscriptions", err)
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, wrap("scan subscription", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate subscriptions", err)
	}
	return subs, nil
}

// RemoveSubscription is a no-op when the row does not exist.
func (d *DB) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	_, err := d.exec(ctx,
		"DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?", userID, endpoint)
	return wrap("delete subscription", err)
}
