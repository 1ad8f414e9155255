package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const userColumns = "id, device_id, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.DeviceID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) GetUserByDevice(ctx context.Context, deviceID string) (*User, error) {
	u, err := scanUser(d.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE device_id = ?", deviceID))
	if err != nil {
		return nil, wrap("query user", err)
	}
	return u, nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(d.queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, wrap("query user", err)
	}
	return u, nil
}

func (d *DB) CreateUser(ctx context.Context, deviceID string) (*User, error) {
	if deviceID == "" {
		return nil, &ValidationError{Field: "deviceId", Reason: "is required"}
	}
	now := time.Now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := d.exec(ctx,
		"INSERT INTO users (id, device_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
		u.ID, u.DeviceID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, wrap("insert user", err)
	}
	return u, nil
}

// DeleteUser removes the user; tasks and subscriptions go with it.
func (d *DB) DeleteUser(ctx context.Context, id string) error {
	_, err := d.exec(ctx, "DELETE FROM users WHERE id = ?", id)
	return wrap("delete user", err)
}
