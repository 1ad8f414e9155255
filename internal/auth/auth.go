// Package auth resolves opaque device identifiers to users.
//
// The device id is a bearer credential with no server-side secret or
// expiry: anyone who can read or guess a device id acts as that user.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/db"
)

// DeviceHeader carries the caller's device id on task and subscription requests.
const DeviceHeader = "X-Device-Id"

// UserStore is the slice of db.DB the resolver needs.
type UserStore interface {
	GetUserByDevice(ctx context.Context, deviceID string) (*db.User, error)
	CreateUser(ctx context.Context, deviceID string) (*db.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type Resolver struct {
	store  UserStore
	cache  Cache
	logger *zap.Logger
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(store UserStore, cache Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = nopCache{}
	}
	return &Resolver{store: store, cache: cache, logger: logger}
}

// Resolve returns the user for deviceID, creating one on first contact.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (*db.User, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &db.ValidationError{Field: "deviceId", Reason: "is required"}
	}

	u, err := r.Lookup(ctx, deviceID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	u, err = r.store.CreateUser(ctx, deviceID)
	if err != nil {
		// Lost an insert race against the unique index; the winner's row is the user.
		if existing, lerr := r.store.GetUserByDevice(ctx, deviceID); lerr == nil {
			u = existing
		} else {
			return nil, err
		}
	} else {
		r.logger.Info("created user", zap.String("user_id", u.ID))
	}
	r.remember(ctx, u)
	return u, nil
}

// Lookup returns the existing user for deviceID or db.ErrNotFound. A cache
// hit is trusted without touching the store, so a user removed other than
// through Delete keeps resolving until its cache entry expires.
func (r *Resolver) Lookup(ctx context.Context, deviceID string) (*db.User, error) {
	if deviceID == "" {
		return nil, db.ErrNotFound
	}
	if u, ok, err := r.cache.Get(ctx, deviceID); err != nil {
		r.logger.Warn("identity cache get", zap.Error(err))
	} else if ok {
		return u, nil
	}

	u, err := r.store.GetUserByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, u)
	return u, nil
}

// Delete removes the user with all tasks and subscriptions and evicts it
// from the cache.
func (r *Resolver) Delete(ctx context.Context, u *db.User) error {
	if err := r.store.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, u.DeviceID); err != nil {
		r.logger.Warn("identity cache delete", zap.Error(err))
	}
	return nil
}

func (r *Resolver) remember(ctx context.Context, u *db.User) {
	if err := r.cache.Set(ctx, u); err != nil {
		r.logger.Warn("identity cache set", zap.Error(err))
	}
}

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, u *db.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func CurrentUser(r *http.Request) *db.User {
	if u, ok := r.Context().Value(userKey).(*db.User); ok {
		return u
	}
	return nil
}
