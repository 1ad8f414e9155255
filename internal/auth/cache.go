package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kidandcat/taskmaster/internal/config"
	"github.com/kidandcat/taskmaster/internal/db"
)

// Cache holds device id -> user mappings in front of the user table.
type Cache interface {
	Get(ctx context.Context, deviceID string) (*db.User, bool, error)
	Set(ctx context.Context, u *db.User) error
	Delete(ctx context.Context, deviceID string) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*db.User, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, *db.User) error                 { return nil }
func (nopCache) Delete(context.Context, string) error                { return nil }

const keyPrefix = "taskmaster:device:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds the cache client with the configured timeouts.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Ping verifies the connection at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, deviceID string) (*db.User, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var u db.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, false, fmt.Errorf("decode cached user: %w", err)
	}
	return &u, true, nil
}

func (c *RedisCache) Set(ctx context.Context, u *db.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+u.DeviceID, raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, deviceID string) error {
	return c.client.Del(ctx, keyPrefix+deviceID).Err()
}
