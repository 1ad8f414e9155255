// Package main implements the taskmaster CLI: the HTTP server plus one-shot
// maintenance commands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/auth"
	"github.com/kidandcat/taskmaster/internal/config"
	"github.com/kidandcat/taskmaster/internal/db"
	"github.com/kidandcat/taskmaster/internal/logging"
	"github.com/kidandcat/taskmaster/internal/push"
	"github.com/kidandcat/taskmaster/internal/reminder"
)

var (
	// configPath is an optional YAML file layered under TASKMASTER_* env vars.
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskmaster",
	Short: "Task list backend with Web Push reminders",
	Long: `taskmaster serves the task list JSON API and sends Web Push reminders
for tasks whose reminder time has come.

Configuration is read from an optional YAML file and TASKMASTER_* environment
variables, e.g. TASKMASTER_PUSH_VAPID_PRIVATE_KEY.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "taskmaster.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkDueCmd)
	rootCmd.AddCommand(vapidKeysCmd)
}

// app holds everything built from the configuration. job is nil and
// publicKey empty when push is disabled.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *db.DB
	redis     *redis.Client
	resolver  *auth.Resolver
	registry  *prometheus.Registry
	job       *reminder.Job
	publicKey string
}

// bootstrap loads config, opens and migrates the database, and wires the
// identity resolver and, when VAPID keys are present, the reminder job.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var cache auth.Cache
	if cfg.Redis.Addr != "" {
		a.redis = auth.NewRedisClient(cfg.Redis)
		rc := auth.NewRedisCache(a.redis, cfg.Redis.TTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, identity cache will miss", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			logger.Info("identity cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
		cache = rc
	}
	a.resolver = auth.NewResolver(store, cache, logger.Named("auth"))

	if !cfg.PushEnabled() {
		logger.Warn("VAPID keys not configured, push notifications disabled")
		return a, nil
	}
	dispatcher, err := push.NewDispatcher(push.VAPID{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subject:    cfg.Push.Subject,
		TTL:        cfg.Push.TTL,
		Urgency:    cfg.Push.Urgency,
	}, logger.Named("push"), push.WithHTTPClient(&http.Client{Timeout: cfg.Push.Timeout}))
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.job = reminder.NewJob(store, store, dispatcher, reminder.Options{
		Concurrency: cfg.Reminder.Concurrency,
		Title:       cfg.Reminder.Title,
		Icon:        cfg.ResolveURL(cfg.Reminder.Icon),
		Badge:       cfg.ResolveURL(cfg.Reminder.Badge),
		URL:         cfg.ResolveURL(cfg.Reminder.URL),
		Location:    loc,
	}, logger.Named("reminder"), reminder.NewMetrics(a.registry))
	a.publicKey = dispatcher.PublicKey()
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	a.logger.Sync()
}
