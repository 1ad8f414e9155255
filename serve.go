package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/api"
	"github.com/kidandcat/taskmaster/internal/reminder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Reminders are triggered by an external scheduler calling
GET /api/cron/check-due-tasks, or in-process when cron.interval is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	if a.cfg.Cron.Secret == "" {
		a.logger.Warn("cron.secret not set, /api/cron/check-due-tasks will reject every request")
	}

	server := api.NewServer(api.Deps{
		Store:          a.store,
		Resolver:       a.resolver,
		Job:            a.job,
		VAPIDPublicKey: a.publicKey,
		CronSecret:     a.cfg.Cron.Secret,
		RateLimit:      a.cfg.RateLimit,
		Location:       loc,
		Gatherer:       a.registry,
		Logger:         a.logger.Named("http"),
	})

	if a.job != nil && a.cfg.Cron.Interval > 0 {
		go reminder.NewScheduler(a.job, a.cfg.Cron.Interval, a.logger.Named("scheduler")).Start(ctx)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("TaskMaster running", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
