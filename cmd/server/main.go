package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/authcore/internal/app"
	"github.com/example/authcore/internal/bootstrap"
	cfg "github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/httpapi"
	"github.com/example/authcore/internal/logging"
	"github.com/example/authcore/internal/mirror"
)

func main() {
	c, err := cfg.New()
	if err != nil {
		logging.New(os.Stderr, "error").Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, c.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, c, logger)
	stop()
	if err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is done or the listener fails. Every resource opened
// here is released before it returns.
func run(ctx context.Context, c *cfg.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a, err := app.New(ctx, c, logger)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close", "error", err)
		}
	}()

	if _, err := bootstrap.EnsureDefaultAdmin(ctx, a.Credentials, bootstrap.Seed{
		FirstName: c.AdminFirstName,
		LastName:  c.AdminLastName,
		Email:     c.AdminEmail,
		Password:  c.AdminPassword,
	}, logger); err != nil {
		return fmt.Errorf("default admin bootstrap: %w", err)
	}

	if c.MirrorFile != "" {
		reconcileMirror(ctx, a, c.MirrorFile, logger)
	}

	go a.Ledger.RunPruner(ctx, c.LedgerPruneInterval, logger)

	limiter := httpapi.NewRateLimiter(c.LoginRatePerMinute)
	go limiter.RunSweeper(ctx, time.Minute, 10*time.Minute)

	api := httpapi.NewServer(httpapi.Deps{
		Sessions:    a.Sessions,
		Credentials: a.Credentials,
		Mirror:      a.Mirror,
		Ready:       a.Pingers,
		Logger:      logger,
		Limiter:     limiter,
	})
	srv := &http.Server{Handler: api.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", c.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
	}
	logger.Info("server exited properly")
	return nil
}

// reconcileMirror imports the workbook at path. Failures are logged and do
// not stop startup.
func reconcileMirror(ctx context.Context, a *app.App, path string, logger *slog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("mirror reconcile skipped", "file", path, "error", err)
		return
	}
	defer f.Close()

	records, err := mirror.ReadWorkbook(f)
	if err != nil {
		logger.Warn("mirror reconcile skipped", "file", path, "error", err)
		return
	}
	if _, err := a.Mirror.Reconcile(ctx, records); err != nil {
		logger.Warn("mirror reconcile interrupted", "file", path, "error", err)
	}
}
