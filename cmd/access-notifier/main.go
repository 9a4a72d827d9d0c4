package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/config"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/engine"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/notify"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
)

var runOnce = flag.Bool("run-once", false, "Run one notification sweep and exit")

// access-notifier periodically sweeps project memberships for due expiration
// notices and hands them to the notifier
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("Starting access notifier")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg, observability.NewLogger(cfg.Observability.Level(), os.Stderr))
	if err != nil {
		logger.Fatalf("Failed to initialize access engine: %v", err)
	}
	defer eng.Close()

	sweeper := eng.Sweeper(notify.NewLogNotifier(logger))

	if *runOnce {
		if err := sweep(ctx, sweeper, logger); err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	if err := eng.WatchPolicy(ctx); err != nil {
		logger.Fatalf("Failed to watch policy file: %v", err)
	}

	var server *http.Server
	if cfg.Observability.MetricsEnabled {
		server = startMetricsServer(cfg.Observability.MetricsAddr, eng, logger)
	}

	// Sweeps never overlap; a tick arriving mid-sweep is skipped
	var running sync.Mutex
	job := func() {
		if !running.TryLock() {
			logger.Warn("Previous sweep still running, skipping")
			return
		}
		defer running.Unlock()
		if err := sweep(ctx, sweeper, logger); err != nil {
			logger.Errorf("Sweep failed: %v", err)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Notifier.Schedule, job); err != nil {
		logger.Fatalf("Failed to schedule sweep: %v", err)
	}
	c.Start()
	logger.Infof("Notification sweep schedule: %s", cfg.Notifier.Schedule)

	if cfg.Notifier.RunOnStart {
		go job()
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	cancel()
	stopped := c.Stop()
	<-stopped.Done()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Metrics server shutdown failed: %v", err)
		}
	}

	logger.Info("Notifier stopped")
}

func sweep(ctx context.Context, sweeper *notify.Sweeper, logger *logrus.Logger) error {
	result, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"run_id":          result.RunID,
		"projects":        result.Projects,
		"sent":            result.Sent,
		"already_sent":    result.AlreadySent,
		"failed":          result.Failed,
		"failed_projects": result.FailedProjects,
		"duration":        result.Duration.String(),
	}).Info("Notification sweep completed")
	return nil
}

func startMetricsServer(addr string, eng *engine.Engine, logger *logrus.Logger) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", observability.Handler(eng.Registry)).Methods(http.MethodGet)
	observability.RegisterHealthRoutes(router, eng.HealthChecker())

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return server
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
