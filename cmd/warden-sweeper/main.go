package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/retention"
	"github.com/wardenhq/warden/pkg/snapshots"
	"github.com/wardenhq/warden/pkg/storage"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	observability.SetupLogging(cfg.LogLevel)

	ctx := context.Background()

	db, err := storage.Connect(cfg.Postgres)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize audit logger")
	}

	var archiver retention.Archiver
	if cfg.Archive.Enabled {
		archiver, err = retention.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize snapshot archiver")
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sweeper := retention.NewSweeper(db, snapshots.NewStore(), auditLog, archiver, cfg.Retention, metrics)

	if *runOnce {
		if err := sweeper.Run(ctx); err != nil {
			logrus.WithError(err).Fatal("sweep failed")
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Retention.Schedule, func() {
		if err := sweeper.Run(context.Background()); err != nil {
			logrus.WithError(err).Error("scheduled sweep failed")
		}
	}); err != nil {
		logrus.WithError(err).Fatal("failed to schedule sweep")
	}
	c.Start()
	logrus.WithField("schedule", cfg.Retention.Schedule).Info("retention sweeper started")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler(registry))
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.HealthPort
		if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("metrics server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("shutting down")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logrus.Info("sweeper stopped")
}
