package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/devices"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/principals"
	"github.com/wardenhq/warden/pkg/push"
	"github.com/wardenhq/warden/pkg/sessions"
	"github.com/wardenhq/warden/pkg/snapshots"
	"github.com/wardenhq/warden/pkg/storage"
	"github.com/wardenhq/warden/pkg/suspension"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	observability.SetupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracing(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Tracing.Endpoint,
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: cfg.Tracing.ServiceVersion,
			Insecure:       cfg.Tracing.Insecure,
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logrus.WithError(err).Warn("tracer shutdown failed")
			}
		}()
	}

	db, err := storage.Connect(cfg.Postgres)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		logrus.WithError(err).Fatal("failed to run migrations")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	hierarchy := principals.NewHierarchy(db)

	sessionStore, err := sessions.NewStore(cfg.Redis, cfg.Sessions.TTL, hierarchy)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}
	defer sessionStore.Close()

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize audit logger")
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.SMTP.Enabled {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	}

	engine := suspension.NewEngine(db, suspension.Deps{
		Snapshots: snapshots.NewStore(),
		Devices:   devices.NewStore(db),
		Resolver:  hierarchy,
		Revoker:   sessionStore,
		Audit:     auditLog,
		Notifier:  notifier,
		Publisher: push.NewRedisPublisher(sessionStore.Client()),
		Retry:     cfg.Revoke,
		Metrics:   metrics,
	})

	router := mux.NewRouter()
	api.NewHandlers(engine, sessionStore, hierarchy).RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, sessionStore.Client()))
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logrus.WithField("addr", healthServer.Addr).Info("health/metrics server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("health server failed")
		}
	}()

	go func() {
		logrus.WithField("addr", apiServer.Addr).Info("warden API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("API server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("API server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("health server shutdown failed")
	}
}
