package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/veil-waf/veil-detect/internal/config"
	"github.com/veil-waf/veil-detect/internal/db"
	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/guard"
	"github.com/veil-waf/veil-detect/internal/handlers"
	"github.com/veil-waf/veil-detect/internal/metrics"
	"github.com/veil-waf/veil-detect/internal/proxy"
	"github.com/veil-waf/veil-detect/internal/ratelimit"
	"github.com/veil-waf/veil-detect/internal/report"
	"github.com/veil-waf/veil-detect/internal/server"
	"github.com/veil-waf/veil-detect/internal/sse"
	"github.com/veil-waf/veil-detect/internal/ws"
)

func main() {
	cfg, err := config.Load(viper.New())
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := server.SetupLogger(server.LogOptions{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sseHub := sse.NewHub(logger)

	// Storage: PostgreSQL when configured, otherwise an in-memory ring.
	var (
		store    db.Store
		recorder *report.Recorder
		database *db.DB
	)
	if cfg.DatabaseURL != "" {
		database, err = db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "err", err)
			os.Exit(1)
		}
		store = database
	} else {
		logger.Warn("DATABASE_URL not set, attack logs are kept in memory")
		store = db.NewMemoryStore(0)
	}

	wsManager := ws.NewManager(store, logger)
	if database != nil {
		// Postgres fans inserts out through NOTIFY, which also covers
		// records written by other replicas.
		recorder = report.NewRecorder(store)
		pgListener := sse.NewPGListener(database, func(l db.AttackLog) {
			sseHub.PublishAttack(l)
			wsManager.PublishAttack(l)
		}, logger)
		go server.RunWithRecovery(ctx, logger, "pg-listener", pgListener.Listen)
	} else {
		recorder = report.NewRecorder(store, sseHub, wsManager)
	}

	// Attack reporting
	var reporter report.Reporter = report.NewStoreReporter(recorder)
	if cfg.LogServiceURL != "" {
		reporter = report.NewHTTPReporter(cfg.LogServiceURL)
		logger.Info("reporting attacks to log service", "url", cfg.LogServiceURL)
	}
	dispatcher := report.NewDispatcher(reporter, cfg.ReportQueueSize, m, logger)
	go server.RunWithRecovery(ctx, logger, "report-dispatcher", dispatcher.Run)

	// Detection engine
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Warn("rules loaded with warnings", "path", cfg.RulesPath, "err", err)
	}
	engine := detect.New(rules, detect.WithLogger(logger))
	inspector := guard.NewInspector(engine, dispatcher, m, logger)

	if cfg.WatchRules {
		go server.RunWithRecovery(ctx, logger, "rules-watcher", func(ctx context.Context) {
			err := config.WatchRules(ctx, cfg.RulesPath, logger, func(next detect.Config, warnings error) {
				engine.Reload(next)
				m.RulesReloaded(warnings != nil)
			})
			if err != nil {
				logger.Error("rules watcher stopped", "err", err)
			}
		})
	}

	// Drop login history and rate-limit entries that have aged out.
	limiter := ratelimit.New()
	go server.RunWithRecovery(ctx, logger, "sweeper", func(ctx context.Context) {
		server.RunTicker(ctx, cfg.SweepInterval, func() {
			logins := engine.Tracker().Sweep(engine.Config().BruteForceWindow)
			clients := limiter.Sweep(time.Minute)
			if logins+clients > 0 {
				logger.Debug("swept sliding windows", "login_sources", logins, "rate_limit_keys", clients)
			}
		})
	})

	routes := handlers.Routes{
		Detect:  handlers.NewDetectHandler(inspector, limiter, ratelimit.Bucket{MaxRequests: cfg.DetectRatePerMinute, Window: time.Minute}, logger),
		Logs:    handlers.NewLogsHandler(store, recorder, logger),
		Stream:  handlers.NewStreamHandler(sseHub, store, logger),
		WS:      wsManager.HandleWS,
		Metrics: m.Handler(),
	}
	if cfg.UpstreamURL != "" {
		proxyHandler, err := proxy.NewHandler(cfg.UpstreamURL, logger)
		if err != nil {
			logger.Error("invalid upstream", "err", err)
			os.Exit(1)
		}
		routes.Proxy = proxyHandler.Guarded(inspector)
		logger.Info("guarding upstream", "url", cfg.UpstreamURL, "prefix", proxy.Prefix)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel() // stop background goroutines

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
		// Deliver whatever the guard queued before the listener closed.
		dispatcher.Drain(shutdownCtx)
	}()

	logger.Info("server starting", "port", cfg.Port, "mode", engine.Config().Mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-stopped
	logger.Info("server stopped", "reports_dropped", dispatcher.Dropped())
}
