package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chinda73971177/soc/internal/api"
	"github.com/chinda73971177/soc/internal/assets"
	"github.com/chinda73971177/soc/internal/bus"
	"github.com/chinda73971177/soc/internal/capture"
	"github.com/chinda73971177/soc/internal/config"
	"github.com/chinda73971177/soc/internal/feed"
	"github.com/chinda73971177/soc/internal/gate"
	"github.com/chinda73971177/soc/internal/ingest"
	"github.com/chinda73971177/soc/internal/metrics"
	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/normalize"
	"github.com/chinda73971177/soc/internal/notify"
	"github.com/chinda73971177/soc/internal/rules"
	"github.com/chinda73971177/soc/internal/scan"
	"github.com/chinda73971177/soc/internal/sched"
	"github.com/chinda73971177/soc/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("Starting SOC pipeline",
		"http_addr", cfg.HTTPAddr,
		"demo_mode", cfg.DemoMode,
		"capture_enabled", cfg.CaptureEnabled,
		"log_level", cfg.LogLevel)

	// Persistence: Postgres when configured, in-memory otherwise.
	var st store.Store
	var health func() error
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL, cfg.DBConnectMaxWait, logger)
		if err != nil {
			logger.Error("Failed to initialize database store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		health = pg.Health
		logger.Info("Connected to PostgreSQL database")
	} else {
		st = store.NewMemoryStore(0)
		logger.Warn("No database configured, using in-memory store")
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Notification gate and channels.
	g, err := gate.New(cfg.Thresholds(), cfg.NotifiedCap)
	if err != nil {
		logger.Error("Failed to initialize notification gate", "error", err)
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(g, logger,
		notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID),
		notify.NewWhatsApp(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.WhatsAppFrom, cfg.WhatsAppTo),
	)
	logger.Info("Notification channels configured", "channels", dispatcher.Channels())

	// Optional alert stream.
	var publisher *bus.Publisher
	if cfg.NATSURL != "" {
		publisher, err = bus.NewPublisher(cfg.NATSURL, "", logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// sink is the single path every new alert takes: persist, publish,
	// notify.
	sink := func(ctx context.Context, alert model.Alert) {
		if err := st.CreateAlert(ctx, &alert); err != nil {
			logger.Error("Failed to persist alert", "alert_id", alert.ID, "error", err)
			return
		}
		m.AlertsCreatedTotal.WithLabelValues(string(alert.Severity), alert.AlertType).Inc()
		if publisher != nil {
			publisher.PublishAlert(alert)
		}
		delivered := dispatcher.Dispatch(ctx, alert)
		if len(delivered) == 0 {
			m.NotificationsSuppressed.Inc()
		}
		for _, ch := range delivered {
			m.NotificationsSentTotal.WithLabelValues(ch).Inc()
		}
	}

	// Network settings document and inventory reconciliation.
	netcfg, err := config.NewNetworkStore(cfg.NetworkConfigPath)
	if err != nil {
		logger.Error("Failed to load network config", "error", err)
		os.Exit(1)
	}
	reconciler := assets.NewReconciler(st, st, assets.AlertSink(sink), assets.Options{
		AlertOnNewHost:    netcfg.Get().AlertOnNewHost,
		AlertOnPortChange: netcfg.Get().AlertOnPortChange,
	}, logger)

	var scanner scan.Scanner
	if cfg.DemoMode {
		scanner = scan.NewSyntheticScanner()
	} else {
		scanner = scan.NewConnectScanner(0, 0)
	}
	runner := scan.NewRunner(scanner, st, reconciler, logger)
	runner.OnFinish = func(status string) {
		m.ScansTotal.WithLabelValues(status).Inc()
	}

	// Detection rules and capture loop.
	loader := rules.NewLoader(cfg.RulesDir, logger)
	ruleSet, err := loader.Load()
	if err != nil {
		logger.Error("Failed to load detection rules", "error", err)
		os.Exit(1)
	}
	matcher := rules.NewMatcher(ruleSet)
	engineFile := rules.NewEngineRulesFile(cfg.EngineRulesFile)

	if cfg.CaptureEnabled {
		source := capture.NewSyntheticSource(cfg.CaptureInterval, 0)
		engine := capture.NewEngine(source, matcher, func(ctx context.Context, alert model.Alert) {
			m.PacketsMatchedTotal.Inc()
			sink(ctx, alert)
		}, cfg.AlertQueueSize, logger)
		go func() {
			if err := engine.Run(ctx); err != nil {
				logger.Error("Capture engine failed", "error", err)
			}
		}()
	}

	// Engine feed polling and auto scans.
	reader, err := feed.NewReader(cfg.EveFilePath, cfg.DemoMode, logger)
	if err != nil {
		logger.Error("Failed to initialize feed reader", "error", err)
		os.Exit(1)
	}
	scheduler := sched.New(logger)
	scheduler.Every(ctx, "feed-poll", cfg.FeedPollInterval, func(ctx context.Context) {
		m.FeedPollsTotal.Inc()
		alerts, err := reader.Poll(cfg.FeedLimit, cfg.FeedMaxAge)
		if err != nil {
			logger.Error("Feed poll failed", "error", err)
			return
		}
		for _, alert := range alerts {
			sink(ctx, alert)
		}
	})
	scheduler.EveryDynamic(ctx, "auto-scan", func() (time.Duration, bool) {
		nc := netcfg.Get()
		return time.Duration(nc.ScanIntervalMinutes) * time.Minute, nc.AutoScanEnabled
	}, func(ctx context.Context) {
		nc := netcfg.Get()
		if err := runner.Run(ctx, nc.NetworkRange, nc.ScanType); err != nil {
			logger.Error("Auto scan failed", "error", err)
		}
	})

	// HTTP API.
	normalizer := normalize.New(logger)
	ingestSvc := ingest.NewService(normalizer, st, cfg.UploadMaxBytes, logger)
	ingestSvc.OnIngest = func(indexed, failed int) {
		m.EventsIndexedTotal.Add(float64(indexed))
		m.EventsFailedTotal.Add(float64(failed))
	}
	handler := api.NewHandler(st, dispatcher, runner, ingestSvc, netcfg, matcher, engineFile, health, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("SOC pipeline started successfully")

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	scheduler.Wait()
	runner.Wait()
	logger.Info("Shutdown complete")
}
