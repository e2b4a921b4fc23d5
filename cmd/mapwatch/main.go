package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mkarpov/mapwatch/internal/browser"
	"github.com/mkarpov/mapwatch/internal/config"
	"github.com/mkarpov/mapwatch/internal/damba"
	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/internal/httpapi"
	"github.com/mkarpov/mapwatch/internal/scheduler"
	"github.com/mkarpov/mapwatch/internal/screenshot"
	"github.com/mkarpov/mapwatch/internal/whatsapp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("starting mapwatch")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Screenshot artifact store
	shots, err := screenshot.NewStore(cfg.ScreenshotsDir, logger)
	if err != nil {
		logger.Error("failed to create screenshot store", "error", err)
		os.Exit(1)
	}

	// Headless browser session
	session := browser.NewSession(browser.Options{
		Headless:          cfg.BrowserHeadless,
		NavigationTimeout: cfg.NavigationTimeout,
	}, logger)
	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	// Map-service engine
	dambaSvc := damba.NewService(session, db, shots, damba.Options{
		DambaURL:          cfg.DambaURL,
		PageLoadTimeout:   cfg.PageLoadTimeout,
		NetworkIdleWindow: cfg.NetworkIdleWindow,
		SettleDelay:       cfg.SettleDelay,
	}, logger)

	// Authenticate with the stored credential if one is valid; a missing or
	// expired token is the expected steady state, not a startup failure
	if dambaSvc.IsAuthenticated(ctx) {
		if err := dambaSvc.Authenticate(ctx); err != nil {
			logger.Warn("initial authentication failed", "error", err)
		}
	} else {
		logger.Info("no valid map-service credential, waiting for token")
	}

	// WhatsApp client
	waClient, err := whatsapp.NewClient(cfg.WhatsAppDBPath, logger)
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		os.Exit(1)
	}

	// Delivery scheduler and alert monitor
	sched := scheduler.New(db, dambaSvc, dambaSvc, waClient, logger)
	monitor := scheduler.NewMonitor(db, dambaSvc, dambaSvc, dambaSvc, waClient, cfg.AlertCheckInterval, logger)

	// Inbound-message reactions
	router := whatsapp.NewRouter(db, dambaSvc, dambaSvc, waClient, logger)
	waClient.SetMessageHandler(router.HandleMessage)

	if err := waClient.Connect(ctx); err != nil {
		logger.Error("failed to connect whatsapp client", "error", err)
		os.Exit(1)
	}

	// Restore delivery jobs for enabled groups
	if err := sched.StartAll(ctx); err != nil {
		logger.Error("failed to start delivery jobs", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go monitor.Run(runCtx)

	// HTTP API
	api := httpapi.NewServer(logger, dambaSvc, db, waClient, sched, cfg.ScreenshotsDir, cfg.PublicBaseURL)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}
	go func() {
		logger.Info("http api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-runCtx.Done():
	}

	logger.Info("shutting down...")
	cancel()
	sched.StopAll()
	waClient.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	logger.Info("mapwatch stopped")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	var handler slog.Handler
	logLevel := parseLevel(cfg.LogLevel)

	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(out, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    cfg.LogFile != "",
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
