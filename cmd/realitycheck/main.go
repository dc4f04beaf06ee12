package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/backup"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/database"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/email"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/logging"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/server"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/summary"
)

func main() {
	logger := logging.Setup(os.Getenv("REALITY_LOG_LEVEL"), os.Getenv("REALITY_LOG_FORMAT"))

	port := os.Getenv("REALITY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("REALITY_DB_PATH")
	if dbPath == "" {
		dbPath = "realitycheck.db"
	}

	baseURL := os.Getenv("REALITY_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("REALITY_RESEND_API_KEY"),
		os.Getenv("REALITY_FROM_EMAIL"),
		email.WithReplyTo(os.Getenv("REALITY_REPLY_TO")),
	)

	aiClient := summary.NewClient(
		os.Getenv("REALITY_ANTHROPIC_API_KEY"),
		summary.WithModel(os.Getenv("REALITY_ANTHROPIC_MODEL")),
	)

	cfg := server.Config{
		BaseURL:         baseURL,
		CronSecret:      os.Getenv("REALITY_CRON_SECRET"),
		ViewTokenSecret: os.Getenv("REALITY_VIEW_TOKEN_SECRET"),
	}
	if cfg.ViewTokenSecret == "" {
		logger.Warn("REALITY_VIEW_TOKEN_SECRET not set, using a per-process key; completion links will not survive a restart")
	}

	srv := server.New(db, emailClient, aiClient, cfg, logger)

	backupHour := 3
	if h, err := strconv.Atoi(os.Getenv("REALITY_BACKUP_HOUR")); err == nil {
		backupHour = h
	}
	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("REALITY_S3_ENDPOINT"),
			Bucket:    os.Getenv("REALITY_S3_BUCKET"),
			Region:    os.Getenv("REALITY_S3_REGION"),
			AccessKey: os.Getenv("REALITY_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("REALITY_S3_SECRET_KEY"),
		},
		DBPath:     dbPath,
		Passphrase: os.Getenv("REALITY_BACKUP_PASSPHRASE"),
		Hour:       backupHour,
	}, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())
	defer backupMgr.Stop()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine. Token rows are append-only audit
	// state and are never swept; only the rate limiter needs pruning.
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("weekly reality check starting", "addr", ":"+port, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
