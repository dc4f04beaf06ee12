// Package server wires stores, services, and handlers into the HTTP
// surface.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/checkin"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/email"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/handler"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/middleware"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/notify"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/summary"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/viewtoken"
)

// Config carries what the server needs beyond its injected clients.
type Config struct {
	BaseURL         string
	CronSecret      string
	ViewTokenSecret string
}

type Server struct {
	db          *sql.DB
	pages       *handler.Pages
	cron        *handler.Cron
	cronSecret  string
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, aiClient *summary.Client, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	tokenStore := store.NewTokenStore(db)
	checkInStore := store.NewCheckInStore(db)
	emailLogStore := store.NewEmailLogStore(db)

	service := checkin.NewService(userStore, tokenStore, checkInStore, cfg.BaseURL)
	notifier := notify.New(emailClient, emailLogStore, logger.With("component", "notify"))
	summaries := summary.NewGenerator(aiClient, checkInStore, logger.With("component", "summary"))
	signer := viewtoken.NewSigner(cfg.ViewTokenSecret)

	return &Server{
		db: db,
		pages: handler.NewPages(service, userStore, checkInStore, notifier, summaries, signer,
			logger.With("component", "pages")),
		cron: handler.NewCron(service, userStore, checkInStore, notifier,
			logger.With("component", "cron")),
		cronSecret:  cfg.CronSecret,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.pages.Landing)
	mux.HandleFunc("POST /signup", s.rateLimitedHandler(s.pages.Signup))
	mux.HandleFunc("GET /check-in/{token}", s.pages.CheckInForm)
	mux.HandleFunc("POST /check-in", s.pages.Submit)
	mux.HandleFunc("GET /complete/{id}", s.pages.Complete)
	mux.HandleFunc("GET /health", s.healthHandler)

	// Scheduler endpoints, guarded by the cron secret
	cronMux := http.NewServeMux()
	cronMux.HandleFunc("GET /api/cron/send-weekly-checkins", s.cron.SendCheckIns)
	cronMux.HandleFunc("GET /api/cron/send-monday-followups", s.cron.MondayFollowups)
	cronAuth := middleware.CronAuth(s.cronSecret, s.logger.With("component", "cron_auth"))
	mux.Handle("/api/cron/", cronAuth(cronMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
