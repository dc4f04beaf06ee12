package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/checkin"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/notify"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
)

// Cron implements the scheduler endpoints. Auth lives in middleware; these
// handlers assume the caller already presented the cron secret.
type Cron struct {
	service  *checkin.Service
	users    *store.UserStore
	checkIns *store.CheckInStore
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type CronOption func(*Cron)

// WithCronClock replaces the time source for the followup window.
func WithCronClock(now func() time.Time) CronOption {
	return func(c *Cron) {
		c.now = now
	}
}

func NewCron(
	service *checkin.Service,
	users *store.UserStore,
	checkIns *store.CheckInStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
	opts ...CronOption,
) *Cron {
	c := &Cron{
		service:  service,
		users:    users,
		checkIns: checkIns,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sweepResult struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// SendCheckIns mints a fresh link for every user and emails it. One user's
// failure never stops the sweep.
func (c *Cron) SendCheckIns(w http.ResponseWriter, r *http.Request) {
	users, err := c.users.List()
	if err != nil {
		c.logger.Error("failed to list users", "error", err)
		http.Error(w, "Failed to fetch users", http.StatusInternalServerError)
		return
	}

	if len(users) == 0 {
		writeJSON(w, sweepResult{Message: "No users to send check-ins to"})
		return
	}

	var sent, failed int
	for _, u := range users {
		link, err := c.service.IssueLink(u.Email)
		if err != nil {
			c.logger.Error("failed to issue link", "email", u.Email, "error", err)
			failed++
			continue
		}
		if err := c.notifier.CheckInLink(link.User, link.URL, false); err != nil {
			c.logger.Error("failed to send check-in link", "email", u.Email, "error", err)
			failed++
			continue
		}
		sent++
	}

	c.logger.Info("weekly check-in sweep complete", "total", len(users), "sent", sent, "failed", failed)
	writeJSON(w, sweepResult{
		Message: "Weekly check-ins sent",
		Total:   len(users),
		Sent:    sent,
		Failed:  failed,
	})
}

// MondayFollowups sends the recap for check-ins submitted 7 to 10 days
// ago. The window is wider than a week so a late Monday run or early
// submission still gets picked up; one recap per user, newest check-in
// wins.
func (c *Cron) MondayFollowups(w http.ResponseWriter, r *http.Request) {
	now := c.now()
	from := now.AddDate(0, 0, -10)
	to := now.AddDate(0, 0, -7)

	checkIns, err := c.checkIns.ListSubmittedBetween(from, to)
	if err != nil {
		c.logger.Error("failed to list check-ins", "error", err)
		http.Error(w, "Failed to fetch check-ins", http.StatusInternalServerError)
		return
	}

	if len(checkIns) == 0 {
		writeJSON(w, sweepResult{Message: "No check-ins from last week to follow up on"})
		return
	}

	// Results come newest first, so the first check-in seen per user is
	// the one to recap.
	latest := make(map[int64]*model.CheckIn)
	var order []int64
	for i := range checkIns {
		ci := &checkIns[i]
		if _, ok := latest[ci.UserID]; !ok {
			latest[ci.UserID] = ci
			order = append(order, ci.UserID)
		}
	}

	var sent, failed int
	for _, userID := range order {
		ci := latest[userID]
		user, err := c.users.GetByID(userID)
		if err != nil || user == nil {
			c.logger.Error("failed to load user for recap", "user_id", userID, "error", err)
			failed++
			continue
		}

		highlight := ci.Narrative.Q1
		if highlight == "" {
			highlight = ci.Narrative.Q2
		}

		if err := c.notifier.MondayRecap(user, ci, highlight); err != nil {
			c.logger.Error("failed to send recap", "email", user.Email, "error", err)
			failed++
			continue
		}
		sent++
	}

	c.logger.Info("monday followup sweep complete", "total", len(order), "sent", sent, "failed", failed)
	writeJSON(w, sweepResult{
		Message: "Monday follow-ups sent",
		Total:   len(order),
		Sent:    sent,
		Failed:  failed,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
