// Package handler serves the product's HTML pages and the scheduler API.
package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/checkin"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/notify"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/summary"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/viewtoken"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/week"
)

//go:embed templates/*.html
var templateFS embed.FS

type Pages struct {
	service   *checkin.Service
	users     *store.UserStore
	checkIns  *store.CheckInStore
	notifier  *notify.Notifier
	summaries *summary.Generator
	signer    *viewtoken.Signer
	templates *template.Template
	logger    *slog.Logger
	now       func() time.Time
}

type PagesOption func(*Pages)

// WithClock replaces the time source used for week derivation.
func WithClock(now func() time.Time) PagesOption {
	return func(p *Pages) {
		p.now = now
	}
}

func NewPages(
	service *checkin.Service,
	users *store.UserStore,
	checkIns *store.CheckInStore,
	notifier *notify.Notifier,
	summaries *summary.Generator,
	signer *viewtoken.Signer,
	logger *slog.Logger,
	opts ...PagesOption,
) *Pages {
	p := &Pages{
		service:   service,
		users:     users,
		checkIns:  checkIns,
		notifier:  notifier,
		summaries: summaries,
		signer:    signer,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pages) Landing(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusOK, "landing.html", map[string]any{})
}

// Signup mints a magic link and emails it. Whether or not the address is
// already registered, the response is the same "check your email" page.
func (p *Pages) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	email := r.FormValue("email")

	link, err := p.service.IssueLink(email)
	if err != nil {
		if errors.Is(err, checkin.ErrInvalidEmail) {
			p.render(w, http.StatusUnprocessableEntity, "landing.html", map[string]any{
				"Error": "Please enter a valid email address",
			})
			return
		}
		// Show the same page as success so failures can't be used to
		// probe which addresses exist.
		p.logger.Error("failed to issue link", "error", err)
		p.render(w, http.StatusOK, "check_email.html", map[string]any{"Email": email})
		return
	}

	if err := p.notifier.CheckInLink(link.User, link.URL, link.IsNewUser); err != nil {
		p.logger.Error("failed to send check-in link", "email", link.User.Email, "error", err)
	}

	p.render(w, http.StatusOK, "check_email.html", map[string]any{"Email": link.User.Email})
}

// formValues carries raw form strings so a rejected submission re-renders
// with everything the user typed.
type formValues struct {
	Revenue      string
	Hours        string
	Satisfaction string
	Energy       string
	Q1           string
	Q2           string
	Context      string
}

func formValuesFrom(r *http.Request) formValues {
	return formValues{
		Revenue:      strings.TrimSpace(r.FormValue("revenue")),
		Hours:        strings.TrimSpace(r.FormValue("hours")),
		Satisfaction: strings.TrimSpace(r.FormValue("satisfaction")),
		Energy:       strings.TrimSpace(r.FormValue("energy")),
		Q1:           r.FormValue("q1"),
		Q2:           r.FormValue("q2"),
		Context:      r.FormValue("context"),
	}
}

// CheckInForm renders the week's form behind a valid token. Rendering
// peeks at the token without consuming it, so refreshing the page is safe.
func (p *Pages) CheckInForm(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	mt, err := p.service.PeekToken(token)
	if err != nil {
		p.logger.Error("failed to check token", "error", err)
		p.renderError(w, http.StatusInternalServerError, "Something went wrong", "Please try your link again in a moment.")
		return
	}
	if mt == nil {
		p.render(w, http.StatusGone, "link_expired.html", nil)
		return
	}

	p.renderForm(w, http.StatusOK, mt.UserID, token, formValues{}, "")
}

// Submit processes the check-in form. Input problems re-render the form
// with the user's values intact; only a valid payload consumes the token.
// The claimed userId travels with the form and is checked by the consume
// statement itself, so a mismatch fails the same way an unknown token does.
func (p *Pages) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	token := r.FormValue("token")
	form := formValuesFrom(r)

	userID, err := strconv.ParseInt(r.FormValue("userId"), 10, 64)
	if err != nil {
		p.render(w, http.StatusGone, "link_expired.html", nil)
		return
	}

	sub, parseErr := parseSubmission(form)
	if parseErr != "" {
		p.renderForm(w, http.StatusUnprocessableEntity, userID, token, form, parseErr)
		return
	}

	c, err := p.service.Submit(userID, token, sub)
	if err != nil {
		var ie *checkin.InputError
		switch {
		case errors.As(err, &ie):
			p.renderForm(w, http.StatusUnprocessableEntity, userID, token, form, ie.Message)
		case errors.Is(err, checkin.ErrDuplicate):
			p.renderError(w, http.StatusConflict, "Already submitted",
				"You already submitted a check-in this week. The next one opens next week.")
		case errors.Is(err, checkin.ErrInvalidOrExpired):
			p.render(w, http.StatusGone, "link_expired.html", nil)
		default:
			p.logger.Error("failed to save check-in", "user_id", userID, "error", err)
			p.renderError(w, http.StatusInternalServerError, "Something went wrong", "Your check-in was not saved. Please request a new link.")
		}
		return
	}

	// Summary and confirmation email are best-effort; the submission is
	// already durable.
	summaryText := p.summaries.Generate(r.Context(), c.UserID)
	if summaryText != "" {
		if err := p.checkIns.UpdateSummary(c.ID, summaryText); err != nil {
			p.logger.Error("failed to store summary", "check_in_id", c.ID, "error", err)
		}
		c.AISummary = &summaryText
	}

	user, err := p.users.GetByID(c.UserID)
	if err != nil || user == nil {
		p.logger.Error("failed to load user for confirmation", "user_id", c.UserID, "error", err)
	} else if err := p.notifier.PostSubmit(user, c, summaryText); err != nil {
		p.logger.Error("failed to send confirmation", "user_id", c.UserID, "error", err)
	}

	vt := p.signer.Sign(c.ID, c.UserID)
	http.Redirect(w, r, fmt.Sprintf("/complete/%d?vt=%s", c.ID, vt), http.StatusSeeOther)
}

// Complete shows what was submitted. The vt query parameter proves the
// viewer came through the submit redirect; anything else is a plain 404 so
// check-in IDs can't be enumerated.
func (p *Pages) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	c, err := p.checkIns.GetByID(id)
	if err != nil {
		p.logger.Error("failed to load check-in", "check_in_id", id, "error", err)
		p.renderError(w, http.StatusInternalServerError, "Something went wrong", "Please try again in a moment.")
		return
	}
	if c == nil || !p.signer.Verify(c.ID, c.UserID, r.URL.Query().Get("vt")) {
		http.NotFound(w, r)
		return
	}

	var summaryText string
	if c.AISummary != nil {
		summaryText = *c.AISummary
	}
	p.render(w, http.StatusOK, "complete.html", map[string]any{
		"CheckIn": c,
		"Revenue": notify.FormatMoney(c.Numeric.Revenue),
		"Hours":   strconv.FormatFloat(c.Numeric.Hours, 'f', -1, 64),
		"Summary": summaryText,
	})
}

// parseSubmission converts raw form strings, returning a user-facing
// message for anything that fails to parse. Range checks live in the
// service; this only guards conversion.
func parseSubmission(form formValues) (checkin.Submission, string) {
	var sub checkin.Submission
	var err error

	if sub.Revenue, err = strconv.ParseFloat(form.Revenue, 64); err != nil {
		return sub, "Revenue must be a number"
	}
	if sub.Hours, err = strconv.ParseFloat(form.Hours, 64); err != nil {
		return sub, "Hours must be a number"
	}
	if sub.Satisfaction, err = strconv.Atoi(form.Satisfaction); err != nil {
		return sub, "Satisfaction must be a whole number between 1 and 10"
	}
	if sub.Energy, err = strconv.Atoi(form.Energy); err != nil {
		return sub, "Energy must be a whole number between 1 and 10"
	}
	sub.Q1 = form.Q1
	sub.Q2 = form.Q2
	sub.Context = form.Context
	return sub, ""
}

func (p *Pages) renderForm(w http.ResponseWriter, status int, userID int64, token string, form formValues, errMsg string) {
	rotated := week.Rotate(week.At(p.now()).Week)
	p.render(w, status, "checkin_form.html", map[string]any{
		"UserID":      userID,
		"Token":       token,
		"RotatedWeek": rotated,
		"Questions":   week.Questions(rotated),
		"Form":        form,
		"Error":       errMsg,
	})
}

func (p *Pages) renderError(w http.ResponseWriter, status int, title, message string) {
	p.render(w, status, "error.html", map[string]any{
		"Title":   title,
		"Message": message,
	})
}

func (p *Pages) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.templates.ExecuteTemplate(w, name, data); err != nil {
		p.logger.Error("template error", "template", name, "error", err)
	}
}
