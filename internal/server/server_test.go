package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/database"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/email"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/summary"
)

type env struct {
	router   http.Handler
	users    *store.UserStore
	tokens   *store.TokenStore
	checkIns *store.CheckInStore
	sent     *[]map[string]any
}

func setupEnv(t *testing.T, cronSecret string) *env {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var sent []map[string]any
	resend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]any
		json.NewDecoder(r.Body).Decode(&msg)
		sent = append(sent, msg)
		w.Write([]byte(`{"id": "test-id"}`))
	}))
	t.Cleanup(resend.Close)

	anthropic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [{"type": "text", "text": "Revenue held steady this week."}]}`))
	}))
	t.Cleanup(anthropic.Close)

	emailClient := email.NewClient("test-key", "checkin@example.com", email.WithAPIURL(resend.URL))
	aiClient := summary.NewClient("test-key", summary.WithAPIURL(anthropic.URL))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, emailClient, aiClient, Config{
		BaseURL:         "https://check.example.com",
		CronSecret:      cronSecret,
		ViewTokenSecret: "view-secret",
	}, logger)

	return &env{
		router:   srv.Router(),
		users:    store.NewUserStore(db),
		tokens:   store.NewTokenStore(db),
		checkIns: store.NewCheckInStore(db),
		sent:     &sent,
	}
}

func (e *env) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

var linkPattern = regexp.MustCompile(`/check-in/([0-9a-f]{64})`)

// signup runs the signup flow and extracts the minted token from the
// magic-link email, returning it with its owner's id.
func (e *env) signup(t *testing.T, address string) (string, int64) {
	t.Helper()
	rec := e.postForm(t, "/signup", url.Values{"email": {address}})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d", rec.Code)
	}
	if len(*e.sent) == 0 {
		t.Fatal("expected a magic-link email")
	}
	last := (*e.sent)[len(*e.sent)-1]
	html, _ := last["html"].(string)
	m := linkPattern.FindStringSubmatch(html)
	if m == nil {
		t.Fatalf("no check-in link in email: %s", html)
	}
	token := m[1]
	mt, err := e.tokens.GetByToken(token)
	if err != nil || mt == nil {
		t.Fatalf("minted token not stored: %v", err)
	}
	return token, mt.UserID
}

func validForm(token string, userID int64) url.Values {
	return url.Values{
		"token":        {token},
		"userId":       {strconv.FormatInt(userID, 10)},
		"revenue":      {"4500"},
		"hours":        {"38.5"},
		"satisfaction": {"7"},
		"energy":       {"5"},
		"q1":           {"Raising prices."},
		"q2":           {"Invoicing."},
		"context":      {""},
	}
}

func TestLandingPage(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	rec := e.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Weekly Reality Check") {
		t.Error("expected landing copy")
	}
}

func TestHealth(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	rec := e.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestSignupSendsLink(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	token, userID := e.signup(t, "founder@example.com")
	if len(token) != 64 {
		t.Errorf("token length = %d", len(token))
	}
	if userID == 0 {
		t.Error("expected a persisted user")
	}
}

func TestSignupInvalidEmail(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	rec := e.postForm(t, "/signup", url.Values{"email": {"not-an-email"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "valid email") {
		t.Error("expected validation message")
	}
	if len(*e.sent) != 0 {
		t.Error("expected no email for rejected address")
	}
}

func TestSignupRateLimited(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	var last int
	for i := 0; i < 11; i++ {
		rec := e.postForm(t, "/signup", url.Values{"email": {"founder@example.com"}})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th request status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestCheckInFormRendering(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	rec := e.get(t, "/check-in/"+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, token) {
		t.Error("expected token embedded in form")
	}
	if !strings.Contains(body, `name="userId" value="`+strconv.FormatInt(userID, 10)+`"`) {
		t.Error("expected owner id embedded in form")
	}
	if !strings.Contains(body, "12-week cycle") {
		t.Error("expected cycle heading")
	}

	// Rendering the form must not consume the token.
	mt, _ := e.tokens.GetByToken(token)
	if mt == nil || mt.UsedAt != nil {
		t.Error("expected token untouched after rendering")
	}
}

func TestCheckInFormUnknownToken(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	rec := e.get(t, "/check-in/"+strings.Repeat("f", 64))
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGone)
	}
	if !strings.Contains(rec.Body.String(), "doesn't work anymore") {
		t.Error("expected expired-link copy")
	}
}

func TestSubmitFullFlow(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	rec := e.postForm(t, "/check-in", validForm(token, userID))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/complete/") || !strings.Contains(location, "?vt=") {
		t.Fatalf("unexpected redirect %q", location)
	}

	// The completion page behind the redirect shows the submission.
	rec = e.get(t, location)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "$4,500") {
		t.Error("expected formatted revenue")
	}
	if !strings.Contains(body, "Revenue held steady this week.") {
		t.Error("expected AI summary on completion page")
	}

	// Post-submit confirmation email went out.
	var sawConfirmation bool
	for _, msg := range *e.sent {
		if subj, _ := msg["subject"].(string); strings.Contains(subj, "Check-In Submitted") {
			sawConfirmation = true
		}
	}
	if !sawConfirmation {
		t.Error("expected confirmation email")
	}

	// Token is burned.
	mt, _ := e.tokens.GetByToken(token)
	if mt == nil || mt.UsedAt == nil {
		t.Error("expected token consumed")
	}
}

func TestSubmitTokenReuse(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	if rec := e.postForm(t, "/check-in", validForm(token, userID)); rec.Code != http.StatusSeeOther {
		t.Fatalf("first submit status = %d", rec.Code)
	}
	rec := e.postForm(t, "/check-in", validForm(token, userID))
	if rec.Code != http.StatusGone {
		t.Errorf("reused token status = %d, want %d", rec.Code, http.StatusGone)
	}
}

func TestSubmitWrongOwner(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	rec := e.postForm(t, "/check-in", validForm(token, userID+1))
	if rec.Code != http.StatusGone {
		t.Errorf("wrong owner status = %d, want %d", rec.Code, http.StatusGone)
	}

	// The failed claim must not burn the real owner's token.
	if rec := e.postForm(t, "/check-in", validForm(token, userID)); rec.Code != http.StatusSeeOther {
		t.Errorf("owner submit status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
}

func TestSubmitDuplicateWeek(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	if rec := e.postForm(t, "/check-in", validForm(token, userID)); rec.Code != http.StatusSeeOther {
		t.Fatalf("first submit status = %d", rec.Code)
	}

	second, _ := e.signup(t, "founder@example.com")
	rec := e.postForm(t, "/check-in", validForm(second, userID))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "Already submitted") {
		t.Error("expected duplicate copy")
	}
}

func TestSubmitInvalidInputKeepsToken(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	form := validForm(token, userID)
	form.Set("satisfaction", "11")
	rec := e.postForm(t, "/check-in", form)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Satisfaction must be between 1 and 10") {
		t.Error("expected field message")
	}
	// User's answers survive the re-render.
	if !strings.Contains(rec.Body.String(), "Raising prices.") {
		t.Error("expected form values preserved")
	}

	if rec := e.postForm(t, "/check-in", validForm(token, userID)); rec.Code != http.StatusSeeOther {
		t.Errorf("corrected submit status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
}

func TestSubmitUnparseableNumber(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	form := validForm(token, userID)
	form.Set("revenue", "lots")
	rec := e.postForm(t, "/check-in", form)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Revenue must be a number") {
		t.Error("expected parse message")
	}
}

func TestCompleteRequiresViewToken(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	token, userID := e.signup(t, "founder@example.com")

	rec := e.postForm(t, "/check-in", validForm(token, userID))
	location := rec.Header().Get("Location")
	id := strings.TrimPrefix(location[:strings.Index(location, "?")], "/complete/")

	if rec := e.get(t, "/complete/"+id); rec.Code != http.StatusNotFound {
		t.Errorf("missing vt status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := e.get(t, "/complete/"+id+"?vt=deadbeef"); rec.Code != http.StatusNotFound {
		t.Errorf("bad vt status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := e.get(t, "/complete/999999?vt=deadbeef"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func cronRequest(e *env, path, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCronSendCheckIns(t *testing.T) {
	e := setupEnv(t, "cron-secret")
	e.users.Create("a@example.com")
	e.users.Create("b@example.com")

	rec := cronRequest(e, "/api/cron/send-weekly-checkins", "cron-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result struct {
		Message string `json:"message"`
		Total   int    `json:"total"`
		Sent    int    `json:"sent"`
		Failed  int    `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Total != 2 || result.Sent != 2 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(*e.sent) != 2 {
		t.Errorf("expected 2 emails, got %d", len(*e.sent))
	}
}

func TestCronAuthEnforced(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	if rec := cronRequest(e, "/api/cron/send-weekly-checkins", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d", rec.Code)
	}
	if rec := cronRequest(e, "/api/cron/send-weekly-checkins", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header status = %d", rec.Code)
	}
}

func TestCronFailsClosedWithoutSecret(t *testing.T) {
	e := setupEnv(t, "")

	rec := cronRequest(e, "/api/cron/send-weekly-checkins", "anything")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestCronMondayFollowups(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	user, err := e.users.Create("founder@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	num := model.NumericData{Revenue: 2000, Hours: 35, Satisfaction: 6, Energy: 6}
	nar := model.NarrativeData{Q1: "Hiring decision.", Q2: "Email."}

	// One check-in inside the 7-10 day window, one too recent.
	if _, err := e.checkIns.Create(user.ID, 10, 2026, num, nar, time.Now().UTC().AddDate(0, 0, -8)); err != nil {
		t.Fatalf("seed check-in: %v", err)
	}
	if _, err := e.checkIns.Create(user.ID, 11, 2026, num, nar, time.Now().UTC().AddDate(0, 0, -2)); err != nil {
		t.Fatalf("seed check-in: %v", err)
	}

	rec := cronRequest(e, "/api/cron/send-monday-followups", "cron-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result struct {
		Sent int `json:"sent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Sent != 1 {
		t.Errorf("sent = %d, want 1", result.Sent)
	}

	if len(*e.sent) != 1 {
		t.Fatalf("expected 1 recap email, got %d", len(*e.sent))
	}
	msg := (*e.sent)[0]
	if subj, _ := msg["subject"].(string); subj != "Week 10 Recap" {
		t.Errorf("subject = %q", subj)
	}
	if html, _ := msg["html"].(string); !strings.Contains(html, "Hiring decision.") {
		t.Error("expected narrative highlight in recap")
	}
}

func TestCronMondayFollowupsEmpty(t *testing.T) {
	e := setupEnv(t, "cron-secret")

	rec := cronRequest(e, "/api/cron/send-monday-followups", "cron-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No check-ins") {
		t.Error("expected empty-window message")
	}
}
