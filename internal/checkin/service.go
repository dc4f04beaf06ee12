// Package checkin implements the magic-link and submission lifecycle: link
// issuance, atomic token consumption, and the once-per-week submission
// guard.
package checkin

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/week"
)

var (
	// ErrInvalidEmail is returned for syntactically unacceptable addresses.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidOrExpired covers every token-consumption failure: used,
	// expired, wrong owner, never existed. Uniform on purpose so a caller
	// probing tokens learns nothing.
	ErrInvalidOrExpired = errors.New("invalid or expired link")

	// ErrDuplicate means a check-in already exists for this user and week.
	ErrDuplicate = errors.New("check-in already submitted this week")

	// ErrInvalidInput is the target for errors.Is on any InputError.
	ErrInvalidInput = errors.New("invalid input")
)

// InputError describes a single rejected submission field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func inputErr(field, message string) error {
	return &InputError{Field: field, Message: message}
}

const (
	tokenTTL      = 7 * 24 * time.Hour
	maxRevenue    = 100_000_000
	maxHours      = 168
	maxTextLength = 10_000
)

// Deliberately stricter than RFC 5322; anything it rejects can still sign
// up with a saner address.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}$`)

// Service owns the token lifecycle. The clock is injectable so tests can
// pin "now"; week/year derivation never reads the wall clock directly.
type Service struct {
	users    *store.UserStore
	tokens   *store.TokenStore
	checkIns *store.CheckInStore
	baseURL  string
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(users *store.UserStore, tokens *store.TokenStore, checkIns *store.CheckInStore, baseURL string, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		checkIns: checkIns,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssuedLink is the result of minting a magic link.
type IssuedLink struct {
	User      *model.User
	Token     string
	URL       string
	ExpiresAt time.Time
	IsNewUser bool
}

// IssueLink validates and normalizes the address, finds or creates the
// user, and mints a single-use token valid for exactly seven days.
//
// The lookup-then-create is not atomic; if two signups race, the loser's
// INSERT fails on the email UNIQUE constraint and the error is surfaced
// rather than swallowed.
func (s *Service) IssueLink(email string) (*IssuedLink, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(normalized) {
		return nil, ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(normalized)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	isNew := false
	if user == nil {
		user, err = s.users.Create(normalized)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		isNew = true
	}

	expiresAt := s.now().Add(tokenTTL)
	mt, err := s.tokens.Create(user.ID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &IssuedLink{
		User:      user,
		Token:     mt.Token,
		URL:       fmt.Sprintf("%s/check-in/%s", s.baseURL, mt.Token),
		ExpiresAt: mt.ExpiresAt,
		IsNewUser: isNew,
	}, nil
}

// PeekToken reports whether the token is currently consumable and, if so,
// which user it belongs to. Read-only: rendering the form must not burn
// the link.
func (s *Service) PeekToken(token string) (*model.MagicToken, error) {
	return s.tokens.Peek(token, s.now())
}

// Submission is one week's raw form payload.
type Submission struct {
	Revenue      float64
	Hours        float64
	Satisfaction int
	Energy       int
	Q1           string
	Q2           string
	Context      string
}

// Submit validates the payload, atomically consumes the token, and writes
// the check-in, in that order. Validation failures happen before any
// storage write, so a typo never costs the user their link. Once the token
// is consumed it stays consumed even if the insert then fails; the user
// requests a fresh link instead of replaying the old one.
func (s *Service) Submit(userID int64, token string, sub Submission) (*model.CheckIn, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.tokens.Consume(token, userID, now)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if !ok {
		return nil, ErrInvalidOrExpired
	}

	info := week.At(now)
	numeric := model.NumericData{
		Revenue:      sub.Revenue,
		Hours:        sub.Hours,
		Satisfaction: sub.Satisfaction,
		Energy:       sub.Energy,
	}
	narrative := model.NarrativeData{
		Q1:      sub.Q1,
		Q2:      sub.Q2,
		Context: sub.Context,
	}

	c, err := s.checkIns.Create(userID, info.Week, info.Year, numeric, narrative, now)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateWeek) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create check-in: %w", err)
	}
	return c, nil
}

func (sub *Submission) validate() error {
	if math.IsNaN(sub.Revenue) || math.IsInf(sub.Revenue, 0) {
		return inputErr("revenue", "Revenue must be a number")
	}
	if sub.Revenue < 0 || sub.Revenue > maxRevenue {
		return inputErr("revenue", "Revenue must be between 0 and 100,000,000")
	}
	if math.IsNaN(sub.Hours) || math.IsInf(sub.Hours, 0) {
		return inputErr("hours", "Hours must be a number")
	}
	if sub.Hours < 0 || sub.Hours > maxHours {
		return inputErr("hours", "Hours must be between 0 and 168")
	}
	if sub.Satisfaction < 1 || sub.Satisfaction > 10 {
		return inputErr("satisfaction", "Satisfaction must be between 1 and 10")
	}
	if sub.Energy < 1 || sub.Energy > 10 {
		return inputErr("energy", "Energy must be between 1 and 10")
	}
	if strings.TrimSpace(sub.Q1) == "" {
		return inputErr("q1", "Please answer both questions")
	}
	if strings.TrimSpace(sub.Q2) == "" {
		return inputErr("q2", "Please answer both questions")
	}
	if utf8.RuneCountInString(sub.Q1) > maxTextLength {
		return inputErr("q1", "Response text is too long")
	}
	if utf8.RuneCountInString(sub.Q2) > maxTextLength {
		return inputErr("q2", "Response text is too long")
	}
	if utf8.RuneCountInString(sub.Context) > maxTextLength {
		return inputErr("context", "Response text is too long")
	}
	return nil
}
