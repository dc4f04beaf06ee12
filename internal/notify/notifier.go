// Package notify composes and sends the product's three email
// touchpoints, recording each send in the email log.
package notify

import (
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/email"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/store"
	"github.com/Alchemy-Risen/weekly-reality-check/internal/week"
)

type Notifier struct {
	emails *email.Client
	logs   *store.EmailLogStore
	logger *slog.Logger
}

func New(emails *email.Client, logs *store.EmailLogStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		emails: emails,
		logs:   logs,
		logger: logger,
	}
}

// CheckInLink sends the weekly magic-link email. When no email provider is
// configured the link is logged instead, which keeps local development
// usable without an API key.
func (n *Notifier) CheckInLink(user *model.User, url string, isNewUser bool) error {
	if !n.emails.Configured() {
		n.logger.Warn("email not configured, printing check-in link",
			"email", user.Email,
			"url", url)
		return nil
	}

	subject := "Your Weekly Check-In"
	intro := "It's time for your weekly check-in."
	if isNewUser {
		subject = "Welcome to Weekly Reality Check"
		intro = "You signed up for Weekly Reality Check. No onboarding, no tutorial, just the work."
	}

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("<h1>%s</h1>", html.EscapeString(subject)))
	hb.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(intro)))
	hb.WriteString("<p>Click the link below to answer this week's questions. Takes 5-10 minutes.</p>")
	hb.WriteString(fmt.Sprintf(`<p><a href="%s">Open Check-In &rarr;</a></p>`, url))
	hb.WriteString("<hr><p>This link expires in 7 days and can only be used once.</p>")

	text := fmt.Sprintf("%s\n\nOpen your check-in:\n\n%s\n\nThis link expires in 7 days and can only be used once.", intro, url)

	err := n.emails.Send(email.Message{
		To:       user.Email,
		Subject:  subject,
		HTMLBody: hb.String(),
		TextBody: text,
	})
	if err != nil {
		return fmt.Errorf("send check-in link: %w", err)
	}

	n.logSend(user.ID, model.EmailTypeWeeklyCheckIn, map[string]any{"is_new_user": isNewUser})
	return nil
}

// PostSubmit sends the confirmation email after a successful submission.
// aiSummary may be empty, in which case the pattern section is omitted.
func (n *Notifier) PostSubmit(user *model.User, c *model.CheckIn, aiSummary string) error {
	if !n.emails.Configured() {
		n.logger.Warn("email not configured, skipping post-submit email", "email", user.Email)
		return nil
	}

	var hb strings.Builder
	hb.WriteString("<h1>Check-In Submitted</h1>")
	hb.WriteString(fmt.Sprintf("<p>Week %d is logged.</p>", c.WeekNumber))
	hb.WriteString("<h2>Your Numbers</h2>")
	hb.WriteString(numbersTable(c.Numeric))
	if aiSummary != "" {
		hb.WriteString("<h2>Pattern Summary</h2>")
		hb.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(aiSummary)))
		hb.WriteString("<p><em>This summary describes patterns in your data. It does not make recommendations.</em></p>")
	}
	hb.WriteString("<hr><p>You'll receive a follow-up on Monday.</p>")
	hb.WriteString("<p>Next week's check-in will arrive at the same time.</p>")

	var tb strings.Builder
	fmt.Fprintf(&tb, "Week %d is logged.\n\n%s", c.WeekNumber, numbersText(c.Numeric))
	if aiSummary != "" {
		fmt.Fprintf(&tb, "\nPattern Summary:\n%s\n", aiSummary)
	}
	tb.WriteString("\nYou'll receive a follow-up on Monday.")

	err := n.emails.Send(email.Message{
		To:       user.Email,
		Subject:  fmt.Sprintf("Week %d Check-In Submitted", c.WeekNumber),
		HTMLBody: hb.String(),
		TextBody: tb.String(),
	})
	if err != nil {
		return fmt.Errorf("send post-submit: %w", err)
	}

	n.logSend(user.ID, model.EmailTypePostSubmit, map[string]any{"check_in_id": c.ID})
	return nil
}

// MondayRecap sends the Monday follow-up with last week's numbers and an
// optional narrative highlight quoted back to the user. The subject carries
// the cycle week, matching the numbering the form showed at submission.
func (n *Notifier) MondayRecap(user *model.User, c *model.CheckIn, highlight string) error {
	if !n.emails.Configured() {
		n.logger.Warn("email not configured, skipping recap email", "email", user.Email)
		return nil
	}

	rotated := week.Rotate(c.WeekNumber)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("<h1>Week %d Recap</h1>", rotated))
	hb.WriteString("<p>Here's what you logged last week.</p>")
	hb.WriteString(numbersTable(c.Numeric))
	if highlight != "" {
		hb.WriteString(fmt.Sprintf("<blockquote>&ldquo;%s&rdquo;</blockquote>", html.EscapeString(highlight)))
	}
	hb.WriteString("<hr><p>Your next check-in arrives this week.</p>")

	var tb strings.Builder
	fmt.Fprintf(&tb, "Here's what you logged last week.\n\n%s", numbersText(c.Numeric))
	if highlight != "" {
		fmt.Fprintf(&tb, "\n\"%s\"\n", highlight)
	}
	tb.WriteString("\nYour next check-in arrives this week.")

	err := n.emails.Send(email.Message{
		To:       user.Email,
		Subject:  fmt.Sprintf("Week %d Recap", rotated),
		HTMLBody: hb.String(),
		TextBody: tb.String(),
	})
	if err != nil {
		return fmt.Errorf("send recap: %w", err)
	}

	n.logSend(user.ID, model.EmailTypeMondayFollowup, map[string]any{"check_in_id": c.ID})
	return nil
}

// logSend records the send for auditing. Log failures never fail the send.
func (n *Notifier) logSend(userID int64, emailType string, metadata map[string]any) {
	if err := n.logs.Create(userID, emailType, metadata); err != nil {
		n.logger.Error("failed to record email log",
			"user_id", userID,
			"email_type", emailType,
			"error", err)
	}
}

func numbersTable(num model.NumericData) string {
	return fmt.Sprintf(`<table>
<tr><td>Revenue</td><td>$%s</td></tr>
<tr><td>Hours</td><td>%s</td></tr>
<tr><td>Satisfaction</td><td>%d/10</td></tr>
<tr><td>Energy</td><td>%d/10</td></tr>
</table>`,
		FormatMoney(num.Revenue),
		strconv.FormatFloat(num.Hours, 'f', -1, 64),
		num.Satisfaction,
		num.Energy,
	)
}

func numbersText(num model.NumericData) string {
	return fmt.Sprintf("Revenue: $%s\nHours: %s\nSatisfaction: %d/10\nEnergy: %d/10\n",
		FormatMoney(num.Revenue),
		strconv.FormatFloat(num.Hours, 'f', -1, 64),
		num.Satisfaction,
		num.Energy,
	)
}

// FormatMoney renders a dollar amount with thousands separators, keeping
// cents only when present. Shared with the completion page.
func FormatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String()
	if neg {
		out = "-" + out
	}
	if frac != "" {
		out += "." + frac
	}
	return out
}
