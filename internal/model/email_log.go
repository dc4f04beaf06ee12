package model

import "time"

// Email types recorded in the email_logs audit trail.
const (
	EmailTypeWeeklyCheckIn  = "weekly_checkin"
	EmailTypePostSubmit     = "post_submit"
	EmailTypeMondayFollowup = "monday_followup"
)

// EmailLog is an append-only record of an outbound email. Nothing reads
// these rows back; they exist for auditing.
type EmailLog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	EmailType string    `json:"email_type"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}
