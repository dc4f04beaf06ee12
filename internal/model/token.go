package model

import "time"

// MagicToken is a single-use bearer token for a check-in link. Rows are
// never deleted; used_at doubles as the replay-detection audit trail.
type MagicToken struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}
