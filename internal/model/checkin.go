package model

import "time"

// NumericData holds the structured portion of a weekly check-in.
type NumericData struct {
	Revenue      float64 `json:"revenue"`
	Hours        float64 `json:"hours"`
	Satisfaction int     `json:"satisfaction"`
	Energy       int     `json:"energy"`
}

// NarrativeData holds the free-text portion of a weekly check-in.
type NarrativeData struct {
	Q1      string `json:"q1"`
	Q2      string `json:"q2"`
	Context string `json:"context,omitempty"`
}

// CheckIn is one submitted weekly check-in. At most one exists per
// (user, week_number, year); ai_summary is the only field written after
// creation.
type CheckIn struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"user_id"`
	WeekNumber  int           `json:"week_number"`
	Year        int           `json:"year"`
	Numeric     NumericData   `json:"numeric_data"`
	Narrative   NarrativeData `json:"narrative_data"`
	AISummary   *string       `json:"ai_summary"`
	SubmittedAt time.Time     `json:"submitted_at"`
}
