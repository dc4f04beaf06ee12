// Package week derives the check-in week number and the rotating question
// pair for a given instant. Everything takes an explicit time.Time so the
// caller controls the clock.
package week

import "time"

// Info identifies one check-in cycle. (Week, Year) is the idempotency key
// for submissions; it always carries the raw week number, never the rotated
// one.
type Info struct {
	Week int
	Year int
}

// At returns the week number and year for t. Week boundaries are derived
// from the day of year and the weekday of January 1st: week 1 covers
// January 1st through the first Saturday, and weeks run Sunday to Saturday
// from there.
func At(t time.Time) Info {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := int(t.Sub(jan1) / (24 * time.Hour))
	week := (days + int(jan1.Weekday()) + 1 + 6) / 7
	return Info{Week: week, Year: t.Year()}
}

// Rotate maps a week number onto the 12-week question cycle: week 13 asks
// the same questions as week 1. Rotation selects question text only; it
// never participates in the submission uniqueness key.
func Rotate(week int) int {
	return ((week - 1) % 12) + 1
}

// QuestionPair is one week's narrative prompts.
type QuestionPair struct {
	Q1 string
	Q2 string
}

var questions = [12]QuestionPair{
	{"What decision are you avoiding?", "What feels harder than it should?"},
	{"What did you say yes to that you regret?", "Where did the week's hours actually go?"},
	{"What would you stop doing if nobody noticed?", "What's the most honest number from this week?"},
	{"Who are you waiting on, and why?", "What did you do this week purely out of habit?"},
	{"What broke this week that you patched instead of fixed?", "What are you pretending is fine?"},
	{"What did a customer tell you that you ignored?", "What took three times longer than it should have?"},
	{"What would you tell a friend running your business to do?", "What's the thing you keep re-planning instead of doing?"},
	{"What did you ship this week, in one sentence?", "What meeting or call drained you the most?"},
	{"Where did money leak this week?", "What are you doing manually that you've done ten times now?"},
	{"What's the smallest thing that went well?", "What deadline are you quietly moving?"},
	{"What did you learn this week that changed a plan?", "What are you avoiding writing down?"},
	{"If this week repeated for a year, where would you be?", "What's one thing you'd hand off tomorrow if you could?"},
}

// Questions returns the prompt pair for a rotated week number (1-12).
// Out-of-range input falls back to the first pair rather than panicking.
func Questions(rotatedWeek int) QuestionPair {
	if rotatedWeek < 1 || rotatedWeek > len(questions) {
		return questions[0]
	}
	return questions[rotatedWeek-1]
}
