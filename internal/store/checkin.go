package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateWeek is returned by Create when a check-in already exists for
// the same (user, week, year). The UNIQUE constraint is the only duplicate
// check; there is deliberately no read-before-insert.
var ErrDuplicateWeek = errors.New("check-in already exists for this week")

type CheckInStore struct {
	db *sql.DB
}

func NewCheckInStore(db *sql.DB) *CheckInStore {
	return &CheckInStore{db: db}
}

func scanCheckIn(scanner interface{ Scan(...any) error }) (*model.CheckIn, error) {
	var c model.CheckIn
	var aiSummary sql.NullString

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.WeekNumber, &c.Year,
		&c.Numeric.Revenue, &c.Numeric.Hours, &c.Numeric.Satisfaction, &c.Numeric.Energy,
		&c.Narrative.Q1, &c.Narrative.Q2, &c.Narrative.Context,
		&aiSummary, &c.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if aiSummary.Valid {
		c.AISummary = &aiSummary.String
	}
	return &c, nil
}

const checkInCols = `id, user_id, week_number, year, revenue, hours, satisfaction, energy, q1, q2, context, ai_summary, submitted_at`

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Create inserts a check-in for the given week. A UNIQUE violation on
// (user_id, week_number, year) is reported as ErrDuplicateWeek; under
// concurrent double-submit exactly one insert wins.
func (s *CheckInStore) Create(userID int64, week, year int, num model.NumericData, nar model.NarrativeData, submittedAt time.Time) (*model.CheckIn, error) {
	result, err := s.db.Exec(
		`INSERT INTO check_ins (user_id, week_number, year, revenue, hours, satisfaction, energy, q1, q2, context, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, week, year,
		num.Revenue, num.Hours, num.Satisfaction, num.Energy,
		nar.Q1, nar.Q2, nar.Context,
		submittedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateWeek
		}
		return nil, fmt.Errorf("insert check-in: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CheckInStore) GetByID(id int64) (*model.CheckIn, error) {
	row := s.db.QueryRow(`SELECT `+checkInCols+` FROM check_ins WHERE id = ?`, id)
	c, err := scanCheckIn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return c, nil
}

// UpdateSummary fills in the AI pattern summary. This is the only mutation
// a check-in row ever sees after creation.
func (s *CheckInStore) UpdateSummary(id int64, summary string) error {
	_, err := s.db.Exec(
		`UPDATE check_ins SET ai_summary = ? WHERE id = ?`,
		summary, id,
	)
	if err != nil {
		return fmt.Errorf("update check-in summary: %w", err)
	}
	return nil
}

// ListRecentByUser returns the user's check-ins newest first, capped at limit.
func (s *CheckInStore) ListRecentByUser(userID int64, limit int) ([]model.CheckIn, error) {
	rows, err := s.db.Query(
		`SELECT `+checkInCols+` FROM check_ins WHERE user_id = ? ORDER BY submitted_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list check-ins by user: %w", err)
	}
	defer rows.Close()
	return collectCheckIns(rows)
}

// ListSubmittedBetween returns check-ins with from <= submitted_at <= to,
// newest first. Used by the Monday recap sweep.
func (s *CheckInStore) ListSubmittedBetween(from, to time.Time) ([]model.CheckIn, error) {
	rows, err := s.db.Query(
		`SELECT `+checkInCols+` FROM check_ins WHERE submitted_at >= ? AND submitted_at <= ? ORDER BY submitted_at DESC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list check-ins between: %w", err)
	}
	defer rows.Close()
	return collectCheckIns(rows)
}

func collectCheckIns(rows *sql.Rows) ([]model.CheckIn, error) {
	var checkIns []model.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		checkIns = append(checkIns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check-ins: %w", err)
	}
	return checkIns, nil
}
