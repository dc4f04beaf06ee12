package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
)

type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func scanToken(scanner interface{ Scan(...any) error }) (*model.MagicToken, error) {
	var mt model.MagicToken
	var usedAt sql.NullTime

	err := scanner.Scan(&mt.ID, &mt.UserID, &mt.Token, &mt.ExpiresAt, &usedAt, &mt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		mt.UsedAt = &usedAt.Time
	}
	return &mt, nil
}

const tokenCols = `id, user_id, token, expires_at, used_at, created_at`

// Create mints a 32-byte crypto-random token (64 hex chars) for the user.
// Collisions are treated as negligible; the UNIQUE constraint would reject
// one anyway.
func (s *TokenStore) Create(userID int64, expiresAt time.Time) (*model.MagicToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	result, err := s.db.Exec(
		`INSERT INTO magic_tokens (user_id, token, expires_at) VALUES (?, ?, ?)`,
		userID, token, expiresAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert magic token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+tokenCols+` FROM magic_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// Peek returns the token if it is currently consumable (unused, unexpired),
// or nil. It is read-only and grants nothing; only Consume changes state.
func (s *TokenStore) Peek(token string, now time.Time) (*model.MagicToken, error) {
	row := s.db.QueryRow(
		`SELECT `+tokenCols+` FROM magic_tokens WHERE token = ? AND used_at IS NULL AND expires_at > ?`,
		token, now.UTC(),
	)
	mt, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek magic token: %w", err)
	}
	return mt, nil
}

// Consume atomically validates and burns the token in a single conditional
// UPDATE: it succeeds only if the token exists, belongs to userID, is unused,
// and has not expired. The affected-row count is the sole arbiter, so two
// racing requests can never both win. Returns false for every failure mode:
// callers cannot (and must not) distinguish used from expired from unknown
// from wrong owner.
func (s *TokenStore) Consume(token string, userID int64, now time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE magic_tokens SET used_at = ? WHERE token = ? AND user_id = ? AND used_at IS NULL AND expires_at > ?`,
		now.UTC(), token, userID, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("consume magic token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetByToken returns the token row regardless of state, or nil. Used by
// tests and audit tooling; request paths go through Peek/Consume.
func (s *TokenStore) GetByToken(token string) (*model.MagicToken, error) {
	row := s.db.QueryRow(`SELECT `+tokenCols+` FROM magic_tokens WHERE token = ?`, token)
	mt, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get magic token: %w", err)
	}
	return mt, nil
}
