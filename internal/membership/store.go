// internal/membership/store.go
//
// Small query helpers for the membership subsystem.
//
// Context
// -------
// Subscription state lives in two tables owned by the billing side:
//
//	membership_level (id PK, name, enabled)
//	user_membership  (user_id, level_id, expires_at NULL = perpetual)
//
// The access gate needs fast answers to one question — does user X hold
// any active, enabled level — and the admin surface lists the levels.
// These helpers perform simple parameterised queries against the shared
// handle; they are thin, and callers may wrap the results in their own
// per-request cache.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Checker is the contract the access gate consumes.  The SQL Store below
// is the production implementation; tests substitute fakes.
type Checker interface {
	ActiveMember(ctx context.Context, userID uint64) (bool, error)
}

// Level is one subscription tier.
type Level struct {
	ID      uint64 `db:"id"      json:"id"`
	Name    string `db:"name"    json:"name"`
	Enabled bool   `db:"enabled" json:"enabled"`
}

// Store answers membership questions from the billing tables.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// ActiveMember reports whether userID holds at least one unexpired binding
// to an enabled level.  Disabled levels are filtered out.
func (s *Store) ActiveMember(ctx context.Context, userID uint64) (bool, error) {
	const q = `SELECT 1
	             FROM user_membership um
	             JOIN membership_level ml ON ml.id = um.level_id
	            WHERE um.user_id = ?
	              AND ml.enabled = TRUE
	              AND (um.expires_at IS NULL OR um.expires_at > NOW())
	            LIMIT 1` // early exit once we find a hit

	var dummy int
	err := s.db.QueryRowxContext(ctx, q, userID).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Levels returns every enabled membership level, for the subscribe-flow
// hint and admin listings.
func (s *Store) Levels(ctx context.Context) ([]Level, error) {
	const q = `SELECT id, name, enabled
	             FROM membership_level
	            WHERE enabled = TRUE
	            ORDER BY id`
	levels := make([]Level, 0, 4)
	if err := s.db.SelectContext(ctx, &levels, q); err != nil {
		return nil, err
	}
	return levels, nil
}
