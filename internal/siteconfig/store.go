// internal/siteconfig/store.go
//
// SQL-backed website-config store.
//
// Context
// -------
// One table, `website_config`, holds every site definition keyed by the
// UNIQUE(owner_id, subdomain, domain) triple.  Save is a single
// INSERT … ON DUPLICATE KEY UPDATE so concurrent saves for the same triple
// serialize inside the database; there is no check-then-write window.  The
// LAST_INSERT_ID(id) assignment makes LastInsertId() return the surviving
// row id on both the insert and the update path.
//
// Invariant: at most one *active* record per (subdomain, domain) pair.
// Activate enforces it transactionally by demoting siblings before
// promoting the target row.
//
// Notes
// -----
// • All helpers accept a context so lookups respect request deadlines.
// • sql.ErrNoRows maps to ErrNotFound; everything else is wrapped as
//   ErrStorageUnavailable for the route layer.

package siteconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store persists Records.  Construct once at boot and inject wherever
// website configs are read or written.
type Store struct {
	db       *sqlx.DB
	maxBytes int
}

// NewStore wires a Store to a pooled DB handle.  maxDocumentBytes is the
// configured serialized-size ceiling (config.Store.MaxDocumentBytes).
func NewStore(db *sqlx.DB, maxDocumentBytes int) *Store {
	return &Store{db: db, maxBytes: maxDocumentBytes}
}

const selectCols = `id, owner_id, subdomain, domain, document, status, created_at, updated_at`

// Save upserts the document for (owner, subdomain, domain) and returns the
// surviving row id.  On conflict the document is replaced wholesale and
// updated_at refreshed; created_at and status are left untouched.
func (s *Store) Save(ctx context.Context, owner uint64, subdomain, domain string, doc json.RawMessage) (uint64, error) {
	if err := ValidateSubdomain(subdomain); err != nil {
		return 0, err
	}
	if err := ValidateDocument(doc, s.maxBytes); err != nil {
		return 0, err
	}

	const q = `
	    INSERT INTO website_config (owner_id, subdomain, domain, document, status)
	    VALUES (?, ?, ?, ?, 'draft')
	    ON DUPLICATE KEY UPDATE
	        document   = VALUES(document),
	        id         = LAST_INSERT_ID(id),
	        updated_at = CURRENT_TIMESTAMP`

	res, err := s.db.ExecContext(ctx, q, owner, NormalizeSubdomain(subdomain), domain, []byte(doc))
	if err != nil {
		return 0, wrapStorage("save", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapStorage("save id", err)
	}
	return uint64(id), nil
}

// GetByDomain returns the single active record for domain.  The lookup is
// deliberately status-scoped: draft and inactive rows under other owners
// never leak to the public editor front end.
func (s *Store) GetByDomain(ctx context.Context, domain string) (*Record, error) {
	const q = `
	    SELECT ` + selectCols + `
	    FROM   website_config
	    WHERE  domain = ? AND status = 'active'
	    ORDER  BY updated_at DESC
	    LIMIT  1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, domain); err != nil {
		return nil, wrapLookup("get by domain", err)
	}
	return &rec, nil
}

// GetBySubdomain is the exact-match lookup; the most recently updated row
// wins if historical duplicates exist.
func (s *Store) GetBySubdomain(ctx context.Context, subdomain, domain string) (*Record, error) {
	const q = `
	    SELECT ` + selectCols + `
	    FROM   website_config
	    WHERE  subdomain = ? AND domain = ?
	    ORDER  BY updated_at DESC
	    LIMIT  1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, NormalizeSubdomain(subdomain), domain); err != nil {
		return nil, wrapLookup("get by subdomain", err)
	}
	return &rec, nil
}

// GetByID fetches one record.  Used by the route layer for owner checks
// before destructive operations.
func (s *Store) GetByID(ctx context.Context, id uint64) (*Record, error) {
	const q = `
	    SELECT ` + selectCols + `
	    FROM   website_config
	    WHERE  id = ?`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		return nil, wrapLookup("get by id", err)
	}
	return &rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (s *Store) ListByOwner(ctx context.Context, owner uint64) ([]Record, error) {
	const q = `
	    SELECT ` + selectCols + `
	    FROM   website_config
	    WHERE  owner_id = ?
	    ORDER  BY updated_at DESC`
	var rows []Record
	if err := s.db.SelectContext(ctx, &rows, q, owner); err != nil {
		return nil, wrapStorage("list by owner", err)
	}
	return rows, nil
}

// Delete hard-deletes a record.  Deleting a non-existent id is not an
// error: the caller's intent (row gone) already holds.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	const q = `DELETE FROM website_config WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return wrapStorage("delete", err)
	}
	return nil
}

// Activate promotes the record to active and, in the same transaction,
// demotes any sibling that currently holds the (subdomain, domain) pair.
// This keeps the one-active-record invariant without a uniqueness
// constraint, which cannot express it (rows under other owners and
// statuses share the pair legitimately).
func (s *Store) Activate(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapStorage("activate begin", err)
	}
	defer tx.Rollback()

	var rec struct {
		Subdomain string `db:"subdomain"`
		Domain    string `db:"domain"`
	}
	const sel = `SELECT subdomain, domain FROM website_config WHERE id = ? FOR UPDATE`
	if err := tx.GetContext(ctx, &rec, sel, id); err != nil {
		return wrapLookup("activate select", err)
	}

	const demote = `
	    UPDATE website_config
	    SET    status = 'inactive'
	    WHERE  subdomain = ? AND domain = ? AND status = 'active' AND id <> ?`
	if _, err := tx.ExecContext(ctx, demote, rec.Subdomain, rec.Domain, id); err != nil {
		return wrapStorage("activate demote", err)
	}

	const promote = `UPDATE website_config SET status = 'active' WHERE id = ?`
	if _, err := tx.ExecContext(ctx, promote, id); err != nil {
		return wrapStorage("activate promote", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapStorage("activate commit", err)
	}
	return nil
}

// SetStatus flips a record's status without touching siblings.  Use
// Activate when promoting to active.
func (s *Store) SetStatus(ctx context.Context, id uint64, status string) error {
	switch status {
	case StatusDraft, StatusActive, StatusInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	const q = `UPDATE website_config SET status = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, status, id); err != nil {
		return wrapStorage("set status", err)
	}
	return nil
}

//
// error wrapping
//

func wrapLookup(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return wrapStorage(op, err)
}

func wrapStorage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
