package siteconfig

import (
	"encoding/json"
	"time"
)

// Status values a website-config record moves through.  A record is born
// draft, becomes active once its subdomain is provisioned, and is demoted
// to inactive when another record claims the same (subdomain, domain)
// pair.  Removal is a hard delete; inactive is not a tombstone.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Record mirrors one row in the persistent `website_config` table.  The
// Document column holds the editor's page/layout definition verbatim; the
// store validates that it parses as JSON and respects the size ceiling,
// nothing more.
//
// OwnerID 0 denotes an anonymous/public owner.
type Record struct {
	ID        uint64          `db:"id"         json:"id"`
	OwnerID   uint64          `db:"owner_id"   json:"owner_id"`
	Subdomain string          `db:"subdomain"  json:"subdomain"`
	Domain    string          `db:"domain"     json:"domain"`
	Document  json.RawMessage `db:"document"   json:"document"`
	Status    string          `db:"status"     json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// FQDN returns the full host the record serves, e.g. "foo.example.com".
func (r *Record) FQDN() string {
	return r.Subdomain + "." + r.Domain
}
