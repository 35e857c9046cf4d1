// internal/membership/store_test.go
//
// Unit-tests for membership query helpers using sqlmock.

package membership

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

const activeQ = `SELECT 1 FROM user_membership um ` +
	`JOIN membership_level ml ON ml.id = um.level_id ` +
	`WHERE um.user_id = ? AND ml.enabled = TRUE ` +
	`AND (um.expires_at IS NULL OR um.expires_at > NOW()) LIMIT 1`

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestActiveMemberHit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQ)).
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := store.ActiveMember(context.Background(), 42)
	if err != nil {
		t.Fatalf("ActiveMember error: %v", err)
	}
	if !ok {
		t.Fatalf("expected active membership")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestActiveMemberMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQ)).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := store.ActiveMember(context.Background(), 7)
	if err != nil {
		t.Fatalf("ActiveMember error: %v", err)
	}
	if ok {
		t.Fatalf("expected no active membership")
	}
}

func TestLevels(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, name, enabled FROM membership_level WHERE enabled = TRUE ORDER BY id`,
	)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "enabled"}).
			AddRow(1, "starter", true).
			AddRow(2, "pro", true))

	levels, err := store.Levels(context.Background())
	if err != nil {
		t.Fatalf("Levels error: %v", err)
	}
	if len(levels) != 2 || levels[1].Name != "pro" {
		t.Fatalf("unexpected levels: %#v", levels)
	}
}
