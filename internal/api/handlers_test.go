// internal/api/handlers_test.go
//
// End-to-end route tests: a real router served by httptest, a sqlmock
// database behind the store, a stub hosting panel behind the
// provisioner, and a fake membership checker.  Each test walks a full
// request the way the editor front end would issue it.

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/audit"
	"github.com/siteforge/siteforge/internal/authz"
	"github.com/siteforge/siteforge/internal/membership"
	"github.com/siteforge/siteforge/internal/nonce"
	"github.com/siteforge/siteforge/internal/provision"
	"github.com/siteforge/siteforge/internal/ratelimit"
	"github.com/siteforge/siteforge/internal/requestinfo"
	"github.com/siteforge/siteforge/internal/siteconfig"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testDomain = "siteforge.example"
	userID     = uint64(42)
)

// Single-line forms of the store's SQL; sqlmock collapses whitespace
// before matching, so QuoteMeta over these matches the multiline
// constants in the store.
const (
	upsertSQL = `INSERT INTO website_config (owner_id, subdomain, domain, document, status) ` +
		`VALUES (?, ?, ?, ?, 'draft') ` +
		`ON DUPLICATE KEY UPDATE document = VALUES(document), id = LAST_INSERT_ID(id), updated_at = CURRENT_TIMESTAMP`
	activateSelSQL = `SELECT subdomain, domain FROM website_config WHERE id = ? FOR UPDATE`
	demoteSQL      = `UPDATE website_config SET status = 'inactive' ` +
		`WHERE subdomain = ? AND domain = ? AND status = 'active' AND id <> ?`
	promoteSQL  = `UPDATE website_config SET status = 'active' WHERE id = ?`
	byDomainSQL = `SELECT id, owner_id, subdomain, domain, document, status, created_at, updated_at ` +
		`FROM website_config WHERE domain = ? AND status = 'active' ORDER BY updated_at DESC LIMIT 1`
	byIDSQL = `SELECT id, owner_id, subdomain, domain, document, status, created_at, updated_at ` +
		`FROM website_config WHERE id = ?`
)

type fakeMembers struct {
	active bool
	err    error
}

func (f fakeMembers) ActiveMember(context.Context, uint64) (bool, error) {
	return f.active, f.err
}

type fixture struct {
	srv      *httptest.Server
	mock     sqlmock.Sqlmock
	sessions *authz.Sessions
	nonces   *nonce.Issuer
}

type fixtureOpts struct {
	members   fakeMembers
	panel     http.HandlerFunc
	maxWrites int
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() { db.Close() })

	if o.panel == nil {
		o.panel = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":1}`))
		}
	}
	panel := httptest.NewServer(o.panel)
	t.Cleanup(panel.Close)

	if o.maxWrites == 0 {
		o.maxWrites = 100
	}

	nop := zap.NewNop()
	store := siteconfig.NewStore(db, 1<<20)
	cache := siteconfig.NewCache(store, time.Minute, 100)
	t.Cleanup(cache.Close)

	mem := ratelimit.NewMemory()
	t.Cleanup(mem.Close)

	enricher, err := requestinfo.NewEnricher("")
	require.NoError(t, err)

	sessions := authz.NewSessions(testSecret, time.Hour)
	nonces := nonce.NewIssuer(testSecret)

	s := New(Options{
		Store: store,
		Cache: cache,
		Prov: provision.New(provision.Config{
			BaseURL:     panel.URL,
			Username:    "forge",
			Token:       "paneltoken",
			CallTimeout: 2 * time.Second,
			PingTimeout: 2 * time.Second,
		}, nop),
		Gate: authz.NewGate(authz.GateConfig{
			SubscribeURL: "https://siteforge.example/subscribe",
		}, o.members, nop),
		Limiter:  ratelimit.New(mem, o.maxWrites, time.Minute, nop),
		Sessions: sessions,
		Nonces:   nonces,
		Audit:    audit.NewRecorder(nop, nil),
		Enricher: enricher,
		Members:  membership.NewStore(db),

		MainDomain:           testDomain,
		PlaceholderSubdomain: "unassigned",
		MaxBodyBytes:         1 << 20,
		Logger:               nop,
	})

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, mock: mock, sessions: sessions, nonces: nonces}
}

// do issues one request and decodes the JSON body into a map.
func (f *fixture) do(t *testing.T, method, path, body string, hdr map[string]string) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

// expectSaveAndActivate queues the full publish round trip for one row.
func expectSaveAndActivate(m sqlmock.Sqlmock, id int64, sub, domain string) {
	m.ExpectExec(regexp.QuoteMeta(upsertSQL)).
		WillReturnResult(sqlmock.NewResult(id, 1))
	m.ExpectBegin()
	m.ExpectQuery(regexp.QuoteMeta(activateSelSQL)).
		WithArgs(uint64(id)).
		WillReturnRows(sqlmock.NewRows([]string{"subdomain", "domain"}).AddRow(sub, domain))
	m.ExpectExec(regexp.QuoteMeta(demoteSQL)).
		WithArgs(sub, domain, uint64(id)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec(regexp.QuoteMeta(promoteSQL)).
		WithArgs(uint64(id)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
}

//
// save + read round trip
//

func TestSaveThenReadByDomain(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})
	tok := fx.sessions.MintToken(userID, false)

	expectSaveAndActivate(fx.mock, 7, "hello", "hello."+testDomain)

	status, body := fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"subdomain":"hello","domain":"hello.siteforge.example","config":{"title":"Hello"}}`,
		map[string]string{"X-Session-Token": tok})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 7, body["website_id"])

	now := time.Now()
	fx.mock.ExpectQuery(regexp.QuoteMeta(byDomainSQL)).
		WithArgs("hello." + testDomain).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "owner_id", "subdomain", "domain", "document", "status", "created_at", "updated_at"}).
			AddRow(7, userID, "hello", "hello."+testDomain,
				[]byte(`{"title":"Hello"}`), "active", now, now))

	status, doc := fx.do(t, http.MethodGet,
		"/api/v1/website-config/domain/hello.siteforge.example", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"title": "Hello"}, doc)

	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestReadByDomainIsCached(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	now := time.Now()
	fx.mock.ExpectQuery(regexp.QuoteMeta(byDomainSQL)).
		WithArgs("cached." + testDomain).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "owner_id", "subdomain", "domain", "document", "status", "created_at", "updated_at"}).
			AddRow(3, userID, "cached", "cached."+testDomain,
				[]byte(`{"v":1}`), "active", now, now))

	// Two reads, one expected query: the second is served from the cache.
	for i := 0; i < 2; i++ {
		status, doc := fx.do(t, http.MethodGet,
			"/api/v1/website-config/domain/cached.siteforge.example", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), doc["v"])
	}
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

//
// gate behaviour over the wire
//

func TestAnonymousWriteRejected(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	status, body := fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"config":{}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "not_logged_in", body["error"])
}

func TestLapsedMemberGetsSubscribeHint(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: false}})
	tok := fx.sessions.MintToken(userID, false)

	status, body := fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"config":{}}`, map[string]string{"X-Session-Token": tok})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "subscription_required", body["error"])
	assert.Equal(t, "https://siteforge.example/subscribe", body["hint"])
}

func TestProvisionPingRequiresAdmin(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	status, body := fx.do(t, http.MethodGet, "/api/v1/provision/ping", "",
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "admin_required", body["error"])

	status, body = fx.do(t, http.MethodGet, "/api/v1/provision/ping", "",
		map[string]string{"X-Session-Token": fx.sessions.MintToken(1, true)})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestMembershipLevelsListing(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	fx.mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, name, enabled FROM membership_level WHERE enabled = TRUE ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "enabled"}).
			AddRow(1, "starter", true).
			AddRow(2, "pro", true))

	status, body := fx.do(t, http.MethodGet, "/api/v1/membership/levels", "",
		map[string]string{"X-Session-Token": fx.sessions.MintToken(1, true)})
	require.Equal(t, http.StatusOK, status)
	levels, _ := body["levels"].([]any)
	require.Len(t, levels, 2)
}

//
// CSRF
//

func TestCookieSessionRequiresNonce(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})
	cookie := authz.CookieName + "=" + fx.sessions.MintToken(userID, false)

	// Cookie without a CSRF token: refused before any storage call.
	status, body := fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"config":{}}`, map[string]string{"Cookie": cookie})
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "csrf_required", body["error"])

	// Fetch a nonce the way the browser would, then retry.
	status, body = fx.do(t, http.MethodGet, "/api/v1/nonce", "",
		map[string]string{"Cookie": cookie})
	require.Equal(t, http.StatusOK, status)
	csrf, _ := body["nonce"].(string)
	require.NotEmpty(t, csrf)

	expectSaveAndActivate(fx.mock, 11, "unassigned", testDomain)
	status, body = fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"config":{"title":"Hi"}}`,
		map[string]string{"Cookie": cookie, "X-CSRF-Token": csrf})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 11, body["website_id"])
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestHeaderSessionSkipsCSRF(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	expectSaveAndActivate(fx.mock, 5, "unassigned", testDomain)
	status, _ := fx.do(t, http.MethodPost, "/api/v1/website-config",
		`{"config":{}}`,
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	assert.Equal(t, http.StatusOK, status)
}

//
// rate limiting
//

func TestWriteQuotaExhausted(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}, maxWrites: 1})
	hdr := map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)}

	expectSaveAndActivate(fx.mock, 9, "unassigned", testDomain)
	status, _ := fx.do(t, http.MethodPost, "/api/v1/website-config", `{"config":{}}`, hdr)
	require.Equal(t, http.StatusOK, status)

	status, body := fx.do(t, http.MethodPost, "/api/v1/website-config", `{"config":{}}`, hdr)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", body["error"])
}

//
// provisioning
//

func TestAddSubdomainSuccess(t *testing.T) {
	var panelPath, panelQuery string
	fx := newFixture(t, fixtureOpts{
		members: fakeMembers{active: true},
		panel: func(w http.ResponseWriter, r *http.Request) {
			panelPath = r.URL.Path
			panelQuery = r.URL.RawQuery
			w.Write([]byte(`{"status":1}`))
		},
	})

	expectSaveAndActivate(fx.mock, 21, "shiny", "shiny."+testDomain)
	status, body := fx.do(t, http.MethodPost, "/api/v1/user-site/add-subdomain",
		`{"subdomain":"Shiny"}`,
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 21, body["website_id"])
	assert.Equal(t, "shiny."+testDomain, body["host"])

	assert.Equal(t, "/execute/SubDomain/addsubdomain", panelPath)
	assert.Contains(t, panelQuery, "domain=shiny")
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestAddSubdomainPanelRejection(t *testing.T) {
	fx := newFixture(t, fixtureOpts{
		members: fakeMembers{active: true},
		panel: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":0,"errors":["The subdomain already exists."]}`))
		},
	})

	status, body := fx.do(t, http.MethodPost, "/api/v1/user-site/add-subdomain",
		`{"subdomain":"taken"}`,
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "provider_unavailable", body["error"])
	assert.Contains(t, body["message"], "already exists")

	// The panel refused, so nothing was persisted.
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestAddSubdomainRejectsBadLabel(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	for _, label := range []string{"", "-lead", "trail-", "has space", strings.Repeat("x", 64)} {
		status, body := fx.do(t, http.MethodPost, "/api/v1/user-site/add-subdomain",
			`{"subdomain":`+strconvQuote(label)+`}`,
			map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
		assert.Equal(t, http.StatusBadRequest, status, "label %q", label)
		assert.Equal(t, "invalid_input", body["error"], "label %q", label)
	}
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

//
// delete
//

func TestDeleteByNonOwnerForbidden(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	now := time.Now()
	fx.mock.ExpectQuery(regexp.QuoteMeta(byIDSQL)).
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "owner_id", "subdomain", "domain", "document", "status", "created_at", "updated_at"}).
			AddRow(8, uint64(99), "other", "other."+testDomain,
				[]byte(`{}`), "active", now, now))

	status, body := fx.do(t, http.MethodPost, "/api/v1/user-site/delete",
		`{"website_id":8}`,
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])
}

func TestDeleteUnknownIDIsIdempotent(t *testing.T) {
	fx := newFixture(t, fixtureOpts{members: fakeMembers{active: true}})

	fx.mock.ExpectQuery(regexp.QuoteMeta(byIDSQL)).
		WithArgs(uint64(404)).
		WillReturnError(sql.ErrNoRows)

	status, body := fx.do(t, http.MethodPost, "/api/v1/user-site/delete",
		`{"website_id":404}`,
		map[string]string{"X-Session-Token": fx.sessions.MintToken(userID, false)})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["deleted"])
}
