// internal/authz/gate_test.go
//
// Policy tests for the access gate and session tokens.

package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeChecker lets each test script the membership answer.
type fakeChecker struct {
	active bool
	err    error
}

func (f fakeChecker) ActiveMember(context.Context, uint64) (bool, error) {
	return f.active, f.err
}

func newGate(cfg GateConfig, c fakeChecker) *Gate {
	return NewGate(cfg, c, zap.NewNop())
}

func TestReadIsAlwaysAllowed(t *testing.T) {
	g := newGate(GateConfig{}, fakeChecker{})
	d := g.Authorize(context.Background(), Principal{}, OpRead, RequestMeta{})
	assert.True(t, d.Allowed)
}

func TestAnonymousWriteDenied(t *testing.T) {
	g := newGate(GateConfig{}, fakeChecker{active: true})
	d := g.Authorize(context.Background(), Principal{}, OpWrite, RequestMeta{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotLoggedIn, d.Reason)
}

func TestSubscribedMemberWriteAllowed(t *testing.T) {
	g := newGate(GateConfig{}, fakeChecker{active: true})
	d := g.Authorize(context.Background(), Principal{UserID: 42}, OpWrite, RequestMeta{})
	assert.True(t, d.Allowed)
}

func TestLapsedMemberDeniedWithHint(t *testing.T) {
	g := newGate(GateConfig{SubscribeURL: "https://example.com/subscribe"},
		fakeChecker{active: false})
	d := g.Authorize(context.Background(), Principal{UserID: 42}, OpWrite, RequestMeta{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, d.Reason)
	assert.Equal(t, "https://example.com/subscribe", d.Hint)
}

func TestMembershipOutageAdmitsOnlyAdmins(t *testing.T) {
	g := newGate(GateConfig{}, fakeChecker{err: errors.New("billing db down")})

	user := g.Authorize(context.Background(), Principal{UserID: 42}, OpWrite, RequestMeta{})
	assert.False(t, user.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, user.Reason)

	admin := g.Authorize(context.Background(), Principal{UserID: 1, Admin: true}, OpWrite, RequestMeta{})
	assert.True(t, admin.Allowed)
}

func TestAdminOpRequiresAdmin(t *testing.T) {
	g := newGate(GateConfig{}, fakeChecker{active: true})

	member := g.Authorize(context.Background(), Principal{UserID: 42}, OpAdmin, RequestMeta{})
	assert.False(t, member.Allowed)
	assert.Equal(t, ReasonAdminRequired, member.Reason)

	admin := g.Authorize(context.Background(), Principal{UserID: 1, Admin: true}, OpAdmin, RequestMeta{})
	assert.True(t, admin.Allowed)
}

func TestDevBypassOffIgnoresKeyAndLoopback(t *testing.T) {
	g := newGate(GateConfig{DevBypass: false, DevAPIKey: "k"}, fakeChecker{})
	d := g.Authorize(context.Background(), Principal{}, OpWrite,
		RequestMeta{LoopbackCaller: true, DevKey: "k"})
	assert.False(t, d.Allowed)
}

func TestDevBypassOnAdmitsLoopbackAndKey(t *testing.T) {
	g := newGate(GateConfig{DevBypass: true, DevAPIKey: "k"}, fakeChecker{})

	loop := g.Authorize(context.Background(), Principal{}, OpWrite,
		RequestMeta{LoopbackCaller: true})
	assert.True(t, loop.Allowed)

	key := g.Authorize(context.Background(), Principal{}, OpWrite,
		RequestMeta{DevKey: "k"})
	assert.True(t, key.Allowed)

	wrong := g.Authorize(context.Background(), Principal{}, OpWrite,
		RequestMeta{DevKey: "nope"})
	assert.False(t, wrong.Allowed)
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions("0123456789abcdef0123456789abcdef", time.Hour)

	tok := s.MintToken(42, false)
	p, ok := s.VerifyToken(tok)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), p.UserID)
	assert.False(t, p.Admin)

	admin, ok := s.VerifyToken(s.MintToken(1, true))
	assert.True(t, ok)
	assert.True(t, admin.Admin)
}

func TestSessionRejectsTamperAndWrongKey(t *testing.T) {
	s := NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
	tok := s.MintToken(42, false)

	_, ok := s.VerifyToken(tok[:len(tok)-2] + "xx")
	assert.False(t, ok)

	other := NewSessions("ffffffffffffffffffffffffffffffff", time.Hour)
	_, ok = other.VerifyToken(tok)
	assert.False(t, ok)
}

func TestSessionExpires(t *testing.T) {
	s := NewSessions("0123456789abcdef0123456789abcdef", -time.Minute)
	_, ok := s.VerifyToken(s.MintToken(42, false))
	assert.False(t, ok)
}
