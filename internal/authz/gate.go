// internal/authz/gate.go
//
// Access gate: one policy function over typed inputs.
//
// Context
// -------
// Authorize decides read/write/admin access by combining the resolved
// Principal, the membership subsystem, and a development bypass.  The
// evaluation order short-circuits on first match:
//
//	1. public read                     → allow
//	2. dev bypass (loopback / API key) → allow, only when enabled in config
//	3. anonymous                       → deny not_logged_in
//	4. admin                           → allow
//	5. membership active               → allow, else deny subscription_required
//
// When the membership store itself fails, administrators pass and everyone
// else is denied; availability of billing data must not lock operators
// out, and must not open the gates for subscribers we cannot verify.
//
// The bypass is config-scoped (off by default) so production builds carry
// no unauthenticated side doors.  CORS preflights never reach the gate;
// the CORS middleware answers them first.

package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/membership"
	"github.com/siteforge/siteforge/internal/metrics"
)

// Operation classifies what the caller wants to do.
type Operation int

const (
	OpRead Operation = iota
	OpWrite
	OpAdmin
)

// Deny reasons surfaced in API error envelopes.
const (
	ReasonNotLoggedIn          = "not_logged_in"
	ReasonSubscriptionRequired = "subscription_required"
	ReasonAdminRequired        = "admin_required"
)

// RequestMeta carries the transport facts the bypass may consult.  It is
// computed once by the middleware from the connection, not from
// client-supplied headers.
type RequestMeta struct {
	LoopbackCaller bool   // remote address is 127.0.0.0/8 or ::1
	DevKey         string // value of X-Dev-Key, if any
}

// Decision is the gate's verdict.  Hint carries an actionable URL for
// subscription denials.
type Decision struct {
	Allowed bool
	Reason  string
	Hint    string
}

var allow = Decision{Allowed: true}

// GateConfig is the slice of application config the gate needs.
type GateConfig struct {
	DevBypass    bool
	DevAPIKey    string
	SubscribeURL string
}

// Gate is constructed once at boot with its collaborators.
type Gate struct {
	cfg     GateConfig
	members membership.Checker
	logger  *zap.Logger
}

func NewGate(cfg GateConfig, members membership.Checker, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, members: members, logger: logger}
}

// Authorize evaluates the policy for one request.
func (g *Gate) Authorize(ctx context.Context, p Principal, op Operation, meta RequestMeta) Decision {
	if op == OpRead {
		// Reads on public configs carry no gate; the store already scopes
		// them to active records.
		return allow
	}

	if g.cfg.DevBypass {
		if meta.LoopbackCaller {
			return allow
		}
		if meta.DevKey != "" && meta.DevKey == g.cfg.DevAPIKey {
			return allow
		}
	}

	if p.Anonymous() {
		metrics.AuthDeniedTotal.WithLabelValues(ReasonNotLoggedIn).Inc()
		return Decision{Reason: ReasonNotLoggedIn}
	}

	if p.Admin {
		return allow
	}

	if op == OpAdmin {
		metrics.AuthDeniedTotal.WithLabelValues(ReasonAdminRequired).Inc()
		return Decision{Reason: ReasonAdminRequired}
	}

	active, err := g.members.ActiveMember(ctx, p.UserID)
	if err != nil {
		// Billing store is down; admins were already admitted above.
		g.logger.Warn("membership check unavailable",
			zap.Uint64("user_id", p.UserID),
			zap.Error(err))
		metrics.AuthDeniedTotal.WithLabelValues(ReasonSubscriptionRequired).Inc()
		return Decision{Reason: ReasonSubscriptionRequired, Hint: g.cfg.SubscribeURL}
	}
	if !active {
		metrics.AuthDeniedTotal.WithLabelValues(ReasonSubscriptionRequired).Inc()
		return Decision{Reason: ReasonSubscriptionRequired, Hint: g.cfg.SubscribeURL}
	}

	return allow
}
