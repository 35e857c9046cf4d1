// internal/api/middleware.go
//
// Route-layer middleware: security headers, CORS allow-list, principal
// resolution, gate enforcement, CSRF, and the write limiter.
//
// Context
// -------
// The permission model works on a typed Principal resolved ONCE here; no
// later stage looks at raw headers.  CORS uses an explicit origin
// allow-list — wildcard plus credentials is a contradiction this service
// refuses to ship.  Preflights are answered before any gate runs.

package api

import (
	"net"
	"net/http"
	"strconv"

	"github.com/siteforge/siteforge/internal/authz"
)

//
// security headers
//

// secureHeaders injects industry-standard response headers.  They are
// set before dispatch; anything written after WriteHeader would be lost.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

//
// CORS
//

// cors answers preflights and reflects only allow-listed origins.  An
// origin outside the list gets no CORS headers at all, which makes the
// browser refuse the response; the API itself still answers, since
// non-browser callers carry no Origin header.
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers",
					"Content-Type, X-CSRF-Token, X-Session-Token, X-Request-ID")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			}
		}

		// Preflights never reach the gate.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

//
// principal resolution
//

// resolvePrincipal verifies the session cookie or X-Session-Token header
// and stores the resulting Principal in the context.  It also remembers
// whether the credential arrived via cookie: only cookie-borne sessions
// need CSRF protection, header-borne ones cannot be ridden by a browser.
func (s *Server) resolvePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := s.sessions.ResolvePrincipal(r)
		ctx := authz.WithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

//
// gate enforcement
//

// requireOp enforces the access gate for op.  Mount after
// resolvePrincipal.
func (s *Server) requireOp(op authz.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := authz.FromContext(r.Context())
			meta := authz.RequestMeta{
				LoopbackCaller: isLoopback(r.RemoteAddr),
				DevKey:         r.Header.Get("X-Dev-Key"),
			}

			d := s.gate.Authorize(r.Context(), p, op, meta)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			s.audit.Record(r.Context(), "warn", "gate", "deny", d.Reason, nil)
			switch d.Reason {
			case authz.ReasonNotLoggedIn:
				writeError(w, errNotLoggedIn())
			default:
				writeError(w, errForbidden(d.Reason, "access denied", d.Hint))
			}
		})
	}
}

// isLoopback reports whether remoteAddr is 127.0.0.0/8 or ::1.  Computed
// from the connection, never from client-supplied headers.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

//
// CSRF
//

// csrfProtect requires a valid X-CSRF-Token for cookie-authenticated
// writes.  Sessions presented via X-Session-Token skip the check: a
// cross-site page cannot set that header, so there is nothing to forge.
func (s *Server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(authz.CookieName); err == nil && c.Value != "" {
			p := authz.FromContext(r.Context())
			if !p.Anonymous() && !s.nonces.Verify(r.Header.Get("X-CSRF-Token"), p.UserID) {
				writeError(w, errForbidden("csrf_required",
					"missing or stale CSRF token, fetch a fresh nonce", ""))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

//
// write limiter
//

// limitWrites applies the fixed-window quota per caller.  Anonymous
// callers that reached a write (dev bypass) are keyed by remote host so a
// misbehaving script still cannot flood.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := authz.FromContext(r.Context())
		key := callerKey(p, r.RemoteAddr)

		ok, remaining := s.limiter.Allow(r.Context(), key)
		if !ok {
			s.audit.Record(r.Context(), "warn", "ratelimit", "deny", "write quota exhausted", nil)
			writeError(w, errRateLimited())
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

func callerKey(p authz.Principal, remoteAddr string) string {
	if !p.Anonymous() {
		return "u:" + strconv.FormatUint(p.UserID, 10)
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return "ip:" + host
}
