// internal/authz/session.go
//
// Signed session tokens and the cookie that carries them.
//
// Context
// -------
// A session token is a *stateless* credential:
//
//	base64url( userID | flags | expiry | HMAC_SHA256(secret, payload) )
//
//	•  userID – 8 bytes, big-endian.
//	•  flags  – 1 byte; bit 0 marks an administrator.
//	•  expiry – 8 bytes, big-endian unix seconds.
//	•  HMAC   – keyed with the configured session secret.
//
// Verification is constant-time and checks the expiry; no server-side
// session store is required, keeping the system multi-instance safe.
// Identity is never taken from a bare client-supplied header, only from a
// token that verifies against the shared secret.
//
// Workflow
//	•  MintToken(uid, admin)    → token string for the login flow.
//	•  SetCookie / ClearCookie  → attach or drop the session cookie.
//	•  ResolvePrincipal(r)      → Principal for the request.

package authz

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"time"
)

const (
	// CookieName carries the session token.
	CookieName = "siteforge_session"

	tokenBytes = 8 + 1 + 8 + sha256.Size // uid + flags + exp + sig

	flagAdmin = 1 << 0
)

// Sessions mints and verifies session tokens with one shared secret.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions requires a secret of at least 32 bytes (enforced by config
// validation) and a token lifetime.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// MintToken creates a signed token for uid.  Call after credential
// verification succeeds.
func (s *Sessions) MintToken(uid uint64, admin bool) string {
	buf := make([]byte, 0, tokenBytes)

	var uidB [8]byte
	binary.BigEndian.PutUint64(uidB[:], uid)
	buf = append(buf, uidB[:]...)

	var flags byte
	if admin {
		flags |= flagAdmin
	}
	buf = append(buf, flags)

	var expB [8]byte
	binary.BigEndian.PutUint64(expB[:], uint64(time.Now().Add(s.ttl).Unix()))
	buf = append(buf, expB[:]...)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(buf)
	buf = mac.Sum(buf)

	return base64.RawURLEncoding.EncodeToString(buf)
}

// VerifyToken returns the principal encoded in tok, or ok == false on any
// signature, length, or expiry failure.
func (s *Sessions) VerifyToken(tok string) (Principal, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return Principal{}, false
	}

	payload, sig := raw[:8+1+8], raw[8+1+8:]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Principal{}, false
	}

	exp := int64(binary.BigEndian.Uint64(payload[9:17]))
	if time.Now().Unix() >= exp {
		return Principal{}, false
	}

	return Principal{
		UserID: binary.BigEndian.Uint64(payload[:8]),
		Admin:  payload[8]&flagAdmin != 0,
	}, true
}

// SetCookie attaches the session cookie for tok.
func (s *Sessions) SetCookie(w http.ResponseWriter, r *http.Request, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil, // only send over HTTPS
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.ttl),
	})
}

// ClearCookie drops the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// ResolvePrincipal extracts the caller from the session cookie, falling
// back to the X-Session-Token header for non-browser clients.  Absent or
// invalid credentials yield the anonymous principal; they are never an
// error.
func (s *Sessions) ResolvePrincipal(r *http.Request) Principal {
	tok := ""
	if c, err := r.Cookie(CookieName); err == nil {
		tok = c.Value
	}
	if tok == "" {
		tok = r.Header.Get("X-Session-Token")
	}
	if tok == "" {
		return Principal{}
	}
	p, ok := s.VerifyToken(tok)
	if !ok {
		return Principal{}
	}
	return p
}
