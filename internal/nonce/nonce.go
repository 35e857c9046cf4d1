// internal/nonce/nonce.go
//
// Stateless, session-bound CSRF nonces.
//
// Context
//   The editor front end fetches a nonce from GET /api/v1/nonce and sends
//   it back in the X-CSRF-Token header on every write.  The server must
//   verify that the token was issued to THIS session, so the token binds
//   the caller's user id:
//
//      base64url( nonce | userID | unixMicro | HMAC_SHA256(secret, payload) )
//
//   •  nonce     – 16 random bytes.  Prevents replay across users.
//   •  userID    – 8 bytes, big-endian.  0 for anonymous sessions.
//   •  unixMicro – microseconds since Unix epoch, 8 bytes, big-endian.
//   •  HMAC      – keyed with the shared session secret.
//
//   Validation checks the signature, the user binding, and that the
//   timestamp is within MaxAge.  No server-side state is required,
//   keeping the system cache-friendly and multi-instance safe.
//
// Workflow
//   •  Issue(uid)        → token string for the front end.
//   •  Verify(tok, uid)  → constant-time verify; false on any failure.
//
//------------------------------------------------------------------------------

package nonce

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"
)

const (
	payloadBytes = 16 + 8 + 8          // nonce + uid + ts
	tokenBytes   = payloadBytes + sha256.Size
	// MaxAge is the validity window.  Long enough for an editing session,
	// short enough that a leaked token goes stale.
	MaxAge = 2 * time.Hour
)

// Issuer mints and verifies nonces with one shared secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue creates a new nonce bound to uid.  Call once per editor load.
func (i *Issuer) Issue(uid uint64) (string, error) {
	buf := make([]byte, 0, tokenBytes)

	n := make([]byte, 16)
	if _, err := rand.Read(n); err != nil {
		return "", err
	}
	buf = append(buf, n...)

	var uidB [8]byte
	binary.BigEndian.PutUint64(uidB[:], uid)
	buf = append(buf, uidB[:]...)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixMicro()))
	buf = append(buf, ts[:]...)

	mac := hmac.New(sha256.New, i.secret)
	mac.Write(buf)
	buf = mac.Sum(buf)

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify returns true if tok passes HMAC, binding, and age checks for uid.
func (i *Issuer) Verify(tok string, uid uint64) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}

	payload, sig := raw[:payloadBytes], raw[payloadBytes:]

	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return false
	}

	if binary.BigEndian.Uint64(payload[16:24]) != uid {
		return false
	}

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(payload[24:32])))
	if time.Since(issued) > MaxAge || time.Until(issued) > time.Minute {
		// Future timestamp (clock skew) or older than MaxAge.
		return false
	}

	return true
}
