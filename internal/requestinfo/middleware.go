// internal/requestinfo/middleware.go
//
// HTTP middleware that enriches each request with *RequestInfo.
//
/*
Context
--------
This handler sits high in the chain, immediately after recovery but before
auth and rate limiting.  For every request it:

  1. Assigns a request id (incoming X-Request-ID is honoured, else a new
     UUID), echoed back in the response header.
  2. Parses the User-Agent header.
  3. Extracts the left-most client IP from X-Forwarded-For or X-Real-IP,
     falling back to `r.RemoteAddr`.
  4. Performs a GeoLite2 lookup when a database is configured.
  5. Stores a `*RequestInfo` value in `request.Context` under an
     unexported key so handlers and the audit recorder can read it
     without reparsing.

Notes
-----
  • All look-ups are read-only and pool-based, so the middleware is safe
    under heavy concurrency.
*/
package requestinfo

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID is echoed on every response for log correlation.
const HeaderRequestID = "X-Request-ID"

// Enrich returns the middleware bound to this Enricher.
func (e *Enricher) Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		info := &RequestInfo{
			RequestID: reqID,
			UA:        parseUA(r.UserAgent()),
			Geo: e.lookupGeo(clientIP(
				r.Header.Get("X-Forwarded-For"),
				r.Header.Get("X-Real-IP"),
				r.RemoteAddr)),
			Path:      r.URL.Path,
			Timestamp: time.Now(),
		}

		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(
			contextWithInfo(ctx, info)))
	})
}
