// internal/api/handlers.go
//
// HTTP handlers for the website-config and provisioning routes.
//
// Context
// -------
// Saving through POST /website-config is a publish: the record is
// upserted and then promoted to active, which transactionally demotes any
// sibling holding the same (subdomain, domain) pair.  That keeps the
// public GET-by-domain lookup unambiguous — one active owner per domain —
// instead of the cross-tenant "latest wins" behaviour this service
// replaces.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/authz"
	"github.com/siteforge/siteforge/internal/metrics"
	"github.com/siteforge/siteforge/internal/siteconfig"
)

// emptyDocument seeds a record created by the provisioning flow before
// the editor has saved anything.
var emptyDocument = json.RawMessage(`{}`)

//
// read side
//

// handleGetByDomain serves the active document for a domain.  This is the
// hot path behind every public page view, so it reads through the cache.
func (s *Server) handleGetByDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	rec, err := s.cache.GetByDomain(r.Context(), domain)
	if err != nil {
		writeError(w, fromError(err))
		return
	}
	writeRawJSON(w, http.StatusOK, rec.Document)
}

// handleGetBySubdomain is the exact-match lookup the editor uses while a
// site is still a draft.  Returns the full record, not just the document.
func (s *Server) handleGetBySubdomain(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetBySubdomain(r.Context(),
		chi.URLParam(r, "subdomain"), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, fromError(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListConfigs returns the caller's records, newest first.
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	p := authz.FromContext(r.Context())

	rows, err := s.store.ListByOwner(r.Context(), p.UserID)
	if err != nil {
		writeError(w, fromError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"websites": rows})
}

//
// write side
//

type saveConfigRequest struct {
	Subdomain string          `json:"subdomain"`
	Domain    string          `json:"domain"`
	Config    json.RawMessage `json:"config"`
}

// handleSaveConfig validates the body, upserts, and publishes.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req saveConfigRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Config) == 0 {
		writeError(w, errInvalidInput("config is required"))
		return
	}
	s.applyDefaults(&req)

	p := authz.FromContext(r.Context())
	id, err := s.store.Save(r.Context(), p.UserID, req.Subdomain, req.Domain, req.Config)
	if err != nil {
		metrics.ConfigSaveErrorsTotal.Inc()
		writeError(w, fromError(err))
		return
	}
	if err := s.store.Activate(r.Context(), id); err != nil {
		metrics.ConfigSaveErrorsTotal.Inc()
		writeError(w, fromError(err))
		return
	}
	s.cache.Invalidate(req.Domain)
	metrics.ConfigSavesTotal.Inc()

	s.audit.Record(r.Context(), "info", "store", "save", "website config saved",
		map[string]any{"website_id": id, "domain": req.Domain, "bytes": len(req.Config)})

	writeJSON(w, http.StatusOK, map[string]any{"website_id": id})
}

type addSubdomainRequest struct {
	Subdomain string          `json:"subdomain"`
	Config    json.RawMessage `json:"config"`
}

// handleAddSubdomain provisions a DNS label under the main domain, then
// records the site.  The panel call happens first: if it fails, nothing
// is persisted and the panel's message goes back as a 502.  Provisioning
// is not idempotent upstream, so no retry happens here.
func (s *Server) handleAddSubdomain(w http.ResponseWriter, r *http.Request) {
	var req addSubdomainRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := siteconfig.ValidateSubdomain(req.Subdomain); err != nil {
		writeError(w, errInvalidInput(err.Error()))
		return
	}

	label := siteconfig.NormalizeSubdomain(req.Subdomain)
	res := s.prov.Create(r.Context(), label, s.mainDomain)
	if !res.Success {
		s.audit.Record(r.Context(), "error", "provision", "create", res.Message,
			map[string]any{"subdomain": label})
		writeError(w, errProvider(res.Message))
		return
	}

	doc := req.Config
	if len(doc) == 0 {
		doc = emptyDocument
	}

	p := authz.FromContext(r.Context())
	domain := label + "." + s.mainDomain
	id, err := s.store.Save(r.Context(), p.UserID, label, domain, doc)
	if err == nil {
		err = s.store.Activate(r.Context(), id)
	}
	if err != nil {
		// The DNS label exists but the record does not; surface the
		// storage failure and leave cleanup to the operator, since
		// deleting the label here could destroy a site that already
		// lived under it.
		s.logger.Error("subdomain provisioned but record save failed",
			zap.String("subdomain", label), zap.Error(err))
		writeError(w, fromError(err))
		return
	}
	s.cache.Invalidate(domain)

	s.audit.Record(r.Context(), "info", "provision", "create", "subdomain provisioned",
		map[string]any{"website_id": id, "host": domain})

	writeJSON(w, http.StatusOK, map[string]any{"website_id": id, "host": domain})
}

type deleteSiteRequest struct {
	WebsiteID uint64 `json:"website_id"`
}

// handleDeleteSite removes a record the caller owns.  Deleting an id that
// is already gone succeeds; the caller's intent holds either way.
func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	var req deleteSiteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.WebsiteID == 0 {
		writeError(w, errInvalidInput("website_id is required"))
		return
	}

	rec, err := s.store.GetByID(r.Context(), req.WebsiteID)
	if errors.Is(err, siteconfig.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}
	if err != nil {
		writeError(w, fromError(err))
		return
	}

	p := authz.FromContext(r.Context())
	if !p.Admin && rec.OwnerID != p.UserID {
		writeError(w, errForbidden("forbidden", "only the owner may delete this site", ""))
		return
	}

	// Best-effort DNS teardown when the record lives under the main
	// domain.  A panel failure is logged but never blocks the delete.
	if rec.Domain == rec.Subdomain+"."+s.mainDomain {
		if res := s.prov.Delete(r.Context(), rec.Subdomain, s.mainDomain); !res.Success {
			s.logger.Warn("panel subdomain delete failed",
				zap.String("host", rec.Domain),
				zap.String("message", res.Message))
		}
	}

	if err := s.store.Delete(r.Context(), rec.ID); err != nil {
		writeError(w, fromError(err))
		return
	}
	s.cache.Invalidate(rec.Domain)

	s.audit.Record(r.Context(), "info", "store", "delete", "website deleted",
		map[string]any{"website_id": rec.ID, "domain": rec.Domain})

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

//
// auxiliary routes
//

// handleNonce issues a CSRF token bound to the current session.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	p := authz.FromContext(r.Context())
	tok, err := s.nonces.Issue(p.UserID)
	if err != nil {
		writeError(w, errStorage())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nonce": tok})
}

// handleMembershipLevels lists the enabled subscription tiers for admin
// tooling and the subscribe flow.
func (s *Server) handleMembershipLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.members.Levels(r.Context())
	if err != nil {
		writeError(w, errStorage())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

// handleProvisionPing verifies endpoint, credential, and TLS path against
// the hosting panel.
func (s *Server) handleProvisionPing(w http.ResponseWriter, r *http.Request) {
	res := s.prov.TestConnectivity(r.Context())
	if !res.Success {
		writeError(w, errProvider(res.Message))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

//
// helpers
//

// decodeBody parses a JSON request body bounded by the configured byte
// ceiling.  Returns false after writing the error response.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errInvalidInput("request body too large or unreadable"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, errInvalidInput("request body is not valid JSON"))
		return false
	}
	return true
}

// applyDefaults fills the configured placeholder subdomain and main
// domain when the caller omits them.
func (s *Server) applyDefaults(req *saveConfigRequest) {
	if req.Subdomain == "" {
		req.Subdomain = s.placeholderSub
	}
	if req.Domain == "" {
		req.Domain = s.mainDomain
	}
}
