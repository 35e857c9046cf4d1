// internal/api/server.go
//
// Route layer: stateless dispatch from (method, path) to handlers.
//
// Context
// -------
// Every component is built once in cmd/api and injected here; handlers
// never reach around the Server for hidden state, and never touch storage
// directly — they delegate to the config store, the provisioner, and the
// gate, then translate results into HTTP statuses and JSON envelopes.
//
// Route table (/api/v1):
//
//	GET  /website-config/domain/{domain}        public
//	GET  /website-config/{subdomain}/{domain}   public
//	POST /website-config                        authenticated + rate-limited
//	GET  /website-configs                       authenticated
//	POST /user-site/add-subdomain               authenticated + rate-limited
//	POST /user-site/delete                      authenticated, owner-only
//	GET  /nonce                                 public (session-bound token)
//	GET  /provision/ping                        admin
//	GET  /membership/levels                     admin
//
// Plus /healthz and the Prometheus /metrics endpoint at the root.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

// Options carries every collaborator the route layer needs.  All fields
// are required unless noted.
type Options struct {
	Store    *siteconfig.Store
	Cache    *siteconfig.Cache
	Prov     *provision.Client
	Gate     *authz.Gate
	Limiter  *ratelimit.Limiter
	Sessions *authz.Sessions
	Nonces   *nonce.Issuer
	Audit    *audit.Recorder
	Enricher *requestinfo.Enricher
	Members  *membership.Store

	AllowedOrigins       []string
	MainDomain           string
	PlaceholderSubdomain string
	MaxBodyBytes         int64
	Logger               *zap.Logger
}

// Server owns the router and the injected components.
type Server struct {
	store    *siteconfig.Store
	cache    *siteconfig.Cache
	prov     *provision.Client
	gate     *authz.Gate
	limiter  *ratelimit.Limiter
	sessions *authz.Sessions
	nonces   *nonce.Issuer
	audit    *audit.Recorder
	enricher *requestinfo.Enricher
	members  *membership.Store

	allowedOrigins []string
	mainDomain     string
	placeholderSub string
	maxBodyBytes   int64
	logger         *zap.Logger
}

// New wires the Server.  Construct once at boot.
func New(o Options) *Server {
	return &Server{
		store:          o.Store,
		cache:          o.Cache,
		prov:           o.Prov,
		gate:           o.Gate,
		limiter:        o.Limiter,
		sessions:       o.Sessions,
		nonces:         o.Nonces,
		audit:          o.Audit,
		enricher:       o.Enricher,
		members:        o.Members,
		allowedOrigins: o.AllowedOrigins,
		mainDomain:     o.MainDomain,
		placeholderSub: o.PlaceholderSubdomain,
		maxBodyBytes:   o.MaxBodyBytes,
		logger:         o.Logger,
	}
}

// Router assembles the middleware chain and dispatch table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.enricher.Enrich)
	r.Use(secureHeaders)
	r.Use(s.cors)
	r.Use(s.resolvePrincipal)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public reads.
		r.Get("/website-config/domain/{domain}", s.handleGetByDomain)
		r.Get("/website-config/{subdomain}/{domain}", s.handleGetBySubdomain)
		r.Get("/nonce", s.handleNonce)

		// Authenticated reads.
		r.Group(func(r chi.Router) {
			r.Use(s.requireOp(authz.OpWrite)) // listing your sites needs a session
			r.Get("/website-configs", s.handleListConfigs)
		})

		// Writes: gate, CSRF, quota.
		r.Group(func(r chi.Router) {
			r.Use(s.requireOp(authz.OpWrite))
			r.Use(s.csrfProtect)
			r.Use(s.limitWrites)
			r.Post("/website-config", s.handleSaveConfig)
			r.Post("/user-site/add-subdomain", s.handleAddSubdomain)
		})

		// Owner-only delete: gated and CSRF-protected, but not metered —
		// removing a site must not be blocked by a spent write quota.
		r.Group(func(r chi.Router) {
			r.Use(s.requireOp(authz.OpWrite))
			r.Use(s.csrfProtect)
			r.Post("/user-site/delete", s.handleDeleteSite)
		})

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(s.requireOp(authz.OpAdmin))
			r.Get("/provision/ping", s.handleProvisionPing)
			r.Get("/membership/levels", s.handleMembershipLevels)
		})
	})

	return r
}
