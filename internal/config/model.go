// internal/config/model.go
//
// Typed configuration model for Siteforge.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                             – dotenv values,
//   • `conf/global.yaml`                          – primary static file,
//   • `SITEFORGE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so secrets (DB password,
// cPanel token, session secret) never live in flat files or git history.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing or tunables fall outside their documented
// ranges.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host,
// port, or flags without touching Vault.  The *secret* portion
// (`Password`) may be a `vault:` URI resolved at startup.  The DSN must
// contain exactly one %s verb where the password is spliced in.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"required"`
	Password string `koanf:"password" validate:"required"`
	MaxOpen  int    `koanf:"max_open"`
	MaxIdle  int    `koanf:"max_idle"`
}

//
// Site section
//

// Site carries the defaults applied when a save request omits a field.
type Site struct {
	// MainDomain is the parent domain used when a request carries none.
	MainDomain string `koanf:"main_domain" validate:"required,fqdn"`
	// PlaceholderSubdomain is assigned when the caller leaves the
	// subdomain unset (drafts saved before a subdomain is chosen).
	PlaceholderSubdomain string `koanf:"placeholder_subdomain"`
}

//
// Store section
//

// Store bounds the config-store payloads.  MaxDocumentBytes accepts
// 1–50 MiB; the default of 5 MiB matches what the editor front end
// produces for a large site.
type Store struct {
	MaxDocumentBytes int `koanf:"max_document_bytes" validate:"min=1048576,max=52428800"`
	CacheTTLSeconds  int `koanf:"cache_ttl_seconds"  validate:"min=0"`
	CacheMaxEntries  int `koanf:"cache_max_entries"  validate:"min=0"`
}

//
// Provisioner section
//

// Provisioner configures the cPanel UAPI client.
//
// InsecureSkipVerify exists only for lab panels with self-signed
// certificates; production deployments must leave it false.
type Provisioner struct {
	BaseURL            string `koanf:"base_url" validate:"required,url"`
	Username           string `koanf:"username" validate:"required"`
	Token              string `koanf:"token"    validate:"required"`
	TargetDir          string `koanf:"target_dir"`
	CallTimeoutSecs    int    `koanf:"call_timeout_seconds" validate:"min=1,max=120"`
	PingTimeoutSecs    int    `koanf:"ping_timeout_seconds" validate:"min=1,max=60"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

//
// Auth section
//

// Auth drives principal resolution and the development bypass.
//
// DevBypass must stay false outside local development: it allows any
// loopback caller, or any caller presenting DevAPIKey, to skip both
// authentication and the membership check.
type Auth struct {
	SessionSecret string `koanf:"session_secret" validate:"required,min=32"`
	SessionTTLH   int    `koanf:"session_ttl_hours" validate:"min=1"`
	SubscribeURL  string `koanf:"subscribe_url"`
	DevBypass     bool   `koanf:"dev_bypass"`
	DevAPIKey     string `koanf:"dev_api_key"`
}

//
// Rate-limit section
//

// RateLimit caps writes per caller in a fixed window.  Backend selects
// the counter store: "memory" for single-node, "redis" when several
// instances share quota.
type RateLimit struct {
	MaxWrites     int    `koanf:"max_writes"     validate:"min=1,max=10000"`
	WindowSeconds int    `koanf:"window_seconds" validate:"min=1"`
	Backend       string `koanf:"backend"        validate:"oneof=memory redis"`
}

//
// Redis section
//

// Redis is only consulted when RateLimit.Backend == "redis".
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

//
// CORS section
//

// CORS lists the origins the editor front end is served from.  There is
// deliberately no wildcard support: credentialed requests plus `*` is a
// contradiction browsers half-enforce.
type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

//
// Audit section
//

// Audit controls the optional database sink.  The zap sink is always on.
type Audit struct {
	DBSink     bool `koanf:"db_sink"`
	BufferSize int  `koanf:"buffer_size" validate:"min=0"`
}

//
// Geo section
//

// Geo points at an optional GeoLite2-City database used to enrich audit
// events with a country code.  Empty path disables the lookup.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or SITEFORGE_ROOT override) so later code
// can build absolute file paths.
type Paths struct {
	Root string // SITEFORGE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP        HTTP        `koanf:"http"`
	Database    Database    `koanf:"database"`
	Site        Site        `koanf:"site"`
	Store       Store       `koanf:"store"`
	Provisioner Provisioner `koanf:"provisioner"`
	Auth        Auth        `koanf:"auth"`
	RateLimit   RateLimit   `koanf:"rate_limit"`
	Redis       Redis       `koanf:"redis"`
	CORS        CORS        `koanf:"cors"`
	Audit       Audit       `koanf:"audit"`
	Geo         Geo         `koanf:"geo"`
	Paths       Paths       `koanf:"-"` // not loaded from config files
}

// applyDefaults fills zero values with the documented defaults before
// validation so a minimal YAML file still passes range checks.
func (c *Config) applyDefaults() {
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Site.PlaceholderSubdomain == "" {
		c.Site.PlaceholderSubdomain = "unassigned"
	}
	if c.Store.MaxDocumentBytes == 0 {
		c.Store.MaxDocumentBytes = 5 << 20 // 5 MiB
	}
	if c.Store.CacheTTLSeconds == 0 {
		c.Store.CacheTTLSeconds = 60
	}
	if c.Store.CacheMaxEntries == 0 {
		c.Store.CacheMaxEntries = 1000
	}
	if c.Provisioner.CallTimeoutSecs == 0 {
		c.Provisioner.CallTimeoutSecs = 30
	}
	if c.Provisioner.PingTimeoutSecs == 0 {
		c.Provisioner.PingTimeoutSecs = 10
	}
	if c.Auth.SessionTTLH == 0 {
		c.Auth.SessionTTLH = 24 * 14
	}
	if c.RateLimit.MaxWrites == 0 {
		c.RateLimit.MaxWrites = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 3600
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 256
	}
}
