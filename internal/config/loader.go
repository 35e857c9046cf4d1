// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file — first `<root>/conf/.env`, then jail-wide fallback.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `SITEFORGE_`, where `__` maps to “.”
     (e.g., `SITEFORGE_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, the tree is unmarshalled into strongly-typed structs,
defaulted, `vault:`-prefixed secrets are resolved, validated, enriched with
the runtime root path, and cached in an `atomic.Pointer` for lock-free
reads.  `Reload()` simply calls `Load()` again and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed (bootstrap console).

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/api` work from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

// SecretResolver resolves a `vault:mount/path#key` URI to its plaintext
// value.  internal/vault.Client satisfies this through ResolveURI.
type SecretResolver interface {
	ResolveURI(ctx context.Context, uri string) (string, error)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SITEFORGE_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv("SITEFORGE_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches Config.  resolver may be nil when no `vault:` URIs are in use.
func Load(ctx context.Context, resolver SecretResolver) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: SITEFORGE_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("SITEFORGE_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(
			strings.TrimPrefix(s, "SITEFORGE_"), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.applyDefaults()

	if err := resolveSecrets(ctx, resolver, &cfg); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"main_domain", cfg.Site.MainDomain,
		"rate_limit_backend", cfg.RateLimit.Backend,
		"dev_bypass", cfg.Auth.DevBypass,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── secret resolution ───────────────────────────*/

// secretFields enumerates the config values allowed to carry `vault:`
// URIs.  Keeping the list explicit beats reflection: a new secret field
// is a one-line change, and nothing else is ever sent to Vault.
func secretFields(c *Config) []*string {
	return []*string{
		&c.Database.Password,
		&c.Provisioner.Token,
		&c.Auth.SessionSecret,
		&c.Redis.Password,
	}
}

func resolveSecrets(ctx context.Context, resolver SecretResolver, c *Config) error {
	for _, field := range secretFields(c) {
		if !strings.HasPrefix(*field, "vault:") {
			continue
		}
		if resolver == nil {
			return fmt.Errorf("config: %q requires a Vault client, none configured", *field)
		}
		val, err := resolver.ResolveURI(ctx, *field)
		if err != nil {
			return err
		}
		*field = val
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context, resolver SecretResolver) error {
	_, err := Load(ctx, resolver)
	return err
}
