// cmd/api/main.go
//
// Siteforge – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Optional Vault client for `vault:` secret URIs, then typed config.
//
//  4. Open the database pool and ping it.
//
//  5. Build every component once — store, cache, membership, gate,
//     sessions, nonces, limiter, provisioner, audit — and inject them
//     into the route layer.  No singletons; main owns the object graph.
//
//  6. Serve with hardened timeouts until SIGINT/SIGTERM, then drain.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/siteforge/siteforge/internal/api"
	"github.com/siteforge/siteforge/internal/audit"
	"github.com/siteforge/siteforge/internal/authz"
	"github.com/siteforge/siteforge/internal/config"
	"github.com/siteforge/siteforge/internal/database"
	"github.com/siteforge/siteforge/internal/logger"
	"github.com/siteforge/siteforge/internal/membership"
	"github.com/siteforge/siteforge/internal/nonce"
	"github.com/siteforge/siteforge/internal/provision"
	"github.com/siteforge/siteforge/internal/ratelimit"
	"github.com/siteforge/siteforge/internal/requestinfo"
	"github.com/siteforge/siteforge/internal/server"
	"github.com/siteforge/siteforge/internal/siteconfig"
	"github.com/siteforge/siteforge/internal/vault"
)

const serverEnvPath = "/usr/local/etc/siteforge/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	//
	// ── 1.  Config (with optional Vault secret resolution) ─────────────
	//
	var resolver config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		cli, err := vault.New(ctx, logOut.Infof)
		if err != nil {
			logOut.Fatalf("vault client: %v", err)
		}
		resolver = cli
	}

	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	//
	// ── 2.  Database connect ───────────────────────────────────────────
	//
	logOut.Infow("connecting to database")
	dsn := fmt.Sprintf(cfg.Database.DSN, cfg.Database.Password)
	db, err := database.OpenWithOptions(dsn, cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		logOut.Fatalf("connect database: %v", err)
	}
	defer db.Close()
	logOut.Infow("database online")

	// Log active-site count as an early sanity check.
	var active int
	_ = db.Get(&active, `SELECT COUNT(*) FROM website_config WHERE status = 'active'`)
	logOut.Infof("%d active website(s) found", active)

	//
	// ── 3.  Component graph ────────────────────────────────────────────
	//
	store := siteconfig.NewStore(db, cfg.Store.MaxDocumentBytes)
	cache := siteconfig.NewCache(store,
		time.Duration(cfg.Store.CacheTTLSeconds)*time.Second,
		cfg.Store.CacheMaxEntries)
	defer cache.Close()

	members := membership.NewStore(db)
	gate := authz.NewGate(authz.GateConfig{
		DevBypass:    cfg.Auth.DevBypass,
		DevAPIKey:    cfg.Auth.DevAPIKey,
		SubscribeURL: cfg.Auth.SubscribeURL,
	}, members, logOut.Desugar())
	if cfg.Auth.DevBypass {
		logOut.Warnw("development bypass is ENABLED, do not run this in production")
	}

	sessions := authz.NewSessions(cfg.Auth.SessionSecret,
		time.Duration(cfg.Auth.SessionTTLH)*time.Hour)
	nonces := nonce.NewIssuer(cfg.Auth.SessionSecret)

	var counter ratelimit.Store
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		counter = ratelimit.NewRedis(rdb)
	} else {
		mem := ratelimit.NewMemory()
		defer mem.Close()
		counter = mem
	}
	limiter := ratelimit.New(counter, cfg.RateLimit.MaxWrites,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, logOut.Desugar())

	prov := provision.New(provision.Config{
		BaseURL:            cfg.Provisioner.BaseURL,
		Username:           cfg.Provisioner.Username,
		Token:              cfg.Provisioner.Token,
		TargetDir:          cfg.Provisioner.TargetDir,
		CallTimeout:        time.Duration(cfg.Provisioner.CallTimeoutSecs) * time.Second,
		PingTimeout:        time.Duration(cfg.Provisioner.PingTimeoutSecs) * time.Second,
		InsecureSkipVerify: cfg.Provisioner.InsecureSkipVerify,
	}, logOut.Desugar())

	enricher, err := requestinfo.NewEnricher(cfg.Geo.DBPath)
	if err != nil {
		logOut.Fatalf("open geo database: %v", err)
	}
	defer enricher.Close()

	var sink audit.Sink
	if cfg.Audit.DBSink {
		sink = audit.NewSQLSink(db, cfg.Audit.BufferSize, logOut.Desugar())
	}
	recorder := audit.NewRecorder(logOut.Desugar(), sink)
	defer recorder.Close()

	//
	// ── 4.  Route layer and HTTP server ────────────────────────────────
	//
	routes := api.New(api.Options{
		Store:    store,
		Cache:    cache,
		Prov:     prov,
		Gate:     gate,
		Limiter:  limiter,
		Sessions: sessions,
		Nonces:   nonces,
		Audit:    recorder,
		Enricher: enricher,
		Members:  members,

		AllowedOrigins:       cfg.CORS.AllowedOrigins,
		MainDomain:           cfg.Site.MainDomain,
		PlaceholderSubdomain: cfg.Site.PlaceholderSubdomain,
		MaxBodyBytes:         int64(cfg.Store.MaxDocumentBytes) + 64*1024, // body wraps the document
		Logger:               logOut.Desugar(),
	})

	srv := server.New(cfg.HTTP.ListenAddr, routes.Router())

	go func() {
		logOut.Infof("listening on %s", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logOut.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logOut.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logOut.Errorw("shutdown incomplete", "err", err)
	}
}
