// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConfigSavesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "config_saves_total",
			Help: "Cumulative number of website-config upserts.",
		})

	ConfigSaveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "config_save_errors_total",
			Help: "Cumulative number of rejected or failed saves.",
		})

	ConfigCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "config_cache_hits_total",
			Help: "Cumulative number of domain-lookup cache hits.",
		})

	ConfigCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "config_cache_entries",
			Help: "Number of domain lookups currently cached.",
		})

	ProvisionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_calls_total",
			Help: "Cumulative cPanel calls by operation and outcome.",
		},
		[]string{"op", "outcome"})

	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_denied_total",
			Help: "Cumulative number of writes denied by the rate limiter.",
		})

	AuthDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_denied_total",
			Help: "Cumulative access-gate denials by reason.",
		},
		[]string{"reason"})

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_dropped_total",
			Help: "Cumulative audit events dropped on buffer overflow.",
		})
)

func init() {
	prometheus.MustRegister(
		ConfigSavesTotal,
		ConfigSaveErrorsTotal,
		ConfigCacheHitsTotal,
		ConfigCacheEntries,
		ProvisionCallsTotal,
		RateLimitDeniedTotal,
		AuthDeniedTotal,
		AuditDroppedTotal,
	)
}
