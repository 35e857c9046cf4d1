// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial, malformed, or missing configuration.
//
// Beyond the built-in rules (`required`, `min`, `max`, `oneof`, `fqdn`),
// one cross-field rule lives here: a Redis address is mandatory whenever
// the rate limiter selects the redis backend.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("config: rate_limit.backend is redis but redis.addr is empty")
	}
	if c.Auth.DevBypass && c.Auth.DevAPIKey == "" {
		return errors.New("config: auth.dev_bypass is on but auth.dev_api_key is empty")
	}
	return nil
}
