//
//  internal/requestinfo/requestinfo.go
//
//  Lightweight types and helpers that collect per-request metadata
//  (request id, user-agent fingerprint, IP + geolocation, path, and
//  timestamp) for audit events.  These structs are inert: no database
//  handles, no large buffers, safe to log or JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//  • github.com/google/uuid            (request ids)
//

package requestinfo

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties the audit log records.
type UA struct {
	Raw     string // Entire User-Agent header
	Browser string // "Chrome", "Firefox", "Safari", ...
	Version string // "124.0.6367"
	OS      string // "macOS", "Windows", "Android", ...
	Device  string // "Desktop", "Phone", "Tablet", ...
	IsBot   bool   // True if UA matches crawler signatures
}

// Geo holds IP-based geolocation hints.  Best-effort; empty when the DB
// is not configured or has no match.
type Geo struct {
	IP         net.IP // Left-most public client address
	CountryISO string // "US", "CA", "FR", ...
}

// RequestInfo is stored in the request context by the Enrich middleware.
type RequestInfo struct {
	RequestID string
	UA        UA
	Geo       Geo
	Path      string
	Timestamp time.Time
}

//
//  -----------------------------
//  Enricher
//  -----------------------------
//

// Enricher owns the optional GeoLite2 reader.  Construct once at boot;
// a nil reader simply skips geolocation.
type Enricher struct {
	geo *geoip2.Reader
}

// NewEnricher opens the GeoLite2-City database when dbPath is non-empty.
func NewEnricher(dbPath string) (*Enricher, error) {
	if dbPath == "" {
		return &Enricher{}, nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Enricher{geo: r}, nil
}

// Close releases the MaxMind handle.
func (e *Enricher) Close() {
	if e.geo != nil {
		_ = e.geo.Close()
	}
}

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich, or nil if
// the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

func contextWithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(uaHeader string) UA {
	u := uasurfer.Parse(uaHeader)

	br := strings.TrimPrefix(u.Browser.Name.String(), "Browser")

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}

	return UA{
		Raw:     uaHeader,
		Browser: br,
		Version: versionString(u.Browser.Version),
		OS:      osName,
		Device:  deviceTypeToString(u.DeviceType),
		IsBot:   u.IsBot(),
	}
}

// versionString builds "major.minor.patch" and removes trailing ".0".
func versionString(v uasurfer.Version) string {
	out := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	out = strings.TrimSuffix(strings.TrimSuffix(out, ".0"), ".0")
	if out == "" {
		return "0"
	}
	return out
}

// deviceTypeToString maps uasurfer.DeviceType to a user-friendly string.
func deviceTypeToString(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// lookupGeo returns best-effort Geo data.
func (e *Enricher) lookupGeo(ip net.IP) Geo {
	if e.geo == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := e.geo.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{IP: ip, CountryISO: rec.Country.IsoCode}
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to remoteAddr.
func clientIP(xff, xri, remoteAddr string) net.IP {
	if xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	if xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
