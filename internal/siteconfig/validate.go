// internal/siteconfig/validate.go
//
// Input validation for the config store.
//
// Context
// -------
// Two checks guard every Save: the subdomain must be a well-formed DNS
// label, and the document must be JSON within the configured byte ceiling.
// The label rule is the strict RFC-1035 form, compared case-insensitively:
// no leading or trailing hyphen, 1–63 bytes.  The permissive variants seen
// in the wild (leading hyphens, spaces) are rejected here once, so no call
// site needs its own regex.

package siteconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors.  Callers match with errors.Is and map them onto HTTP
// statuses in the route layer.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// maxLabelLen is the DNS limit for a single label.
const maxLabelLen = 63

var labelRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// NormalizeSubdomain lowercases and trims a label.  Validation happens
// separately so the caller can report the original input.
func NormalizeSubdomain(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// ValidateSubdomain returns ErrInvalidInput unless label is a DNS label:
// letters, digits, and interior hyphens only.
func ValidateSubdomain(label string) error {
	l := NormalizeSubdomain(label)
	if l == "" {
		return fmt.Errorf("%w: subdomain is empty", ErrInvalidInput)
	}
	if len(l) > maxLabelLen {
		return fmt.Errorf("%w: subdomain %q exceeds %d bytes", ErrInvalidInput, l, maxLabelLen)
	}
	if !labelRE.MatchString(l) {
		return fmt.Errorf("%w: subdomain %q is not a valid DNS label", ErrInvalidInput, label)
	}
	return nil
}

// ValidateDocument checks that doc parses as JSON and fits under maxBytes.
func ValidateDocument(doc []byte, maxBytes int) error {
	if len(doc) == 0 {
		return fmt.Errorf("%w: document is empty", ErrInvalidInput)
	}
	if len(doc) > maxBytes {
		return fmt.Errorf("%w: document is %d bytes, ceiling is %d",
			ErrInvalidInput, len(doc), maxBytes)
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%w: document is not valid JSON", ErrInvalidInput)
	}
	return nil
}
