// internal/provision/client.go
//
// cPanel UAPI subdomain provisioner.
//
// Context
// -------
// Each operation issues exactly one outbound HTTPS call to the hosting
// panel, authenticated with a static `cpanel user:token` credential.  The
// panel answers a JSON envelope whose numeric `status` field is 1 on
// success; anything else, including transport failure, a non-2xx HTTP
// status, or a body that fails to parse, is a failure.  The human-readable
// message comes from the first entry of the `errors` array when present.
//
// Provisioning is not idempotent at the provider: creating an existing
// subdomain fails with "already exists".  The client therefore never
// retries; the caller decides what a failed attempt means.
//
// Notes
// -----
// • TLS verification is on unless the operator opts out for a lab panel
//   with a self-signed certificate (Config.InsecureSkipVerify).
// • Per-call deadlines ride on the request context: 10 s for the
//   connectivity probe, 30 s for create/delete (configurable).

package provision

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/metrics"
)

// Result is the uniform outcome of one provisioning attempt.  Message is
// safe to show to an end user.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Config carries the panel endpoint and credential.
type Config struct {
	BaseURL            string
	Username           string
	Token              string
	TargetDir          string // document root hint passed to addsubdomain
	CallTimeout        time.Duration
	PingTimeout        time.Duration
	InsecureSkipVerify bool
}

// Client wraps one resty client.  Safe for concurrent use.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

// panelResponse is the UAPI envelope.  Fields we do not consume are left
// unmapped on purpose.
type panelResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

const unknownError = "Unknown error"

// New builds a provisioner client.  The credential is attached once as a
// default header so call sites cannot forget it.
func New(cfg Config, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "cpanel "+cfg.Username+":"+cfg.Token)
	if cfg.InsecureSkipVerify {
		http.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return &Client{http: http, cfg: cfg, logger: logger}
}

// Create registers label under parentDomain.  One attempt, no retry.
func (c *Client) Create(ctx context.Context, label, parentDomain string) Result {
	return c.call(ctx, "create", c.cfg.CallTimeout,
		"/execute/SubDomain/addsubdomain", map[string]string{
			"domain":     label,
			"rootdomain": parentDomain,
			"dir":        c.cfg.TargetDir,
		})
}

// Delete removes label.parentDomain from the panel.
func (c *Client) Delete(ctx context.Context, label, parentDomain string) Result {
	return c.call(ctx, "delete", c.cfg.CallTimeout,
		"/execute/SubDomain/delsubdomain", map[string]string{
			"domain": label + "." + parentDomain,
		})
}

// TestConnectivity performs a cheap read to verify endpoint, credential,
// and TLS path.  Used by the admin ping route and at boot.
func (c *Client) TestConnectivity(ctx context.Context) Result {
	return c.call(ctx, "ping", c.cfg.PingTimeout,
		"/execute/SubDomain/listsubdomains", nil)
}

// call performs the single outbound request and folds every failure mode
// into a Result.
func (c *Client) call(ctx context.Context, op string, timeout time.Duration, path string, params map[string]string) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		c.logger.Warn("panel call failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err))
		metrics.ProvisionCallsTotal.WithLabelValues(op, "error").Inc()
		return Result{Success: false, Message: unknownError}
	}

	var body panelResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		c.logger.Warn("panel response unparseable",
			zap.String("op", op),
			zap.Int("http_status", resp.StatusCode()),
			zap.Error(err))
		metrics.ProvisionCallsTotal.WithLabelValues(op, "error").Inc()
		return Result{Success: false, Message: unknownError}
	}

	if body.Status != 1 {
		msg := unknownError
		if len(body.Errors) > 0 && body.Errors[0] != "" {
			msg = body.Errors[0]
		}
		c.logger.Info("panel rejected operation",
			zap.String("op", op),
			zap.Int("panel_status", body.Status),
			zap.String("message", msg))
		metrics.ProvisionCallsTotal.WithLabelValues(op, "rejected").Inc()
		return Result{Success: false, Message: msg}
	}

	metrics.ProvisionCallsTotal.WithLabelValues(op, "ok").Inc()
	return Result{Success: true, Message: "ok"}
}
