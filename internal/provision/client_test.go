// internal/provision/client_test.go
//
// Provisioner tests against a mock control-panel endpoint.

package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		Username:    "forge",
		Token:       "S3CR3T",
		TargetDir:   "public_html/sites",
		CallTimeout: 5 * time.Second,
		PingTimeout: 2 * time.Second,
	}, zap.NewNop())
}

func TestCreateSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotQuery map[string][]string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":1,"errors":null}`))
	})

	res := cli.Create(context.Background(), "abc", "example.com")
	require.True(t, res.Success)
	assert.Equal(t, "cpanel forge:S3CR3T", gotAuth)
	assert.Equal(t, "/execute/SubDomain/addsubdomain", gotPath)
	assert.Equal(t, "abc", gotQuery["domain"][0])
	assert.Equal(t, "example.com", gotQuery["rootdomain"][0])
	assert.Equal(t, "public_html/sites", gotQuery["dir"][0])
}

func TestCreateRejectedSurfacesPanelMessage(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"errors":["already exists"]}`))
	})

	res := cli.Create(context.Background(), "abc", "example.com")
	assert.False(t, res.Success)
	assert.Equal(t, "already exists", res.Message)
}

func TestCreateEmptyErrorsFallsBackToUnknown(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"errors":[]}`))
	})

	res := cli.Create(context.Background(), "abc", "example.com")
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown error", res.Message)
}

func TestMalformedBodyIsFailure(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>panel is down</html>`))
	})

	res := cli.TestConnectivity(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown error", res.Message)
}

func TestNon2xxWithEnvelopeStillParsed(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":0,"errors":["access denied"]}`))
	})

	res := cli.Delete(context.Background(), "abc", "example.com")
	assert.False(t, res.Success)
	assert.Equal(t, "access denied", res.Message)
}

func TestDeletePassesFullHost(t *testing.T) {
	var gotQuery map[string][]string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":1}`))
	})

	res := cli.Delete(context.Background(), "abc", "example.com")
	require.True(t, res.Success)
	assert.Equal(t, "abc.example.com", gotQuery["domain"][0])
}
