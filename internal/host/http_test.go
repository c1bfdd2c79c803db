package host

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-sub006/internal/blob"
	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/server"
	"github.com/nymtech/nym-sub006/internal/rpc"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

func newHTTPFixture(t *testing.T) (*Host, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := newHost(t, WithMetrics(monitoring.NewMetrics(reg)))

	s := NewHTTPServer(h, HTTPConfig{
		Server:   server.Config{AllowOrigins: []string{"https://app.test"}},
		Gatherer: reg,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func dialRPC(t *testing.T, ctx context.Context, srv *httptest.Server) *rpc.Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc"
	transport, err := rpc.DialWebSocket(ctx, url, nil, nil)
	require.NoError(t, err)
	client := rpc.NewClient(transport)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.WaitReady(ctx))
	return client
}

func TestHTTPRPCAndBlobDereference(t *testing.T) {
	h, srv := newHTTPFixture(t)
	ctx := testContext(t)
	client := dialRPC(t, ctx, srv)

	require.NoError(t, client.SetupMixFetch(ctx, types.SetupOptions{}))
	assert.Equal(t, StateReady, h.State())

	desc, err := client.MixFetch(ctx, "https://example.com/png?size=4096", types.RequestArgs{})
	require.NoError(t, err)
	body, ok := desc.Body.(types.BlobBody)
	require.True(t, ok, "got %T", desc.Body)

	origin, blobID, err := blob.ParseHandle(body.Ref.Handle)
	require.NoError(t, err)
	assert.Equal(t, h.Origin(), origin)

	resp, err := http.Get(srv.URL + "/blobs/" + blobID)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Len(t, data, 4096)

	resp, err = http.Get(srv.URL + "/blobs/" + blobID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPHealth(t *testing.T) {
	h, srv := newHTTPFixture(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var health struct {
		SandboxID string `json:"sandbox_id"`
		State     string `json:"state"`
		Origin    string `json:"origin"`
	}
	require.NoError(t, sonic.Unmarshal(raw, &health))
	assert.Equal(t, h.ID().String(), health.SandboxID)
	assert.Equal(t, "loaded", health.State)
	assert.Equal(t, h.Origin(), health.Origin)

	require.NoError(t, h.DisconnectMixFetch(testContext(t)))
	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestHTTPMetrics(t *testing.T) {
	_, srv := newHTTPFixture(t)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), "mixfetch_session_transitions_total")
	assert.Contains(t, string(raw), `mixfetch_host_http_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestHTTPCORS(t *testing.T) {
	_, srv := newHTTPFixture(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.test", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.test")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
