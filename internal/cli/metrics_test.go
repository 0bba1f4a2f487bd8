package cli

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/metrics"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestStartMetricsServer(t *testing.T) {
	t.Cleanup(metrics.Enable)
	addr := freeAddr(t)

	stop := startMetricsServer(addr, config.NullLogger().Named("metrics"))
	require.NotNil(t, stop)
	assert.True(t, metrics.IsEnabled())

	metrics.RecordCacheEvent(metrics.CacheHit)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), metrics.Namespace+"_cache_events_total")

	stop()
	_, err = client.Get("http://" + addr + "/metrics")
	assert.Error(t, err, "server is shut down")
}

func TestStartMetricsServer_Disabled(t *testing.T) {
	t.Cleanup(metrics.Enable)

	assert.Nil(t, startMetricsServer("", config.NullLogger().Named("metrics")))
	assert.False(t, metrics.IsEnabled())
}

func TestStartMetricsServer_BadAddress(t *testing.T) {
	t.Cleanup(metrics.Enable)

	assert.Nil(t, startMetricsServer("not an address", config.NullLogger().Named("metrics")))
	assert.False(t, metrics.IsEnabled())
}
