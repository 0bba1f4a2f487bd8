package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/metrics"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 2 * time.Second
)

// startMetricsServer serves /metrics on addr for the life of the command and
// returns the function that stops it. With no address, recording is turned
// off and nil is returned.
func startMetricsServer(addr string, log *config.ComponentLogger) func() {
	if addr == "" {
		metrics.Disable()
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("metrics listener on %s: %v", addr, err)
		metrics.Disable()
		return nil
	}
	metrics.Enable()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server: %v", err)
		}
	}()
	log.Debug("serving metrics on %s", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
