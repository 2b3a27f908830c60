package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/metrics"
)

// startTelemetry binds the Prometheus scrape endpoint when one is
// configured. A bind failure is fatal: the operator asked for telemetry and
// silently running without it would hide exactly the incidents it exists to
// expose.
func (d *Daemon) startTelemetry() error {
	if d.cfg.Telemetry.Listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	mux.HandleFunc("/healthz", d.handleHealth)

	listener, err := net.Listen("tcp", d.cfg.Telemetry.Listen)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "telemetry listener failed to bind").
			WithContext("listen", d.cfg.Telemetry.Listen).
			Build()
	}

	d.telemetry = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.telemetry.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Telemetry server failed", logfields.Error(err))
		}
	}()

	d.logger.Info("Telemetry listening", logfields.Socket(d.cfg.Telemetry.Listen))
	return nil
}

func (d *Daemon) stopTelemetry(ctx context.Context) {
	if d.telemetry == nil {
		return
	}
	if err := d.telemetry.Shutdown(ctx); err != nil {
		d.logger.Error("Telemetry shutdown failed", logfields.Error(err))
	}
}
