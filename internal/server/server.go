package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/broker"
	"github.com/BioHazard786/warpcode/internal/config"
)

const shutdownTimeout = 10 * time.Second

// Run serves the rendezvous broker until ctx is cancelled, then shuts the
// HTTP server down gracefully and stops the hub.
func Run(ctx context.Context, cfg *config.ServerConfig, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := broker.NewHub(broker.Options{
		Registry:      cfg.RegistryOptions(),
		SweepInterval: cfg.SweepInterval,
		Logger:        log.Named("broker"),
		Metrics:       broker.NewMetrics(reg),
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer func() {
		stopHub()
		<-hub.Done()
	}()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: Routes{
			Hub:        hub,
			Gatherer:   reg,
			TrustProxy: cfg.TrustProxy,
			Logger:     log,
		}.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Signaling server listening",
			zap.String("addr", srv.Addr),
			zap.Duration("ttl", cfg.SessionTTL),
			zap.Int("max_conns_per_ip", cfg.MaxConnsPerAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("Server closed")
	return nil
}
