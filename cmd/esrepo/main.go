// Command esrepo drives the event sourced repository against one of the
// supported backends: it opens bank accounts, deposits into them from
// concurrent workers, snapshots them and verifies every balance.
//
// Configuration is read from esrepo.yaml (or -config) and ESREPO_*
// environment variables, e.g. ESREPO_BACKEND=sqlite ESREPO_STREAM_MODE=shared.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	promadapter "github.com/codewandler/esrepo-go/adapters/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})).With(slog.String("backend", cfg.Backend), slog.String("stream_mode", cfg.StreamMode))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runMain(ctx, cfg, log); err != nil {
		log.Error("failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runMain(ctx context.Context, cfg *Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := promadapter.NewESMetrics(reg)

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		log.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
	}

	env, closeEnv, err := openEnv(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEnv(); err != nil {
			log.Warn("failed to close backend", slog.Any("error", err))
		}
	}()

	summary, err := run(ctx, env, cfg, log)
	if err != nil {
		return err
	}
	log.Info("done", summary.LogAttrs()...)

	if srv == nil {
		return nil
	}

	log.Info("waiting for interrupt")
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
