package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/toorcn/checkmate/internal/config"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/otel"
	"github.com/toorcn/checkmate/internal/server"
)

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides CHECKMATE_ADDR)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: checkmate serve [--addr :8080]")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	cfg := config.Load()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	buf := otel.NewRingBuffer(otel.DefaultRingSize)
	a.obs.SetRingBuffer(buf)
	srv := server.New(cfg.Server, a.pipeline, a.limiter, a.reputation, buf)

	janitor := startJanitor(a)
	defer janitor.Stop()

	a.obs.Info(otel.KindStartup, "main", "serving on "+cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server failed", "error", err)
		}
	case <-ctx.Done():
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("shutdown incomplete", "error", err)
		}
	}
	a.obs.Info(otel.KindShutdown, "main", "stopped")
}

// startJanitor schedules background maintenance: expired rate-limit rows
// are purged every five minutes, creator stats are recomputed hourly.
func startJanitor(a *app) *cron.Cron {
	c := cron.New()

	c.AddFunc("@every 5m", func() {
		if a.sharedRate == nil {
			return
		}
		n, err := a.sharedRate.PurgeExpired(context.Background())
		if err != nil {
			logging.Warn("rate-limit purge failed", "error", err)
			return
		}
		if n > 0 {
			a.obs.JanitorPurge(int(n))
		}
	})

	c.AddFunc("@hourly", func() {
		if a.reputation == nil {
			return
		}
		if err := a.reputation.Rollup(context.Background()); err != nil {
			logging.Warn("reputation rollup failed", "error", err)
		}
	})

	c.Start()
	return c
}
