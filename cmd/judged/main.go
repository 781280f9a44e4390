// Command judged runs the evaluation server: it loads configuration,
// wires the artifact cache, priority scheduler, pipeline handlers, and
// sandbox adapter together, and serves the HTTP surface described in
// SPEC_FULL.md §6. Shaped after cmd/webui/main.go's load-config ->
// construct-services -> register-routes -> serve flow.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oimasterkafuu/judge-server/pkg/infrastructure/config"
	"github.com/oimasterkafuu/judge-server/pkg/infrastructure/logging"
	"github.com/oimasterkafuu/judge-server/pkg/infrastructure/metrics"
	"github.com/oimasterkafuu/judge-server/pkg/judge/api"
	"github.com/oimasterkafuu/judge-server/pkg/judge/cache"
	"github.com/oimasterkafuu/judge-server/pkg/judge/pipeline"
	"github.com/oimasterkafuu/judge-server/pkg/judge/sandbox"
	"github.com/oimasterkafuu/judge-server/pkg/judge/scheduler"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("judged: invalid configuration: %v", err)
	}

	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}

	output := io.Writer(os.Stdout)
	switch cfg.Logging.Output {
	case "file":
		if w, ferr := logging.CreateFileOutput(cfg.Logging.File); ferr == nil {
			output = w
		}
	case "both":
		if w, ferr := logging.CreateCombinedOutput(cfg.Logging.File); ferr == nil {
			output = w
		}
	}

	logger := logging.NewLogger(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    output,
		Component: "judged",
	})

	artifactCache, err := cache.New(cache.Config{
		Root:          cfg.Cache.Root,
		TTL:           time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.Cache.TTLSeconds) * time.Second / 5,
		Watch:         true,
	})
	if err != nil {
		log.Fatalf("judged: cache root unwritable: %v", err)
	}
	defer artifactCache.Close()

	metricsBundle := metrics.New()

	sched := scheduler.New(scheduler.Config{
		Concurrency: cfg.Threads,
		OnTerminal: func(t *scheduler.Task) {
			var duration float64
			if !t.StartedAt.IsZero() {
				duration = t.CompletedAt.Sub(t.StartedAt).Seconds()
			}
			metricsBundle.ObserveTaskTerminal(t.Status == scheduler.StatusFailed, duration)
		},
	})

	handlers := &pipeline.Handlers{
		Cache:       artifactCache,
		Sandbox:     &sandbox.ProcessSandbox{ScratchRoot: cfg.Cache.ScratchRoot},
		ScratchRoot: cfg.Cache.ScratchRoot,
	}
	handlers.RegisterAll(sched)

	stopPolling := make(chan struct{})
	metricsBundle.StartPolling(5*time.Second, stopPolling,
		func() metrics.SchedulerSnapshot {
			st := sched.Status()
			return metrics.SchedulerSnapshot{QueueSize: st.QueueSize, ActiveWorkers: st.ActiveWorkers, Concurrency: st.Concurrency}
		},
		func() metrics.CacheSnapshot {
			st := artifactCache.Stats()
			return metrics.CacheSnapshot{Count: st.Count, TotalBytes: st.TotalBytes}
		},
	)
	defer close(stopPolling)

	server := api.NewServer(artifactCache, sched, metricsBundle, logger, cfg.Token)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:        server.Router(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("judged listening on %s", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("judged: fatal startup failure: %v", err)
			os.Exit(1)
		}
	case <-sig:
		logger.Info("judged: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Errorf("judged: graceful shutdown failed: %v", err)
			os.Exit(1)
		}
	}

	os.Exit(0)
}
