// Package main implements the partition-pruner plan service binary: it
// loads table definitions from the catalog and serves POST /v1/plan,
// computing the partition-key intervals a scan must visit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	httpapi "github.com/tabletpruner/partitionpruner/internal/api/http"
	"github.com/tabletpruner/partitionpruner/internal/catalog"
	"github.com/tabletpruner/partitionpruner/internal/config"
	"github.com/tabletpruner/partitionpruner/internal/observability"
	"github.com/tabletpruner/partitionpruner/internal/server"
	"github.com/tabletpruner/partitionpruner/internal/storage"
)

func main() {
	cfg := parseFlags()

	log.Printf("Starting partition-pruner plan service...")
	log.Printf("HTTP address: %s", cfg.HTTP.Addr)

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	log.Printf("Catalog opened at: %s", cfg.Catalog.Path)

	objStore, err := newObjectStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	if id, ok, err := catalog.LatestSnapshotID(context.Background(), objStore, cfg.Catalog.SnapshotPrefix); err != nil {
		log.Printf("Warning: failed to look up catalog snapshot: %v", err)
	} else if ok {
		if err := store.PullSnapshot(context.Background(), objStore, cfg.Catalog.SnapshotPrefix, id); err != nil {
			log.Printf("Warning: failed to pull catalog snapshot %s: %v", id, err)
		} else {
			log.Printf("Restored catalog snapshot %s", id)
		}
	}

	stats := observability.NewPruningStats(cfg.Observability.StatsWindow)

	shutdownMgr := server.NewShutdownManager(server.DefaultShutdownConfig())
	shutdownMgr.RegisterCloser(store)
	shutdownMgr.OnShutdownStart(func() {
		log.Printf("Shutdown starting: draining in-flight plan requests (%d in flight)", shutdownMgr.InFlightCount())
	})
	shutdownMgr.OnShutdownEnd(func() {
		log.Printf("Shutdown complete")
	})

	if cfg.Catalog.SnapshotInterval > 0 {
		go runSnapshotLoop(shutdownMgr, store, objStore, cfg.Catalog)
	}

	planHandler := &httpapi.PlanHandler{Catalog: store, Stats: stats}

	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(shutdownMgr),
		httpapi.RequestIDMiddleware,
		httpapi.CorrelationIDMiddleware,
		httpapi.RecoveryMiddleware,
		httpapi.ContentTypeMiddleware,
	)
	mux.Handle("/v1/plan", middleware(planHandler))
	mux.HandleFunc("/health", healthHandler(shutdownMgr))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	gracefulServer := server.NewGracefulHTTPServer(httpServer, shutdownMgr)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := gracefulServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	if err := shutdownMgr.ListenForSignals(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Printf("partition-pruner service stopped")
}

func parseFlags() *config.Config {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML or JSON config file")

	var httpAddr string
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP server address (overrides config)")

	flag.Parse()

	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	return cfg
}

func newObjectStorage(cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "s3":
		s3Cfg := storage.S3Config{
			Region:         cfg.Storage.S3.Region,
			Endpoint:       cfg.Storage.S3.Endpoint,
			MaxRetries:     cfg.Storage.S3.MaxRetries,
			RetryBaseDelay: cfg.Storage.S3.RetryBaseDelay,
		}
		return storage.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return storage.NewLocalStorage(cfg.Storage.Path)
	}
}

// runSnapshotLoop periodically pushes a snapshot of store to objStore and
// prunes everything beyond cfg.SnapshotRetain, so a fleet of planner
// instances converges on the same table definitions without every instance
// hitting the catalog database directly.
//
// Each iteration is registered with shutdownMgr as a background task before
// it touches the catalog and released when it's done, so Shutdown waits for
// a push already in progress to finish before closing store — otherwise a
// push straddling the moment store.Close() runs would be writing through a
// connection that's being torn out from under it.
func runSnapshotLoop(shutdownMgr *server.ShutdownManager, store *catalog.Store, objStore storage.ObjectStorage, cfg config.CatalogConfig) {
	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownMgr.ShutdownCh():
			return
		case <-ticker.C:
			if !shutdownMgr.TrackBackgroundTask() {
				// Shutdown started between the tick firing and us getting
				// here; stop the loop rather than race the closers.
				return
			}
			pushSnapshotOnce(store, objStore, cfg)
			shutdownMgr.UntrackBackgroundTask()
		}
	}
}

// pushSnapshotOnce runs one push-then-prune cycle of the snapshot loop.
func pushSnapshotOnce(store *catalog.Store, objStore storage.ObjectStorage, cfg config.CatalogConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := store.PushSnapshot(ctx, objStore, cfg.SnapshotPrefix)
	if err != nil {
		log.Printf("Warning: failed to push catalog snapshot: %v", err)
		return
	}
	log.Printf("Pushed catalog snapshot %s", id)

	if deleted, err := catalog.PruneSnapshots(ctx, objStore, cfg.SnapshotPrefix, cfg.SnapshotRetain); err != nil {
		log.Printf("Warning: failed to prune catalog snapshots: %v", err)
	} else if len(deleted) > 0 {
		log.Printf("Pruned %d stale catalog snapshot(s)", len(deleted))
	}
}

// healthHandler reports service health along with shutdown drain state, so
// a load balancer stops routing traffic to an instance as soon as it starts
// shutting down rather than waiting for it to stop accepting connections.
func healthHandler(shutdownMgr *server.ShutdownManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shutdownMgr.IsShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":"partition-pruner","in_flight":%d}`, shutdownMgr.InFlightCount())
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"partition-pruner"}`))
	}
}
