package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drawguess/backend/cmd/syncd/handlers"
	"github.com/drawguess/backend/internal/assets"
	"github.com/drawguess/backend/internal/config"
	"github.com/drawguess/backend/internal/logging"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/remote"
	"github.com/drawguess/backend/internal/store"
	syncpkg "github.com/drawguess/backend/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(os.Stderr, "info")
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}
	logging.Init(os.Stdout, cfg.LogLevel)

	if err := run(cfg); err != nil {
		logging.Error("Daemon exited with error", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(db.DB); err != nil {
		return err
	}

	local := store.NewLocal(db)
	defer local.Close()

	if !cfg.RemoteConfigured() {
		logging.Warn("Cloud backend not configured, serving local sessions only", nil)
		return serve(cfg, local, nil, nil)
	}

	remoteClient, err := remote.NewClient(remote.Config{
		BaseURL:     cfg.SupabaseURL,
		AnonKey:     cfg.SupabaseAnonKey,
		AccessToken: cfg.AccessToken,
	})
	if err != nil {
		return err
	}

	storageClient, err := assets.NewStorageClient(assets.StorageConfig{
		BaseURL:     cfg.SupabaseURL,
		AnonKey:     cfg.SupabaseAnonKey,
		AccessToken: cfg.AccessToken,
		Bucket:      cfg.Bucket,
	})
	if err != nil {
		return err
	}

	cache := assets.NewURLCache(cfg.CacheMaxEntries, cfg.CacheMaxAge)
	transfer := assets.NewTransfer(storageClient, cache, assets.TransferConfig{
		MaxWidth:   cfg.UploadMaxWidth,
		MaxHeight:  cfg.UploadMaxHeight,
		Quality:    cfg.UploadQuality,
		MaxRetries: cfg.UploadMaxRetries,
	})

	orch := syncpkg.NewOrchestrator(local, remoteClient, models.DefaultSyncOptions(), cfg.SyncInterval)

	return serve(cfg, local, orch, transfer)
}

// serve wires the HTTP surface and blocks until shutdown. The
// orchestrator and transfer are nil when the cloud backend is not
// configured; the matching endpoints then report SYNC_NOT_CONFIGURED.
func serve(cfg *config.Config, local *store.Local, orch *syncpkg.Orchestrator, transfer *assets.Transfer) error {
	hub := NewWSHub()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"drawguess-syncd"}`))
	})
	mux.HandleFunc("/ws", hub.HandleWS)

	var controller handlers.SyncController
	if orch != nil {
		orch.SetNotifier(hub)
		controller = orch
	}

	syncHandler := handlers.NewSyncHandler(controller, local)
	mux.HandleFunc("/api/sync/start", syncHandler.Start)
	mux.HandleFunc("/api/sync/stop", syncHandler.Stop)
	mux.HandleFunc("/api/sync/trigger", syncHandler.Trigger)
	mux.HandleFunc("/api/sync/status", syncHandler.Status)
	mux.HandleFunc("/api/sync/pending", syncHandler.Pending)
	mux.HandleFunc("/api/sync/conflicts/resolve", syncHandler.Resolve)
	mux.HandleFunc("/api/sync/conflicts/log", syncHandler.ConflictLog)

	var drawings handlers.DrawingTransfer
	if transfer != nil {
		drawings = transfer
	}
	sessionHandler := handlers.NewSessionHandler(local, controller, drawings)
	mux.HandleFunc("/api/sessions", sessionHandler.Collection)
	mux.HandleFunc("/api/sessions/", sessionHandler.Item)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if orch != nil {
		g.Go(func() error {
			return orch.Start(gctx)
		})
	}

	g.Go(func() error {
		logging.Info("Sync daemon listening", map[string]interface{}{
			"addr": cfg.HTTPAddr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if orch != nil {
			orch.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
