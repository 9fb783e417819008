// Command master runs the coordinating process: it opens the Store,
// starts the Controller's supervision loop, and serves the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pymada-go/pymada/internal/config"
	"github.com/pymada-go/pymada/internal/httpapi"
	"github.com/pymada-go/pymada/internal/logging"
	"github.com/pymada-go/pymada/internal/metrics"
	"github.com/pymada-go/pymada/pkg/controller"
	"github.com/pymada-go/pymada/pkg/store"
)

func main() {
	log := logging.New()

	log.Infof("INIT", "loading configuration")
	cfg, err := config.LoadMaster()
	if err != nil {
		log.Errorf("INIT", "load configuration: %v", err)
		os.Exit(1)
	}

	log.Infof("INIT", "opening %s store", cfg.DBDriver)
	var st *store.GormStore
	switch cfg.DBDriver {
	case "postgres":
		st, err = store.OpenPostgres(cfg.DBDSN)
	default:
		st, err = store.OpenSQLite(cfg.DBDSN)
	}
	if err != nil {
		log.Errorf("INIT", "open store: %v", err)
		os.Exit(1)
	}
	if err := st.Migrate(); err != nil {
		log.Errorf("INIT", "migrate store: %v", err)
		os.Exit(1)
	}
	log.Infof("INIT", "store ready")

	m := metrics.New()

	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.MaxTaskDuration = time.Duration(cfg.MaxTaskDurationSeconds) * time.Second
	ctrlCfg.MaxTaskRetries = cfg.MaxTaskRetries

	ctrl := controller.New(st, ctrlCfg, log, m)
	ctx, cancel := context.WithCancel(context.Background())
	if err := ctrl.Start(ctx); err != nil {
		log.Errorf("INIT", "start controller: %v", err)
		os.Exit(1)
	}
	log.Infof("INIT", "controller started (max_task_duration=%s max_task_retries=%d)",
		ctrlCfg.MaxTaskDuration, ctrlCfg.MaxTaskRetries)

	server := httpapi.NewServer(st, cfg.TokenAuth, log, m)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		log.Infof("SHUTDOWN", "received signal: %v", sig)
		cancel()
		ctrl.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("SHUTDOWN", "server shutdown: %v", err)
		}

		if err := st.Close(); err != nil {
			log.Errorf("SHUTDOWN", "close store: %v", err)
		}

		log.Infof("SHUTDOWN", "graceful shutdown complete")
		os.Exit(0)
	}()

	log.Infof("INIT", "starting HTTP server on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("INIT", "server startup: %v", err)
		os.Exit(1)
	}
}
