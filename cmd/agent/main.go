// Command agent runs a worker process: it registers with the master,
// downloads its assigned runner, and serves the local HTTP API the
// runner and the master both call into.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/pymada-go/pymada/internal/agent"
	"github.com/pymada-go/pymada/internal/config"
	"github.com/pymada-go/pymada/internal/logging"
)

func main() {
	log := logging.New()
	cfg := config.LoadAgent()

	log.Infof("INIT", "registering with master at %s", cfg.MasterURL)
	a, err := agent.New(*cfg, log, true)
	if err != nil {
		log.Errorf("INIT", "initialize agent: %v", err)
		os.Exit(1)
	}

	router := agent.NewRouter(a)
	addr := cfg.AgentAddr + ":" + cfg.AgentPort
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Infof("INIT", "starting agent HTTP server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("INIT", "server startup: %v", err)
		os.Exit(1)
	}
}
