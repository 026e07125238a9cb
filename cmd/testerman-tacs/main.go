// Command testerman-tacs runs the Agent Controller Broker (C5): the
// northbound (Ia) and southbound (Xa) WebSocket listeners and the
// /metrics Prometheus endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/testerman-project/testerman-core/internal/config"
	"github.com/testerman-project/testerman-core/internal/tacs"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.LoadTacsConfig(filepath.Join(*configDir, "testerman-tacs.yaml"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("starting testerman-tacs")
	log.Printf("listen addr: %s", cfg.ListenAddr)

	registry := tacs.NewRegistry()
	broker := tacs.NewBroker(registry)
	server := tacs.NewServer(broker)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("tacs server failed: %v", err)
	case <-sig:
		log.Printf("shutting down testerman-tacs")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	broker.Shutdown(shutdownCtx)
}
