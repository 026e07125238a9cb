// Command testerman-server runs the Job Subsystem: the scheduler and
// registry (C3/C4), the Ws façade and the Xc notification bus.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/testerman-project/testerman-core/internal/config"
	"github.com/testerman-project/testerman-core/internal/events"
	"github.com/testerman-project/testerman-core/internal/scheduler"
	"github.com/testerman-project/testerman-core/internal/te"
	"github.com/testerman-project/testerman-core/internal/wsapi"
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
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.LoadServerConfig(filepath.Join(*configDir, "testerman-server.yaml"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("starting testerman-server")
	log.Printf("listen addr: %s", cfg.ListenAddr)
	log.Printf("doc root: %s", cfg.DocRoot)

	if err := os.MkdirAll(cfg.DocRoot, 0o755); err != nil {
		log.Fatalf("creating doc root: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0o755); err != nil {
		log.Fatalf("creating state directory: %v", err)
	}

	registry := scheduler.NewRegistry()
	store := scheduler.NewStore(cfg.StateFile)
	sched := scheduler.New(registry, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("starting scheduler: %v", err)
	}
	defer sched.Stop()

	builder := &scheduler.Builder{
		Scheduler:   sched,
		DocRoot:     cfg.DocRoot,
		CoreModules: cfg.CoreModules,
		MergeMode:   cfg.ResolveMergeMode(),
		TEFactory:   te.New(te.Config{Interpreter: cfg.Interpreter, ModulePaths: cfg.ModulePaths}),
	}

	bus := events.NewBus()
	server := wsapi.NewServer(sched, builder, bus)

	go runPurgeLoop(ctx, sched, cfg.PurgeInterval())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("wsapi server listening", "addr", cfg.ListenAddr)
		if err := server.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("wsapi server failed: %v", err)
	case <-sig:
		log.Printf("shutting down testerman-server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during wsapi shutdown: %v", err)
	}
}

// runPurgeLoop periodically removes terminal job trees older than
// interval, nudged on a fixed ticker independent of
// the scheduler's own readiness scan.
func runPurgeLoop(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sched.Purge(interval); err != nil {
				slog.Error("periodic purge failed", "error", err)
			} else if n > 0 {
				slog.Info("periodic purge removed jobs", "count", n)
			}
		}
	}
}
