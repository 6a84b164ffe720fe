// Heron - fraud screening for construction vendor bills.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/buildledger/heron/internal/api"
	"github.com/buildledger/heron/internal/bus"
	"github.com/buildledger/heron/internal/cache"
	"github.com/buildledger/heron/internal/docstore"
	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/engine"
	"github.com/buildledger/heron/internal/extract"
	"github.com/buildledger/heron/internal/history"
	"github.com/buildledger/heron/internal/repository"
	"github.com/buildledger/heron/internal/risk"
	"github.com/buildledger/heron/internal/rules"
	"github.com/buildledger/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local development overrides; missing .env files are fine.
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if path := os.Getenv("HERON_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if os.Getenv("HERON_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	setupLogger(cfg.Logging)

	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// A misconfigured scoring policy is a deployment error; refuse to start.
	if err := cfg.Scoring.Validate(); err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"storage_dir", cfg.StorageDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Document store
	docs, err := docstore.New(cfg.StorageDir)
	if err != nil {
		slog.Error("failed to initialize document store", "error", err)
		os.Exit(1)
	}

	// Screening rule engine; rules are configured via POST /rules, none are
	// hardcoded.
	screening, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	if err := loadScreeningRules(ctx, repo, screening); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screening.RulesCount())

	// Scoring collaborators. Unconfigured endpoints degrade: the validators
	// report "cannot verify" instead of failing the run.
	var verifier domain.TaxVerifier
	if tv := risk.NewTaxVerifier(cfg.Collaborators); tv != nil {
		verifier = tv
	}
	vendorClient := risk.NewVendorClient(cfg.Collaborators, cacheImpl)
	anomalyClient := risk.NewAnomalyClient(cfg.Collaborators)
	extractor := extract.NewClient(cfg.Collaborators)

	hist := history.NewService(repo, cacheImpl)
	eng := engine.New(cfg.Scoring, cfg.Collaborators, hist, verifier, vendorClient, anomalyClient, screening)
	slog.Info("scoring engine initialized",
		"approve_below", cfg.Scoring.ApproveBelow,
		"reject_at", cfg.Scoring.RejectAt,
	)

	// Async re-analysis worker
	asyncWorker := worker.NewWorker(busImpl, repo, eng)

	var tenantIDs []string
	if envTenants := os.Getenv("HERON_TENANTS"); envTenants != "" {
		tenantIDs = strings.Split(envTenants, ",")
	}
	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs, WorkerCount: 5}); err != nil {
		slog.Error("failed to start async worker", "error", err)
	} else {
		slog.Info("async worker started", "tenant_count", len(tenantIDs))
	}

	// HTTP server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, docs, extractor, eng, screening, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("heron shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadScreeningRules loads persisted rules into the engine at startup.
func loadScreeningRules(ctx context.Context, repo domain.Repository, screening *rules.Engine) error {
	dbRules, err := repo.ListScreeningRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list screening rules from database", "error", err)
		return nil // start empty; rules can be added via the API
	}

	if len(dbRules) > 0 {
		slog.Info("loading screening rules from database", "count", len(dbRules))
		return screening.LoadRules(dbRules)
	}

	slog.Info("no screening rules in database - configure via POST /rules")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  heron - vendor bill fraud screening")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /bills                    - Upload and score a bill")
	fmt.Println("    GET  /bills                    - List bills")
	fmt.Println("    GET  /bills/{id}               - Get bill by ID")
	fmt.Println("    GET  /bills/{id}/report        - Get fraud report")
	fmt.Println("    POST /bills/{id}/approve       - Approve a bill")
	fmt.Println("    POST /bills/{id}/reject        - Reject a bill")
	fmt.Println("    POST /bills/{id}/reanalyze     - Queue a re-analysis")
	fmt.Println("    POST /projects                 - Create a project budget")
	fmt.Println("    GET  /projects                 - List projects with spend")
	fmt.Println("    GET  /projects/{id}/budget     - Budget vs approved spend")
	fmt.Println("    POST /rules                    - Create a screening rule")
	fmt.Println("    POST /rules/reload             - Hot-reload screening rules")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
