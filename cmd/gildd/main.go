package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gildchain/config"
	"gildchain/core/state"
	"gildchain/crypto"
	"gildchain/native/ledger"
	"gildchain/observability/logging"
	"gildchain/observability/metrics"
	"gildchain/rpc"
	"gildchain/storage"
)

const rpcSecretEnv = "GILD_RPC_SECRET"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("gildd", cfg.Environment, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	engine := ledger.NewEngine()
	engine.SetState(manager)
	engine.SetAuthorizer(manager)
	engine.SetEmitter(&logEmitter{log: logger})

	if err := seedGenesis(cfg, manager, engine, logger); err != nil {
		logger.Error("Failed to seed genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	if rate, err := engine.BaseRate(); err == nil {
		metrics.Ledger().SetBaseRate(rate)
	}
	if supply, err := engine.TotalSupply(); err == nil {
		metrics.Ledger().SetTotalSupply(supply)
	}

	secret := strings.TrimSpace(os.Getenv(rpcSecretEnv))
	if secret == "" {
		logger.Warn("No RPC auth secret configured; write methods are disabled", "env", rpcSecretEnv)
	}
	server := rpc.NewServer(engine, rpc.NewAuthenticator([]byte(secret)), logger)

	go func() {
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("gildd started",
		"network", cfg.NetworkName,
		"rpc", cfg.RPCAddress,
		"metrics", cfg.MetricsAddress,
		"dataDir", cfg.DataDir,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())
}

// seedGenesis initialises the base rate and role grants from configuration.
// Role grants are idempotent; the rate initialisation refuses to raise a
// persisted rate so the decrease-only history survives restarts.
func seedGenesis(cfg *config.Config, manager *state.Manager, engine *ledger.Engine, logger *slog.Logger) error {
	rate, err := cfg.Genesis.BaseRateWad()
	if err != nil {
		return err
	}
	if rate != nil {
		if err := engine.InitializeBaseRate(rate); err != nil {
			return err
		}
		logger.Info("Base rate initialised", "rate", rate.String())
	}

	for _, encoded := range cfg.Roles.Minters {
		addr, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return fmt.Errorf("minter address %q: %w", encoded, err)
		}
		if err := manager.GrantRole(ledger.RoleMinter, addr.Bytes()); err != nil {
			return err
		}
	}
	for _, encoded := range cfg.Roles.RateAdmins {
		addr, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return fmt.Errorf("rate admin address %q: %w", encoded, err)
		}
		if err := manager.GrantRole(ledger.RoleRateAdmin, addr.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
