package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"vaultd/config"
	"vaultd/core/state"
	"vaultd/native/escrow"
	"vaultd/observability/logging"
	"vaultd/rpc"
	"vaultd/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULTD_ENV"))
	logger := logging.Setup("vaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	vaultKey, err := cfg.VaultKey()
	if err != nil {
		logger.Error("Failed to load vault keystore", slog.Any("error", err))
		os.Exit(1)
	}
	vaultAddr := vaultKey.PubKey().Address()

	admin, err := cfg.Administrator()
	if err != nil {
		logger.Error("Failed to resolve administrator address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	engine := escrow.NewEngine()
	engine.SetState(manager)

	var vault, arbiter [20]byte
	copy(vault[:], vaultAddr.Bytes())
	copy(arbiter[:], admin.Bytes())
	engine.SetVaultAddress(vault)
	engine.SetAdministrator(arbiter)

	logger.Info("vault engine ready",
		slog.String("network", cfg.NetworkName),
		slog.String("custodian", vaultAddr.String()),
		slog.String("administrator", admin.String()),
	)

	server := rpc.NewServer(engine, logger, "")
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
