package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/renaultluk/sweat-coin/config"
	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/marketplace"
	"github.com/renaultluk/sweat-coin/native/merchant"
	"github.com/renaultluk/sweat-coin/native/rewards"
	"github.com/renaultluk/sweat-coin/native/treasury"
	"github.com/renaultluk/sweat-coin/observability/logging"
	"github.com/renaultluk/sweat-coin/rpc"
	"github.com/renaultluk/sweat-coin/storage"
)

const (
	rpcTokenEnv = "SWEAT_RPC_TOKEN"

	oracleTimeout = 5 * time.Second
	oracleMaxAge  = time.Minute
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SWEAT_ENV"))
	logger := logging.Setup("sweatd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	journal, err := events.OpenJournal(cfg.EventJournalPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to open event journal: %v", err))
	}
	defer journal.Close()
	bus := events.NewBus(journal)

	services, err := buildServices(cfg, db, bus)
	if err != nil {
		panic(fmt.Sprintf("Failed to wire services: %v", err))
	}

	server, err := rpc.NewServer(services, rpc.Config{
		AuthToken:       strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		WriteRatePerMin: cfg.RPCWriteRatePerMin,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to build RPC server: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sweatd",
		slog.String("network", cfg.NetworkName),
		slog.String("dataDir", cfg.DataDir),
		slog.String("rpc", cfg.RPCAddress))

	if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildServices constructs the engines leaf-first and bootstraps roles: the
// configured admin is granted admin, the reward engine's account minter, and
// the merchant gateway's account burner.
func buildServices(cfg *config.Config, db storage.Database, bus *events.Bus) (rpc.Services, error) {
	l, err := ledger.New(db, bus)
	if err != nil {
		return rpc.Services{}, err
	}
	admin := cfg.Admin()
	if err := l.Bootstrap(admin); err != nil {
		return rpc.Services{}, err
	}
	if !l.HasRole(cfg.RewardEngine(), ledger.RoleMinter) {
		if err := l.GrantRole(admin, cfg.RewardEngine(), ledger.RoleMinter); err != nil {
			return rpc.Services{}, err
		}
	}
	if !l.HasRole(cfg.MerchantGateway(), ledger.RoleBurner) {
		if err := l.GrantRole(admin, cfg.MerchantGateway(), ledger.RoleBurner); err != nil {
			return rpc.Services{}, err
		}
	}

	engine, err := rewards.NewEngine(cfg.RewardEngine(), l, db, bus, cfg.Oracle())
	if err != nil {
		return rpc.Services{}, err
	}

	var oracle treasury.PriceOracle
	if endpoint := strings.TrimSpace(cfg.PriceOracleEndpoint); endpoint != "" {
		oracle = treasury.NewHTTPOracle(endpoint, oracleTimeout, oracleMaxAge)
	}
	tr, err := treasury.New(cfg.Treasury(), l, db, oracle, nil, bus)
	if err != nil {
		return rpc.Services{}, err
	}
	if err := tr.SetMerchantGateway(admin, cfg.MerchantGateway()); err != nil {
		return rpc.Services{}, err
	}

	market, err := marketplace.New(l, engine, tr, db, bus)
	if err != nil {
		return rpc.Services{}, err
	}

	gateway, err := merchant.New(cfg.MerchantGateway(), cfg.Treasury(), l, tr, db, bus)
	if err != nil {
		return rpc.Services{}, err
	}

	return rpc.Services{
		Ledger:      l,
		Rewards:     engine,
		Marketplace: market,
		Treasury:    tr,
		Merchant:    gateway,
	}, nil
}
