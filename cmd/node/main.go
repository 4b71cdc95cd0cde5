package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/anydex/anydex/internal/config"
	"github.com/anydex/anydex/internal/directory"
	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation/clearing"
	"github.com/anydex/anydex/internal/p2p"
	"github.com/anydex/anydex/internal/restapi"
	"github.com/anydex/anydex/internal/storage"
	"github.com/anydex/anydex/internal/trader"
	"github.com/anydex/anydex/internal/wallet"
	"github.com/anydex/anydex/internal/wallet/memwallet"
	ourcrypto "github.com/anydex/anydex/pkg/crypto"
	"github.com/anydex/anydex/pkg/util"
)

func main() {
	cfg := config.LoadFromEnv("") // "" means load from .env in current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/node.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	id, err := loadIdentity()
	if err != nil {
		sugar.Fatalw("identity_init_failed", "err", err)
	}
	sugar.Infow("identity_loaded", "trader", id.String())

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = "data/store"
	}
	store, err := storage.Open(storePath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", storePath, "err", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	net, err := p2p.New(ctx, p2p.Config{
		ListenAddr: cfg.Network.ListenAddr,
		Bootstrap:  cfg.Network.Bootstrap,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("p2p_init_failed", "err", err)
	}
	defer net.Host().Close()

	dir := directory.New()

	clearPolicy := clearing.Policy(clearing.AlwaysTrade{})
	if cfg.Matching.SingleTrade {
		clearPolicy = clearing.NewSingleTradeClearingPolicy(trader.NewStoreChainFetcher(store))
	}

	wallets := loadWallets()

	tr, err := trader.New(id, cfg, store, net, dir, wallets, clearPolicy, sugar)
	if err != nil {
		sugar.Fatalw("trader_init_failed", "err", err)
	}
	tr.Start(ctx)
	defer tr.Stop()

	apiServer := restapi.NewServer(tr, sugar)
	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = ":8080"
	}

	go func() {
		sugar.Infow("api_server_starting", "addr", apiAddr)
		if err := apiServer.Start(apiAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"trader", id.String(),
		"listen_addr", cfg.Network.ListenAddr,
		"api_addr", apiAddr,
		"sync_policy", cfg.Sync.SyncPolicy,
		"dissemination_policy", cfg.Dissemination.Policy)

	<-ctx.Done()
	sugar.Info("node_shutting_down")
}

// loadIdentity derives the node's trading identity from ANYDEX_PRIVATE_KEY if
// set, otherwise generates a fresh one for local development — mirroring the
// node's old single-validator dev-mode shortcut, now applied to a trader
// keypair instead of a consensus validator id. The key itself is only ever
// needed by order-signing clients (cmd/orderctl); the node checks
// signatures, it doesn't produce them.
func loadIdentity() (market.TraderID, error) {
	if hexKey := os.Getenv("ANYDEX_PRIVATE_KEY"); hexKey != "" {
		signer, err := ourcrypto.FromPrivateKeyHex(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return market.TraderID{}, err
		}
		return market.TraderIDFromAddress(signer.Address()), nil
	}
	signer, err := ourcrypto.GenerateKey()
	if err != nil {
		return market.TraderID{}, err
	}
	return market.TraderIDFromAddress(signer.Address()), nil
}

// loadWallets builds wallet adapters for local development from
// ANYDEX_WALLET_<ASSET>_BALANCE env vars (e.g. ANYDEX_WALLET_BTC_BALANCE=10).
// Real deployments wire a wallet.Adapter implementation per asset instead.
func loadWallets() map[string]wallet.Adapter {
	wallets := make(map[string]wallet.Adapter)
	for _, kv := range os.Environ() {
		const prefix = "ANYDEX_WALLET_"
		const suffix = "_BALANCE"
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimPrefix(parts[0], prefix)
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		asset := strings.TrimSuffix(key, suffix)
		balance, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || asset == "" {
			continue
		}
		wallets[asset] = memwallet.New(asset, "dev-"+strings.ToLower(asset), balance)
	}
	return wallets
}
