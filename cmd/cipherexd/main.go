package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"cipherex/config"
	"cipherex/core/events"
	"cipherex/core/state"
	"cipherex/crypto"
	"cipherex/eventstore"
	"cipherex/native/assets"
	"cipherex/native/exchange"
	"cipherex/native/fraud"
	"cipherex/native/transfer"
	"cipherex/native/whitelist"
	"cipherex/observability/logging"
	"cipherex/observability/metrics"
	"cipherex/rpc"
	"cipherex/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("cipherexd", cfg.NetworkName)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()
	manager := state.NewManager(db)

	index, err := eventstore.Open(filepath.Join(cfg.DataDir, "events.db"), nil)
	if err != nil {
		logger.Error("Failed to open event index", slog.Any("error", err))
		os.Exit(1)
	}
	defer index.Close()

	emitter := events.MultiEmitter{
		&eventLogger{logger: logger},
		index,
		metrics.NewEmitter(),
	}

	ledger := assets.NewLedger()
	ledger.SetState(manager)
	ledger.SetEmitter(emitter)

	transferEngine := transfer.NewEngine()
	transferEngine.SetState(manager)
	transferEngine.SetEmitter(emitter)
	transferEngine.SetRegistrySource(func(collection [20]byte) (transfer.Registry, bool) {
		view, ok := ledger.View(collection)
		if !ok {
			return nil, false
		}
		return view, true
	})

	var admin [20]byte
	if cfg.AdminAddress != "" {
		adminAddr, err := crypto.DecodeAddress(cfg.AdminAddress)
		if err != nil {
			logger.Error("Invalid admin address", slog.Any("error", err))
			os.Exit(1)
		}
		admin = adminAddr.Bytes()
		transferEngine.SetAdmin(admin)
	}
	transferEngine.ConfigureSalesStart(cfg.Transfer.SalesStart)
	transferEngine.ConfigureTimeouts(cfg.Transfer.FinalizeTimeoutSecs, cfg.Transfer.AbandonTimeoutSecs)

	var arbiterAddr [20]byte
	if cfg.Fraud.ArbiterAddress != "" {
		decoded, err := crypto.DecodeAddress(cfg.Fraud.ArbiterAddress)
		if err != nil {
			logger.Error("Invalid arbiter address", slog.Any("error", err))
			os.Exit(1)
		}
		arbiterAddr = decoded.Bytes()
	}
	transferEngine.SetAllowDeferred(cfg.Fraud.AllowDeferred)
	if cfg.Fraud.AllowDeferred {
		transferEngine.SetArbiter(fraud.NewManualOracle(), arbiterAddr)
	} else {
		transferEngine.SetArbiter(fraud.NewOracle(), arbiterAddr)
	}

	if len(cfg.Whitelist.Tiers) > 0 {
		tiers := make([]whitelist.Tier, 0, len(cfg.Whitelist.Tiers))
		for _, tier := range cfg.Whitelist.Tiers {
			approver, err := crypto.DecodeAddress(tier.Approver)
			if err != nil {
				logger.Error("Invalid whitelist approver", slog.Any("error", err))
				os.Exit(1)
			}
			tiers = append(tiers, whitelist.Tier{
				Start:       tier.FromID,
				End:         tier.ToID,
				DiscountBps: uint32(tier.DiscountBps),
				Approver:    approver.Bytes(),
			})
		}
		policy, err := whitelist.NewPolicy(tiers, cfg.Whitelist.Deadline, ledger)
		if err != nil {
			logger.Error("Failed to build whitelist policy", slog.Any("error", err))
			os.Exit(1)
		}
		transferEngine.SetPricingPolicy(policy)
	}

	exchangeEngine := exchange.NewEngine(transferEngine, vaultAddress(cfg.NetworkName))
	exchangeEngine.SetState(manager)
	exchangeEngine.SetEmitter(emitter)
	exchangeEngine.SetRegistrySource(func(collection [20]byte) (exchange.Registry, bool) {
		view, ok := ledger.View(collection)
		if !ok {
			return nil, false
		}
		return view, true
	})
	if err := transferEngine.RegisterCallback(exchange.CallbackName, exchangeEngine); err != nil {
		logger.Error("Failed to register exchange callback", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("node initialised",
		"dataDir", cfg.DataDir,
		"vault", crypto.MustNewAddress(exchangeEngine.Address()).String(),
	)

	server := rpc.NewServer(transferEngine, exchangeEngine, ledger, index, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// vaultAddress derives the escrow vault account for the network. Deriving it
// from the network name keeps the account stable across restarts without a
// key on disk; nothing ever signs for it.
func vaultAddress(network string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("cipherex/exchange/" + network))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// eventLogger mirrors engine events onto the structured log.
type eventLogger struct {
	logger *slog.Logger
}

func (l *eventLogger) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	l.logger.Info("engine event", "type", evt.EventType())
}
