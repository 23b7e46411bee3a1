// Command railclaw runs the Railclaw payment orchestration service: it
// loads configuration, dials every configured chain, and serves the
// HTTP surface over internal/api until interrupted.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ag_solana "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rajweb3/railclaw/internal/api"
	evmchain "github.com/rajweb3/railclaw/internal/chain/evm"
	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/config"
	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/metrics"
	"github.com/rajweb3/railclaw/internal/monitor"
	"github.com/rajweb3/railclaw/internal/orchestrator"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

func main() {
	cfg := config.Load()
	log := logger.NewZapLogger(cfg.LogLevel)

	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.EnableMetrics {
		rec = metrics.NewPrometheusRecorder()
	}

	store, err := record.NewStore(cfg.DataDir)
	if err != nil {
		fatal(log, "open record store", err)
	}

	walletKey, err := walletseal.Key(cfg.WalletKeyHex)
	if err != nil {
		fatal(log, "parse wallet encryption key", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evmAdapters := dialEVM(ctx, cfg, log)
	defer func() {
		for _, a := range evmAdapters {
			a.Close()
		}
	}()

	solAdapter := solanachain.Dial(cfg.SolanaRPCURL, log)

	var dispenserKey *ag_solana.PrivateKey
	if cfg.DispenserKeyHex != "" {
		raw, err := hex.DecodeString(cfg.DispenserKeyHex)
		if err != nil {
			fatal(log, "parse dispenser key", err)
		}
		key := ag_solana.PrivateKey(raw)
		dispenserKey = &key
	}

	orch := orchestrator.New(orchestrator.Deps{
		PolicyPath:     cfg.PolicyPath,
		Store:          store,
		Registry:       monitor.NewRegistry(log),
		Config:         cfg,
		EVM:            evmAdapters,
		Solana:         solAdapter,
		WalletKey:      walletKey,
		DispenserKey:   dispenserKey,
		MonitorContext: ctx,
		Log:            log,
		Metrics:        rec,
	})

	if err := orch.RecoverMonitors(); err != nil {
		log.Error("recover monitors", map[string]any{"error": err})
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(orch, log))
	if cfg.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info("railclaw listening", map[string]any{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "serve http", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", map[string]any{"error": err})
	}
}

func dialEVM(ctx context.Context, cfg *config.Config, log logger.Logger) map[string]*evmchain.Adapter {
	adapters := make(map[string]*evmchain.Adapter, len(cfg.EVMRPCEndpoints))
	for chain, rpcURL := range cfg.EVMRPCEndpoints {
		if rpcURL == "" {
			continue
		}
		adapter, err := evmchain.Dial(ctx, chain, rpcURL, log)
		if err != nil {
			fatal(log, "dial "+chain, err)
		}
		adapters[chain] = adapter
	}
	return adapters
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, map[string]any{"error": err})
	os.Exit(1)
}
