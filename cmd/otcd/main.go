package main

import (
	"context"
	"encoding/hex"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexalidoperic/fheOtcDesk/params"
	"github.com/alexalidoperic/fheOtcDesk/pkg/api"
	"github.com/alexalidoperic/fheOtcDesk/pkg/auth"
	"github.com/alexalidoperic/fheOtcDesk/pkg/events"
	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
	"github.com/alexalidoperic/fheOtcDesk/pkg/reveal"
	"github.com/alexalidoperic/fheOtcDesk/pkg/storage"
	"github.com/alexalidoperic/fheOtcDesk/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/otcd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	seed, err := hex.DecodeString(cfg.Vault.SeedHex)
	if err != nil {
		sugar.Fatalw("bad_vault_seed", "err", err)
	}
	vault, err := fhe.NewClearVault(seed)
	if err != nil {
		sugar.Fatalw("vault_init_failed", "err", err)
	}

	store, err := storage.NewPebbleStore(cfg.Desk.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Desk.DataDir, "err", err)
	}
	defer store.Close()

	reg := ledger.NewInstrumentRegistry(cfg.Desk.Instruments...)
	clock := util.RealClock{}
	book := ledger.New(vault, reg, store, clock, sugar)
	if err := book.Load(); err != nil {
		sugar.Fatalw("ledger_load_failed", "err", err)
	}
	coord := reveal.NewCoordinator(book, vault, sugar)

	var verifier *auth.Verifier
	if cfg.Auth.RequireSignatures {
		domain := auth.DefaultDomain()
		domain.ChainID = big.NewInt(cfg.Auth.ChainID)
		verifier = auth.NewVerifier(domain)
		sugar.Infow("signature_enforcement_enabled", "chain_id", cfg.Auth.ChainID)
	}

	server := api.NewServer(book, coord, reg, vault, verifier, sugar)
	book.AddEmitter(server.Hub())

	if len(cfg.Kafka.Brokers) > 0 {
		emitter := events.NewKafkaEmitter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer emitter.Close()
		book.AddEmitter(emitter)
		sugar.Infow("kafka_emitter_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Desk.ExpirySweep > 0 {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-clock.After(cfg.Desk.ExpirySweep):
					if n := book.SweepExpired(ctx); n > 0 {
						sugar.Infow("expiry_sweep", "deactivated", n)
					}
				}
			}
		}()
	}

	sugar.Infow("otcd_starting",
		"addr", cfg.HTTP.ListenAddr,
		"instruments", cfg.Desk.Instruments,
		"data_dir", cfg.Desk.DataDir)
	if err := server.Start(ctx, cfg.HTTP.ListenAddr); err != nil {
		sugar.Fatalw("server_failed", "err", err)
	}
	sugar.Infow("otcd_stopped")
}
