package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/universexyz/marketplace-orderbook/params"
	"github.com/universexyz/marketplace-orderbook/pkg/api"
	"github.com/universexyz/marketplace-orderbook/pkg/engine"
	"github.com/universexyz/marketplace-orderbook/pkg/eth"
	"github.com/universexyz/marketplace-orderbook/pkg/events"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
	"github.com/universexyz/marketplace-orderbook/pkg/query"
	"github.com/universexyz/marketplace-orderbook/pkg/storage"
	"github.com/universexyz/marketplace-orderbook/pkg/util"
	"github.com/universexyz/marketplace-orderbook/pkg/watchdog"
)

func main() {
	cfg := params.LoadFromEnv("") // "" loads .env from the current directory

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Storage ----
	store, err := storage.NewOrderStore(cfg.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.DataDir, "err", err)
	}
	defer store.Close()

	// ---- Chain collaborator ----
	exchange := common.HexToAddress(cfg.Chain.ExchangeAddress)
	verifier, err := eth.Dial(cfg.Chain.RPCURL, exchange, sugar)
	if err != nil {
		sugar.Fatalw("rpc_dial_failed", "url", cfg.Chain.RPCURL, "err", err)
	}
	domain := eth.Domain(cfg.Chain.DomainName, cfg.Chain.DomainVersion, cfg.Chain.ChainID, exchange)

	// ---- Watchdog ----
	var notifier watchdog.Notifier = watchdog.Noop{}
	if cfg.Watchdog.BaseURL != "" {
		notifier = watchdog.NewClient(cfg.Watchdog.BaseURL, cfg.Watchdog.Topic, sugar)
	}

	// ---- Engines ----
	eng := engine.New(store, verifier, notifier, domain, exchange, sugar)
	queries := query.NewEngine(store)

	// ---- Price snapshot scheduler ----
	fetcher := &price.CoingeckoFetcher{
		BaseURL: cfg.Prices.BaseURL,
		Tokens:  price.DefaultTokens,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	prices := price.NewScheduler(fetcher, cfg.Prices.RefreshInterval, sugar)
	go prices.Run(ctx)

	// ---- Optional Kafka ingestion ----
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, eng, sugar)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				sugar.Errorw("kafka_consumer_stopped", "err", err)
			}
		}()
		sugar.Infow("kafka_consumer_started", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- API ----
	server := api.NewServer(eng, queries, prices, cfg.Server.CORSOrigins, sugar)
	go func() {
		if err := server.Start(cfg.Server.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	sugar.Infow("shutting_down")
	cancel()
}
