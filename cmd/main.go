package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ob-sync/internal/config"
	"ob-sync/internal/downstream"
	"ob-sync/internal/downstream/wsserver"
	"ob-sync/internal/logging"
	"ob-sync/internal/metrics"
	"ob-sync/internal/processors"
	outqueues "ob-sync/internal/queues/out"
	"ob-sync/internal/sink/kafka"
	"ob-sync/internal/subscribers"
	"ob-sync/internal/upstream"
	"ob-sync/internal/upstream/coinbase"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Error on loading configuration", "path", *configPath, "Error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	defer func() {
		_ = logCloser.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	registry := metrics.Init()

	// events leave the replication engine through a single dispatcher
	events := outqueues.NewQueue(cfg.Sync.OutQueueSize)

	// initialize downstream subscribers store
	subHandler := initSubscriptionHandler()
	events.AddHandler(subHandler)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout)
		events.AddHandler(producer)

		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("Error on closing kafka producer", "Error", err)
			}
		}()
	}

	g.Go(func() error {
		return events.Run(ctx)
	})

	manager := initOrderBookManager(cfg, events)

	// start upstream client and connect to market data provider
	client := upstream.NewClient(cfg.Exchange, manager)
	client.InitClient(ctx, g)

	// start downstream server
	server := startDownstreamServer(cfg.Server.Addr, manager, subHandler, client, metrics.Handler(registry))

	g.Go(func() error {
		return server.Run(ctx)
	})

	g.Go(func() error {
		return gracefulShutdown(ctx, client, manager)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Error on OrderBook Sync Service", "Error", err)
	}

	slog.Info("Exiting OrderBook Sync Service")
}

// initialize the order book manager with its snapshot loader.
func initOrderBookManager(cfg *config.Config, events *outqueues.Queue) *processors.Manager {
	loader := coinbase.NewRestClient(cfg.Exchange.RestURL, cfg.Rest.Timeout, cfg.Rest.Retries, cfg.Rest.Backoff)

	return processors.NewManager(loader, events, processors.Options{
		MaxPending:    cfg.Sync.MaxPending,
		CheckSequence: cfg.Sync.CheckSequence,
		AutoResync:    cfg.Sync.AutoResync,
	})
}

// initialize downstream subscribers store.
func initSubscriptionHandler() *subscribers.Handler {
	subsStore := subscribers.NewUserStore()

	return subscribers.NewHandler(subsStore)
}

// build the downstream websocket and http server.
func startDownstreamServer(addr string, ob wsserver.OBReader, sub *subscribers.Handler, products wsserver.ProductManager, metricsHandler http.Handler) *downstream.Handler {
	processor := wsserver.NewProcessor(ob, sub, products)
	server := wsserver.NewWSServer(addr, processor, metricsHandler)

	return downstream.NewHandler(server)
}

// handle graceful shutdown.
func gracefulShutdown(ctx context.Context, client *upstream.Client, manager *processors.Manager) error {
	slog.Info("Graceful Shutdown is monitoring")

	<-ctx.Done()

	slog.Info("Shutdown Signal Received")

	if err := client.CloseClient(); err != nil {
		slog.Error("Forced Shutdown: ", "Error", err)
	}

	slog.Info("Websocket Client Closed")

	manager.Close()

	slog.Info("Order Books Closed")

	return nil
}
