package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/config"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/geo"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/handler"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/logger"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue/sqs"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository/clickhouse"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/service"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	repo := clickhouse.NewRepository(clickhouseClient, log)

	// Device aliases resolve anonymous events to identified profiles
	var aliases idempotency.AliasStore = idempotency.NopAliases{}
	if cfg.Valkey.IdempotencyEnabled {
		store, err := idempotency.NewStore(cfg.Valkey)
		if err != nil {
			log.Fatal("Failed to create Valkey client", zap.Error(err))
		}
		defer store.Close()
		aliases = idempotency.NewAliases(store, cfg.Valkey.AliasTTL)
	}

	locator, err := geo.Open(cfg.Geo.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open GeoIP database", zap.Error(err))
	}
	if reader, ok := locator.(*geo.Reader); ok {
		defer func() {
			if err := reader.Close(); err != nil {
				log.Error("Failed to close GeoIP database", zap.Error(err))
			}
		}()
	}

	eventService := service.NewEventService(sqsClient, aliases, locator, log)

	cache, err := service.NewMetricsCache(cfg.Cache.MaxCost)
	if err != nil {
		log.Fatal("Failed to create metrics cache", zap.Error(err))
	}
	defer cache.Close()

	queryService := service.NewQueryService(repo, cache, cfg.Cache.MetricsTTL, log)

	h := handler.NewHandler(eventService, queryService, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	tree := supervisor.NewTree("product-analytics-api", supervisor.DefaultTreeConfig(), log)
	tree.AddHTTP(supervisor.NewHTTPService("api", server, 15*time.Second))

	log.Info("API server starting", zap.String("address", addr))

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error("Supervisor stopped unexpectedly", zap.Error(err))
	}

	log.Info("API server stopped")
}
