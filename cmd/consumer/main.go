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
	"github.com/BarkinBalci/product-analytics-pipeline/internal/consumer"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/logger"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue/sqs"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository/clickhouse"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/supervisor"
)

func main() {
	// Load configuration
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

	log.Info("Starting consumer service",
		zap.String("environment", cfg.Service.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize ClickHouse client
	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	repo := clickhouse.NewRepository(chClient, log)

	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Idempotency guard and alias store
	var guard idempotency.Guard = idempotency.NopGuard{}
	var aliases idempotency.AliasStore = idempotency.NopAliases{}
	var kvPing func(context.Context) error
	if cfg.Valkey.IdempotencyEnabled {
		store, err := idempotency.NewStore(cfg.Valkey)
		if err != nil {
			log.Fatal("Failed to create Valkey client", zap.Error(err))
		}
		defer store.Close()

		guard = idempotency.NewGuard(store, cfg.Valkey.IdempotencyTTL, cfg.Valkey.IdempotencyFailOpen, log)
		aliases = idempotency.NewAliases(store, cfg.Valkey.AliasTTL)
		kvPing = store.Ping
	} else {
		log.Warn("Idempotency guard disabled, redelivered jobs will be processed again")
	}

	rcfg := consumer.ReceiverConfig{
		MaxMessages:       cfg.Consumer.ReceiveMaxMessages,
		WaitTimeSeconds:   cfg.Consumer.ReceiveWaitTimeSeconds,
		VisibilityTimeout: cfg.SQS.VisibilityTimeoutSecond,
	}

	sinks := map[domain.Topic]consumer.Sink{
		domain.TopicEvents: consumer.NewBatchWriter(repo, sqsClient, consumer.BatchWriterConfig{
			MaxBatchSize:   cfg.Consumer.BatchSizeMax,
			FlushTimeout:   time.Duration(cfg.Consumer.BatchTimeoutSec) * time.Second,
			HighWaterMark:  cfg.Consumer.BufferHighWaterMark,
			SessionTimeout: cfg.Consumer.SessionTimeout,
		}, log),
		domain.TopicProfiles: consumer.NewJobRunner(domain.TopicProfiles,
			consumer.NewProfileWorker(repo, aliases, log),
			cfg.Consumer.ProfileConcurrency, log),
		domain.TopicSessions: consumer.NewJobRunner(domain.TopicSessions,
			consumer.NewSessionWorker(repo, repo, sqsClient, cfg.Consumer.SessionTimeout, log),
			cfg.Consumer.SessionConcurrency, log),
		domain.TopicRollups: consumer.NewJobRunner(domain.TopicRollups,
			consumer.NewRollupWorker(repo, log),
			cfg.Consumer.RollupConcurrency, log),
	}

	tree := supervisor.NewTree("product-analytics-consumer", supervisor.DefaultTreeConfig(), log)

	for _, topic := range domain.Topics {
		topicClient, err := sqsClient.ForTopic(topic)
		if err != nil {
			log.Fatal("Failed to resolve queue", zap.String("topic", string(topic)), zap.Error(err))
		}
		tree.AddConsumer(consumer.NewConsumer(topic, topicClient, guard, sinks[topic], rcfg, log))
	}

	// Health check and metrics endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if kvPing != nil {
			if err := kvPing(r.Context()); err != nil {
				log.Warn("Valkey health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Consumer.HealthCheckPort
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	tree.AddHTTP(supervisor.NewHTTPService("health", server, 5*time.Second))
	log.Info("Health check server starting", zap.String("address", addr))

	log.Info("Consumer starting", zap.Int("topics", len(domain.Topics)))

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error("Supervisor stopped unexpectedly", zap.Error(err))
	}

	log.Info("Shutting down consumer gracefully")
}
