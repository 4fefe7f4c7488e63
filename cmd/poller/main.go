package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/logger"
	"github.com/richardliu001/identity-service/internal/materializer"
	"github.com/richardliu001/identity-service/internal/normalizer"
	"github.com/richardliu001/identity-service/internal/pipeline"
	"github.com/richardliu001/identity-service/internal/pubsub"
	"github.com/richardliu001/identity-service/internal/queue"
	"github.com/richardliu001/identity-service/internal/repo"
)

type source interface {
	Run(ctx context.Context) error
}

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("identity-poller")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := repo.OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		log.Fatalf("%v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	defer rdb.Close()

	docs := repo.NewRepository(gdb, log)
	mat := materializer.New(docs, log)
	if err := mat.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	step := pipeline.NewStep(
		normalizer.New(eventstore.New(gdb, log), docs, log),
		mat,
		pubsub.NewRedis(rdb, cfg.Pipeline.ChannelPrefix, log),
		log,
	)

	var src source
	switch cfg.Pipeline.Source {
	case config.SourceChangeFeed:
		src = pipeline.NewChangeFeedSource(docs, step, cfg.Pipeline, log)
	default:
		kq := queue.NewKafka(nil, queue.NewReader(cfg.Kafka), log)
		defer kq.Close()
		src = pipeline.NewQueueSource(kq, step, cfg.Pipeline, log)
	}

	log.Infow("identity-poller started", "source", cfg.Pipeline.Source)
	if err := src.Run(ctx); err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	log.Infow("identity-poller stopped")
}
