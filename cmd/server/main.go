package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/logger"
	"github.com/richardliu001/identity-service/internal/pipeline"
	"github.com/richardliu001/identity-service/internal/pubsub"
	"github.com/richardliu001/identity-service/internal/queue"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/richardliu001/identity-service/internal/reservation"
	"github.com/richardliu001/identity-service/internal/service"
	httptransport "github.com/richardliu001/identity-service/internal/transport/http"
)

func main() {
	// 1. load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("identity-server")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := repo.OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		log.Fatalf("%v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	defer rdb.Close()

	// 5. propagation queue; a change-feed poller reads the event table instead
	var enq service.Enqueuer = service.NopEnqueuer{}
	if cfg.Pipeline.Source == config.SourceQueue {
		kq := queue.NewKafka(queue.NewWriter(cfg.Kafka), nil, log)
		defer kq.Close()
		enq = kq
	}

	// 6. command handlers
	store := eventstore.New(gdb, log)
	core := service.NewCore(gdb, store, reservation.NewLedger(gdb, log), enq, log)
	registry, err := service.NewRegistry(service.NewServices(core))
	if err != nil {
		log.Fatalf("%v", err)
	}
	waiter := pipeline.NewWaiter(pubsub.NewRedis(rdb, cfg.Pipeline.ChannelPrefix, log), cfg.Pipeline.WaitTimeout, log)

	// 7. gin router
	h := httptransport.NewHandler(core, registry, repo.NewRepository(gdb, log), waiter, log)
	router := httptransport.NewRouter(h, cfg.RateLimit, log)

	// 8. serve
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("identity-server listening", "addr", srv.Addr, "source", cfg.Pipeline.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.MaxWaitTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown", "error", err)
	}
}
