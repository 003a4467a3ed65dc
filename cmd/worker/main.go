package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/config"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	kafkax "github.com/ariefcatur/go-fresh-market/internal/kafka"
	"github.com/ariefcatur/go-fresh-market/internal/logx"
	"github.com/ariefcatur/go-fresh-market/internal/notify"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	"github.com/ariefcatur/go-fresh-market/internal/payments"
	"github.com/ariefcatur/go-fresh-market/internal/postgres"
	"github.com/ariefcatur/go-fresh-market/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// worker runs the background side of the marketplace: the reservation
// sweeper and the payment-settlement consumer.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-worker"
	log := logx.New(cfg.Env, cfg.LogLevel).With(zap.String("service", service))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{
		MaxConns:          int32(cfg.PostgresMaxConns),
		MinConns:          int32(cfg.PostgresMinConns),
		MaxConnLifetime:   cfg.PostgresConnLifetime,
		HealthCheckPeriod: 30 * time.Second,
	})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	store := &postgres.Store{DB: db, MaxAttempts: cfg.StoreMaxAttempts, Log: log.Named("store")}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.Cache{RDB: rdb}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	prod.Start(ctx)

	sinks := notify.NewRegistry()
	sinks.Register("log", notify.LogSink{Log: log.Named("notify")})
	sinks.Register("kafka", &notify.KafkaSink{Producer: prod, Service: service})

	manager := &inventory.Manager{Store: store, Notifier: sinks, Log: log.Named("inventory"), TTL: cfg.ReservationTTL}
	machine := &orders.StateMachine{Store: store, Notifier: sinks, Log: log.Named("orders")}

	var wg sync.WaitGroup

	sweeper := &inventory.Sweeper{Manager: manager, Locker: cache, Interval: cfg.SweepInterval, Log: log.Named("sweeper")}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("reservation sweeper started", zap.Duration("interval", cfg.SweepInterval))
		sweeper.Run(ctx)
	}()

	h := &payments.Handler{Orders: machine, Dedup: cache, Cache: cache, ServiceName: service, Log: log.Named("payments")}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentGroup, orders.TopicPaymentCompleted, cfg.PaymentWorkers, log.Named("consumer"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("payment consumer started",
			zap.String("group", cfg.PaymentGroup),
			zap.String("topic", orders.TopicPaymentCompleted),
			zap.Int("workers", cfg.PaymentWorkers),
		)
		if err := cons.Start(ctx, h.HandlePaymentCompleted); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	wg.Wait()
	prod.Close()
	prod.WaitClosed()
}
