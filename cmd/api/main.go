package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-fresh-market/internal/config"
	"github.com/ariefcatur/go-fresh-market/internal/httpx"
	"github.com/ariefcatur/go-fresh-market/internal/inventory"
	kafkax "github.com/ariefcatur/go-fresh-market/internal/kafka"
	"github.com/ariefcatur/go-fresh-market/internal/logx"
	"github.com/ariefcatur/go-fresh-market/internal/notify"
	"github.com/ariefcatur/go-fresh-market/internal/orders"
	"github.com/ariefcatur/go-fresh-market/internal/postgres"
	"github.com/ariefcatur/go-fresh-market/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.Env, cfg.LogLevel).With(zap.String("service", cfg.ServiceName))
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
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	store := &postgres.Store{DB: db, MaxAttempts: cfg.StoreMaxAttempts, Log: log.Named("store")}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.Cache{RDB: rdb}

	// Kafka producer + notification sinks
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	prod.Start(ctx)

	sinks := notify.NewRegistry()
	sinks.Register("log", notify.LogSink{Log: log.Named("notify")})
	sinks.Register("kafka", &notify.KafkaSink{Producer: prod, Service: cfg.ServiceName})

	manager := &inventory.Manager{
		Store:    store,
		Notifier: sinks,
		Log:      log.Named("inventory"),
		TTL:      cfg.ReservationTTL,
	}
	pipeline := &orders.Pipeline{Store: store, Notifier: sinks, Log: log.Named("pipeline")}
	machine := &orders.StateMachine{Store: store, Notifier: sinks, Log: log.Named("orders")}

	router := httpx.NewRouter()
	(&httpx.InventoryHandler{Manager: manager, Log: log.Named("http")}).Register(router)
	(&httpx.OrdersHandler{Pipeline: pipeline, Orders: machine, Cache: cache, Log: log.Named("http")}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox, loop flushes and closes the writer
	prod.WaitClosed() // drain
	cancel()
}
