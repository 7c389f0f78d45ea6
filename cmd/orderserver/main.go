package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ordercore/order-server/internal/cache"
	"github.com/ordercore/order-server/internal/config"
	"github.com/ordercore/order-server/internal/events"
	"github.com/ordercore/order-server/internal/httpx"
	"github.com/ordercore/order-server/internal/inventory"
	kafkax "github.com/ordercore/order-server/internal/kafka"
	"github.com/ordercore/order-server/internal/orders"
	"github.com/ordercore/order-server/internal/postgres"
	"github.com/ordercore/order-server/internal/redisx"
	"github.com/ordercore/order-server/internal/service"
)

func main() {
	cfg := config.Load(os.Args[1:])

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	db, err := postgres.Connect(connectCtx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:    int32(cfg.Database.MaxConnections),
		MinConns:    int32(cfg.Database.MinConnections),
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	connectCancel()
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	repo := &orders.Repo{DB: db}
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}
	asyncRepo := orders.NewAsyncRepo(repo, cfg.Database.MaxConnections, 256)
	asyncRepo.Start()

	// Redis
	rdb := redisx.New(redisx.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.MQ.Brokers, 1024)
	prod.Start(ctx)

	// Services
	orderCache := cache.New(rdb, cache.Options{
		DetailPrefix:    cfg.Redis.KeyPrefix + "detail:",
		UserIndexPrefix: cfg.Redis.KeyPrefix + "user:",
		TTL:             cfg.Cache.TTL,
	})

	inv := inventory.New(rdb, prod, log.Named("inventory"), inventory.Options{
		ReservationTTL:        cfg.Reservation.TTL,
		ReservationRoutingKey: cfg.Reservation.ReservationRoutingKey,
		RestockRoutingKey:     cfg.Reservation.RestockRoutingKey,
		PublishEvents:         true,
	})

	opts := service.DefaultOptions()
	opts.OrderTopic = cfg.MQ.OrderQueue
	svc := service.New(repo, orderCache, inv, prod, log.Named("orders"), opts)

	warmupCache(ctx, asyncRepo, svc, log)

	// HTTP
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service: svc,
		IDGen:   httpx.DefaultIDGenerator,
		Log:     log.Named("http"),
	}
	oh.Register(router)
	sh := &httpx.StockHandler{Inventory: inv, Log: log.Named("http")}
	sh.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// Event router
	var mqRouter *events.Router
	if cfg.MQ.EnableConsumer {
		cons := kafkax.NewConsumer(cfg.MQ.Brokers, cfg.ServiceName, cfg.MQ.OrderQueue, 8)
		mqRouter = events.NewRouter(cons, svc, inv, rdb, log.Named("router"), events.Options{
			ServiceName: cfg.ServiceName,
		})
		mqRouter.Initialize()
		mqRouter.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			log.Info("signal received", zap.String("signal", s.String()))
		case <-gctx.Done():
		}
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	serveErr := g.Wait()

	// Shutdown order: requests already drained above, then stop the
	// event router, flush the producer, drain the repository workers.
	// Pool closes run in the defers.
	log.Info("shutting down")
	if mqRouter != nil {
		mqRouter.Stop()
	}
	prod.Close()
	cancel()
	prod.WaitClosed()
	asyncRepo.Close()

	if serveErr != nil {
		log.Error("serve", zap.Error(serveErr))
		db.Close()
		_ = rdb.Close()
		os.Exit(1)
	}
}

// warmupCache loads the most recent orders through the async repository;
// failures only cost the first reads their cache hit.
func warmupCache(ctx context.Context, asyncRepo *orders.AsyncRepo, svc *service.Service, log *zap.Logger) {
	wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
	defer wcancel()

	recent, err := orders.Await(wctx, asyncRepo.ListRecentAsync(wctx, 20))
	if err != nil {
		log.Warn("cache warmup skipped", zap.Error(err))
		return
	}
	svc.WarmupCache(wctx, recent)
}
