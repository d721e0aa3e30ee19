package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	apporder "github.com/xiebiao/freshmart/internal/application/order"
	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/domain/order"
	"github.com/xiebiao/freshmart/internal/infrastructure/config"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/freshmart/internal/interface/http/router"
	"github.com/xiebiao/freshmart/internal/interface/job"
	"github.com/xiebiao/freshmart/internal/interface/rpc"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/jwt"
	"github.com/xiebiao/freshmart/pkg/mq"
)

// application every long-running part of the process
type application struct {
	cfg         *config.Config
	log         *zap.Logger
	http        *http.Server
	rpc         *rpc.Server
	sweeper     *job.ExpirySweeper
	orderEvents *job.OrderEventHandler
}

// =========================================
// Providers
// =========================================

func provideClock() clock.Clock {
	return clock.Real{}
}

func provideDB(cfg *config.Config, clk clock.Clock, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := mysql.NewDB(cfg, clk, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func provideRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*goredis.Client, func(), error) {
	client, err := redis.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// providePublisher RabbitMQ when enabled; events are dropped otherwise
func providePublisher(cfg *config.Config, log *zap.Logger) (mq.EventPublisher, func(), error) {
	if !cfg.RabbitMQ.Enabled {
		log.Info("rabbitmq disabled, domain events are not published")
		return mq.NopPublisher{}, func() {}, nil
	}
	p, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, "topic", log)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)
}

func provideAvailabilityCache(client *goredis.Client, cfg *config.Config) *redis.AvailabilityCache {
	return redis.NewAvailabilityCache(client, cfg.Inventory.AvailabilityCacheTTL)
}

func provideSweepUseCase(
	cfg *config.Config,
	service inventory.Service,
	tx appinventory.Transactor,
	cache appinventory.AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *appinventory.SweepExpiredUseCase {
	return appinventory.NewSweepExpiredUseCase(service, tx, cache, events, cfg.Inventory.SweepBatchSize, clk, log)
}

func providePlaceOrderUseCase(
	cfg *config.Config,
	orders order.Repository,
	deduct *appinventory.DeductForOrderUseCase,
	canceller *apporder.CancelOrderUseCase,
	tx appinventory.Transactor,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *apporder.PlaceOrderUseCase {
	return apporder.NewPlaceOrderUseCase(orders, deduct, canceller, tx, events, cfg.Order.SagaTimeout, clk, log)
}

func provideExpirySweeper(cfg *config.Config, sweep *appinventory.SweepExpiredUseCase, locker *redis.Locker, log *zap.Logger) *job.ExpirySweeper {
	return job.NewExpirySweeper(sweep, locker, cfg.Inventory.SweepInterval, cfg.Inventory.LockTTL, log)
}

func provideRouterOptions(cfg *config.Config) router.Options {
	return router.Options{
		Mode:          cfg.Server.Mode,
		ServiceName:   cfg.Tracing.ServiceName,
		EnableSwagger: cfg.Server.Mode != gin.ReleaseMode,
		CORS:          cfg.Server.CORS,
	}
}

func provideHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// provideRPCServer health follows MySQL; Redis is optional for the ledger
func provideRPCServer(db *gorm.DB, log *zap.Logger) *rpc.Server {
	return rpc.NewServer(log, rpc.DefaultProbeInterval, rpc.Check{
		Name: "mysql",
		Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
}

// =========================================
// Lifecycle
// =========================================

// run serves until SIGINT/SIGTERM or a listener fails, then shuts down
//
// Shutdown order: stop accepting HTTP, drain gRPC, stop the background
// loops, then the injector cleanup closes broker, Redis and MySQL.
func (a *application) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	go func() {
		a.log.Info("http server listening", zap.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := a.rpc.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	wg.Add(2)
	go func() { defer wg.Done(); a.rpc.Watch(bgCtx) }()
	go func() { defer wg.Done(); a.sweeper.Run(bgCtx) }()

	if a.cfg.RabbitMQ.Enabled && a.cfg.RabbitMQ.ConsumeOrderEvents {
		consumer, err := mq.NewConsumer(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Exchange, "topic",
			job.OrderEventsQueue, a.orderEvents.RoutingKeys(), a.log)
		if err != nil {
			return fmt.Errorf("order events consumer: %w", err)
		}
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := consumer.Consume(bgCtx, func(routingKey string, body []byte) error {
				return a.orderEvents.Handle(bgCtx, routingKey, body)
			})
			if err != nil {
				a.log.Error("order events consumer stopped", zap.Error(err))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-errCh:
		a.log.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown incomplete", zap.Error(err))
	}
	a.rpc.Shutdown()

	cancelBg()
	wg.Wait()

	a.log.Info("server stopped")
	return runErr
}

func exitOnError(log *zap.Logger, msg string, err error) {
	if err == nil {
		return
	}
	log.Error(msg, zap.Error(err))
	_ = log.Sync()
	os.Exit(1)
}
