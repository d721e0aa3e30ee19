//go:build wireinject
// +build wireinject

// Dependency graph of the service. Regenerate wire_gen.go with:
//
//	wire gen ./cmd/api
package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	apporder "github.com/xiebiao/freshmart/internal/application/order"
	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/infrastructure/config"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/freshmart/internal/interface/http/handler"
	"github.com/xiebiao/freshmart/internal/interface/http/middleware"
	"github.com/xiebiao/freshmart/internal/interface/http/router"
	"github.com/xiebiao/freshmart/internal/interface/job"
)

// infrastructureSet connections and shared clients
var infrastructureSet = wire.NewSet(
	provideClock,
	provideDB,
	provideRedis,
	providePublisher,
	provideJWTManager,
	provideAvailabilityCache,
	redis.NewSessionStore,
	redis.NewLocker,
)

// repositorySet stores and the transaction manager
var repositorySet = wire.NewSet(
	mysql.NewBatchRepository,
	mysql.NewMovementRepository,
	mysql.NewDeductionRequestRepository,
	mysql.NewOrderRepository,
	mysql.NewTxManager,
	wire.Bind(new(inventory.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(appinventory.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(appinventory.AvailabilityCache), new(*redis.AvailabilityCache)),
)

var domainSet = wire.NewSet(
	inventory.NewService,
)

// applicationSet use cases
var applicationSet = wire.NewSet(
	appinventory.NewCreateBatchUseCase,
	appinventory.NewGetBatchUseCase,
	appinventory.NewListMovementsUseCase,
	appinventory.NewRestockBatchUseCase,
	appinventory.NewCancelBatchUseCase,
	appinventory.NewCheckAvailabilityUseCase,
	appinventory.NewDeductForOrderUseCase,
	appinventory.NewReleaseForOrderUseCase,
	provideSweepUseCase,
	apporder.NewCancelOrderUseCase,
	providePlaceOrderUseCase,
)

// interfaceSet HTTP, gRPC and background jobs
var interfaceSet = wire.NewSet(
	middleware.NewAuthMiddleware,
	wire.Bind(new(middleware.Blacklist), new(*redis.SessionStore)),
	handler.NewInventoryHandler,
	handler.NewOrderHandler,
	handler.NewAuthHandler,
	wire.Struct(new(router.Handlers), "*"),
	provideRouterOptions,
	router.New,
	provideHTTPServer,
	provideRPCServer,
	provideExpirySweeper,
	job.NewOrderEventHandler,
	wire.Bind(new(job.Releaser), new(*appinventory.ReleaseForOrderUseCase)),
)

// initializeApp builds the application; cleanup closes what it opened
func initializeApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*application, func(), error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		domainSet,
		applicationSet,
		interfaceSet,
		wire.Struct(new(application), "*"),
	)
	return nil, nil, nil
}
