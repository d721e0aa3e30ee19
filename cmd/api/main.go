package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xiebiao/freshmart/internal/infrastructure/config"
	"github.com/xiebiao/freshmart/pkg/logger"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// @title           FreshMart Inventory Ledger API
// @version         1.0
// @description     Batch-level grocery stock: FIFO/FEFO deduction, release, restock and expiry.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// 2. logger; zap.L() is used by the response helpers
	log, err := logger.New(logger.Config{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	log.Info("config loaded",
		zap.Int("http_port", cfg.Server.Port),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.String("mode", cfg.Server.Mode),
		zap.String("database", fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)),
		zap.String("redis", cfg.Redis.Addr()),
		zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled))

	// 3. tracing
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
		exitOnError(log, "init tracer", err)
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// 4. dependency graph (wire_gen.go)
	ctx := context.Background()
	app, cleanup, err := initializeApp(ctx, cfg, log)
	exitOnError(log, "initialize application", err)
	defer cleanup()

	// 5. serve until signalled
	if err := app.run(ctx); err != nil {
		log.Error("application exited with error", zap.Error(err))
		cleanup()
		_ = log.Sync()
		os.Exit(1)
	}
}
