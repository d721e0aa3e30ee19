// Package router builds the gin engine of the inventory API.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/xiebiao/freshmart/docs"
	"github.com/xiebiao/freshmart/internal/infrastructure/config"
	"github.com/xiebiao/freshmart/internal/interface/http/handler"
	"github.com/xiebiao/freshmart/internal/interface/http/middleware"
	"github.com/xiebiao/freshmart/pkg/response"
)

// Options engine settings
type Options struct {
	Mode          string // debug | release | test
	ServiceName   string // tracer name of request spans
	EnableSwagger bool
	CORS          config.CORSConfig
}

// Handlers every HTTP handler of the service
type Handlers struct {
	Inventory *handler.InventoryHandler
	Order     *handler.OrderHandler
	Auth      *handler.AuthHandler
}

// New creates the engine and registers the routes
//
// Middleware order: recovery, request log, CORS, metrics, tracing; auth is
// attached per group.
func New(opts Options, log *zap.Logger, h Handlers, auth *middleware.AuthMiddleware) *gin.Engine {
	switch opts.Mode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(opts.Mode)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "freshmart"
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.CORS(opts.CORS),
		middleware.Metrics(),
		middleware.Tracing(opts.ServiceName),
	)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong", "status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	{
		inventory := v1.Group("/inventory")
		{
			// public reads
			inventory.GET("/availability", h.Inventory.CheckAvailability)
			inventory.GET("/batches/:batch_id", h.Inventory.GetBatch)
			inventory.GET("/batches/:batch_id/movements", h.Inventory.ListMovements)

			// order services and staff
			authorized := inventory.Group("", auth.RequireAuth())
			authorized.POST("/deductions", h.Inventory.Deduct)
			authorized.POST("/releases", h.Inventory.Release)

			// batch management
			staff := inventory.Group("", auth.RequireAuth(), auth.RequireRole(middleware.RoleStaff, middleware.RoleAdmin))
			staff.POST("/batches", h.Inventory.CreateBatch)
			staff.POST("/batches/:batch_id/restock", h.Inventory.Restock)
			staff.POST("/batches/:batch_id/cancel", h.Inventory.CancelBatch)
			staff.POST("/sweeps", h.Inventory.Sweep)
		}

		orders := v1.Group("/orders", auth.RequireAuth())
		{
			orders.POST("", h.Order.PlaceOrder)
			orders.POST("/:order_no/cancel", h.Order.CancelOrder)
		}

		v1.POST("/auth/logout", auth.RequireAuth(), h.Auth.Logout)
	}

	return r
}
