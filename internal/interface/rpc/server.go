// Package rpc is the gRPC listener of the service.
//
// It carries the standard health service (grpc.health.v1) for load balancers
// and orchestrators, plus reflection for grpcurl. The serving status follows
// the store: while MySQL does not answer the ledger is reported NOT_SERVING.
package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName health service name of the ledger; "" is the whole server
const ServiceName = "freshmart.inventory.Ledger"

// DefaultProbeInterval how often dependencies are probed
const DefaultProbeInterval = 10 * time.Second

// Check one dependency probe
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server gRPC server with dependency-driven health
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   []Check
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	failing map[string]bool
}

// NewServer creates the server; every check must pass for SERVING
func NewServer(log *zap.Logger, interval time.Duration, checks ...Check) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.ChainUnaryInterceptor(unaryLogger(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpc:     srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		log:      log,
		failing:  make(map[string]bool),
	}
}

// Serve blocks until Shutdown
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Watch probes the checks until ctx is done
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs every check once and updates the serving status
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	healthy := true
	for _, c := range s.checks {
		pctx, cancel := context.WithTimeout(ctx, s.interval)
		err := c.Probe(pctx)
		cancel()

		switch {
		case err != nil && !s.failing[c.Name]:
			s.log.Warn("dependency unhealthy", zap.String("dependency", c.Name), zap.Error(err))
		case err == nil && s.failing[c.Name]:
			s.log.Info("dependency recovered", zap.String("dependency", c.Name))
		}
		s.failing[c.Name] = err != nil
		if err != nil {
			healthy = false
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Shutdown reports NOT_SERVING to watchers, then drains in-flight calls
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			log.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
