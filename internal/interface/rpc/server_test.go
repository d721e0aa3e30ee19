package rpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, checks ...Check) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(nil, time.Second, checks...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealth_ServingByDefault(t *testing.T) {
	_, client := startServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}

func TestHealth_FollowsDependencyProbe(t *testing.T) {
	var down atomic.Bool
	srv, client := startServer(t, Check{
		Name: "mysql",
		Probe: func(ctx context.Context) error {
			if down.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))

	down.Store(false)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
}

func TestHealth_UnknownService(t *testing.T) {
	_, client := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "freshmart.Unknown"})
	assert.Error(t, err)
}
