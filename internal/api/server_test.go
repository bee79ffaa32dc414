package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"druktour/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func startGRPC(t *testing.T, cfg config.APIConfig, checks ...ReadyCheck) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	logger := zerolog.Nop()
	srv, err := NewGRPCServer(&cfg, nil, checks, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func TestGRPCHealthServing(t *testing.T) {
	cfg := defaultAPIConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIClientKey{{Key: "k", Extra: "e"}}
	_, client := startGRPC(t, cfg, ReadyCheck{Name: "database", Check: func(context.Context) error { return nil }})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err, "health bypasses auth")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCHealthFollowsChecks(t *testing.T) {
	healthy := false
	check := ReadyCheck{Name: "redis", Check: func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	}}
	srv, client := startGRPC(t, defaultAPIConfig(), check)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	healthy = true
	srv.refreshHealth(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAuthInterceptor(t *testing.T) {
	cfg := defaultAPIConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIClientKey{
		{Key: "reader", Extra: "r", Permissions: []string{permReadItinerary}},
		{Key: "pricing", Extra: "p", Permissions: []string{permReadPricing}},
	}
	interceptor := NewAuthInterceptor(&cfg, newRateLimiter(&cfg)).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/druktour.itinerary.Itineraries/Get"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	_, err := interceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "reader", "x-api-extra", "r"))
	out, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "pricing", "x-api-extra", "p"))
	_, err = interceptor(ctx, nil, info, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRecoveryInterceptor(t *testing.T) {
	logger := zerolog.Nop()
	chain := ChainUnaryInterceptors(RecoveryUnaryInterceptor(&logger), LoggingUnaryInterceptor(&logger))
	info := &grpc.UnaryServerInfo{FullMethod: "/druktour.itinerary.Itineraries/Get"}

	_, err := chain(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestBuildTLSConfigRequiresFiles(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
