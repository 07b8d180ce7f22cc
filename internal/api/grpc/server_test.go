package grpcapi

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"netscope/internal/application/health"
	"netscope/internal/infra"
)

type stubChecker struct{ healthy bool }

func (s stubChecker) Check(context.Context) health.Report {
	if s.healthy {
		return health.Report{Status: health.StatusHealthy}
	}
	return health.Report{Status: health.StatusUnhealthy}
}

func dial(t *testing.T, checker HealthChecker) healthpb.HealthClient {
	t.Helper()

	srv, err := NewServer(checker, infra.NewLogger(bytes.NewBuffer(nil), "test"))
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("grpc server did not stop")
		}
	})
	return healthpb.NewHealthClient(conn)
}

func TestNewServerRequiresChecker(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestHealthCheckServing(t *testing.T) {
	t.Log("Шаг 1: база доступна, ожидаем SERVING")
	client := dial(t, stubChecker{healthy: true})

	for _, name := range []string{"", ServiceName} {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: name})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func TestHealthCheckNotServing(t *testing.T) {
	t.Log("Шаг 1: база недоступна, ожидаем NOT_SERVING")
	client := dial(t, stubChecker{healthy: false})

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthCheckUnknownService(t *testing.T) {
	client := dial(t, stubChecker{healthy: true})

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestLoggingInterceptorLogs(t *testing.T) {
	t.Log("Шаг 1: запускаем интерсептор и проверяем появление логов")
	var buf bytes.Buffer
	interceptor := loggingInterceptor(infra.NewLogger(&buf, "grpc"))

	handler := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	}
	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)

	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, buf.String(), "grpc call failed")
	assert.Contains(t, buf.String(), "/grpc.health.v1.Health/Check")
}
