package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/observability"
	"github.com/got-is-bad-at-git/Kerbalism/internal/sim"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

type fakeSource struct {
	running atomic.Bool
	snaps   []sim.NamedSnapshot
}

func (f *fakeSource) Running() bool                       { return f.running.Load() }
func (f *fakeSource) NamedSnapshots() []sim.NamedSnapshot { return f.snaps }

func startServer(t *testing.T, src Source, opts ...Option) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	srv := New(src, logging.Noop(), opts...)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return conn
}

func healthStatus(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthFollowsSimulator(t *testing.T) {
	src := &fakeSource{}
	conn := startServer(t, src)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, conn, ""))

	src.running.Store(true)
	assert.Eventually(t, func() bool {
		return healthStatus(t, conn, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	src.running.Store(false)
	assert.Eventually(t, func() bool {
		return healthStatus(t, conn, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListVessels(t *testing.T) {
	src := &fakeSource{snaps: []sim.NamedSnapshot{
		{
			Name: "Relay",
			VesselSnapshot: core.VesselSnapshot{
				ID:      model.NewVesselID(),
				IsValid: true,
				Connection: core.ConnectionStatus{
					Linked:     true,
					Status:     core.DirectLink,
					Strength:   0.8,
					Rate:       32768,
					TargetName: "KSC",
					Hops:       []core.HopDescriptor{{Name: "KSC", StrengthText: "80.00%", Distance: 1500000}},
				},
				CanTransmit: true,
			},
		},
		{Name: "Wreck"},
	}}
	reg := prometheus.NewRegistry()
	collector, err := observability.NewRPCCollector(reg)
	require.NoError(t, err)
	conn := startServer(t, src, WithCollector(collector))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-1")
	out, err := ListVessels(ctx, conn)
	require.NoError(t, err)

	vessels := out.GetFields()["vessels"].GetListValue().GetValues()
	require.Len(t, vessels, 2)

	relay := vessels[0].GetStructValue().GetFields()
	assert.Equal(t, "Relay", relay["name"].GetStringValue())
	assert.True(t, relay["valid"].GetBoolValue())
	connection := relay["connection"].GetStructValue().GetFields()
	assert.Equal(t, "direct", connection["status"].GetStringValue())
	assert.Equal(t, "KSC", connection["target"].GetStringValue())
	assert.Equal(t, "80.00%", connection["strength"].GetStringValue())
	assert.Len(t, connection["hops"].GetListValue().GetValues(), 1)

	wreck := vessels[1].GetStructValue().GetFields()
	assert.False(t, wreck["valid"].GetBoolValue())
	assert.Equal(t, "no_link", wreck["connection"].GetStructValue().GetFields()["status"].GetStringValue())

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Simulator", "ListVessels", "OK")))
}

func TestListVesselsWithoutSource(t *testing.T) {
	svc := &simulatorService{}
	_, err := svc.ListVessels(context.Background(), nil)
	require.Error(t, err)
}

func TestRequestIDInterceptor(t *testing.T) {
	icpt := RequestIDUnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: ListVesselsMethod}

	var seen string
	handler := func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc"))
	_, err := icpt(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)

	_, err = icpt(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
}
