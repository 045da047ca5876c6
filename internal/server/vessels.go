package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/got-is-bad-at-git/Kerbalism/internal/format"
	"github.com/got-is-bad-at-git/Kerbalism/internal/sim"
)

const (
	// ServiceName is the gRPC service carrying the vessel listing.
	ServiceName = "vesselsim.v1.Simulator"
	// ListVesselsMethod is the full method name of ListVessels.
	ListVesselsMethod = "/" + ServiceName + "/ListVessels"
)

type simulatorServer interface {
	ListVessels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var simulatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*simulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListVessels", Handler: listVesselsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vesselsim/v1/simulator.proto",
}

func listVesselsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(simulatorServer).ListVessels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListVesselsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(simulatorServer).ListVessels(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type simulatorService struct {
	source Source
}

func (s *simulatorService) ListVessels(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.Unavailable, "no simulator attached")
	}
	snaps := s.source.NamedSnapshots()
	vessels := make([]any, 0, len(snaps))
	for _, snap := range snaps {
		vessels = append(vessels, SnapshotFields(snap))
	}
	out, err := structpb.NewStruct(map[string]any{"vessels": vessels})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListVessels calls the ListVessels RPC on conn.
func ListVessels(ctx context.Context, conn grpc.ClientConnInterface) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, ListVesselsMethod, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("list vessels: %w", err)
	}
	return out, nil
}

// SnapshotFields flattens a snapshot into structpb-compatible values.
func SnapshotFields(snap sim.NamedSnapshot) map[string]any {
	env := snap.Environment
	conn := snap.Connection
	hops := make([]any, 0, len(conn.Hops))
	for _, h := range conn.Hops {
		hops = append(hops, map[string]any{
			"name":     h.Name,
			"strength": h.StrengthText,
			"distance": format.Range(h.Distance),
		})
	}
	return map[string]any{
		"id":         snap.ID.String(),
		"name":       snap.Name,
		"valid":      snap.IsValid,
		"analytic":   snap.Analytic,
		"generation": snap.Generation,
		"environment": map[string]any{
			"sunlight":      env.Sunlight,
			"temperature":   env.Temperature,
			"radiation":     env.Radiation,
			"magnetosphere": env.Magnetosphere,
			"inner_belt":    env.InnerBelt,
			"outer_belt":    env.OuterBelt,
			"blackout":      env.Blackout,
		},
		"connection": map[string]any{
			"linked":   conn.Linked,
			"status":   conn.Status.String(),
			"strength": format.Percent(conn.Strength, 2),
			"rate":     format.Rate(conn.Rate),
			"target":   conn.TargetName,
			"hops":     hops,
		},
		"can_transmit": snap.CanTransmit,
		"transmitting": snap.Transmitting,
	}
}
