package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/store"
	"lavalink-stats/internal/version"
)

const ServiceName = "lavastats.v1.StatsService"

type ListNodesRequest struct{}

type ListNodesResponse struct {
	Nodes []string `json:"nodes"`
}

type GetStatsRequest struct {
	ID string `json:"id"`
}

// StatsServer is the server API of lavastats.v1.StatsService.
type StatsServer interface {
	ListNodes(context.Context, *ListNodesRequest) (*ListNodesResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*model.NodeStats, error)
	GetVersion(context.Context, *version.GetVersionRequest) (*version.GetVersionResponse, error)
}

var StatsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListNodes", Handler: listNodesHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "GetVersion", Handler: getVersionHandler},
	},
	Metadata: "lavastats/v1/stats.proto",
}

func listNodesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListNodesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).ListNodes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListNodes"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).ListNodes(ctx, req.(*ListNodesRequest))
	})
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetStats"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).GetStats(ctx, req.(*GetStatsRequest))
	})
}

func getVersionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(version.GetVersionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).GetVersion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetVersion"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).GetVersion(ctx, req.(*version.GetVersionRequest))
	})
}

type statsService struct {
	reader Reader
}

func (s *statsService) ListNodes(_ context.Context, _ *ListNodesRequest) (*ListNodesResponse, error) {
	return &ListNodesResponse{Nodes: s.reader.IDs()}, nil
}

func (s *statsService) GetStats(_ context.Context, req *GetStatsRequest) (*model.NodeStats, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	snap, err := s.reader.Get(req.ID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	out := model.NewNodeStats(req.ID, snap)
	return &out, nil
}

func (s *statsService) GetVersion(_ context.Context, req *version.GetVersionRequest) (*version.GetVersionResponse, error) {
	return version.Get(len(s.reader.IDs()), req), nil
}

func toGRPCError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return status.Error(codes.NotFound, "Invalid node name")
	}
	return status.Error(codes.Internal, err.Error())
}

// GRPCServer serves StatsService and the standard health service.
type GRPCServer struct {
	addr            string
	srv             *grpc.Server
	health          *health.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewGRPCServer(addr string, reader Reader, shutdownTimeout time.Duration, logger *slog.Logger) *GRPCServer {
	srv := grpc.NewServer()
	srv.RegisterService(&StatsServiceDesc, &statsService{reader: reader})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		addr:            addr,
		srv:             srv,
		health:          hs,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *GRPCServer) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("grpc query surface listening", "addr", ln.Addr().String())
		serveErr <- s.srv.Serve(ln)
	}()

	var retErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			retErr = fmt.Errorf("serve grpc: %w", err)
		}
	}

	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("grpc graceful stop timed out, forcing")
		s.srv.Stop()
	}
	return retErr
}
