package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/oggyb/event-network/internal/config"
)

// NewGRPCServer builds a gRPC server with health, reflection and every
// provided service registered.
func NewGRPCServer(log *slog.Logger, registrars ...Registrar) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer, hs
}

// StartGRPCServer serves until ctx is done, then stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, log *slog.Logger, registrars ...Registrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer, hs := NewGRPCServer(log, registrars...)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info("starting gRPC server", "addr", addr)
	return grpcServer.Serve(lis)
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("rpc failed", "method", info.FullMethod, "code", status.Code(err), "took", time.Since(start), "err", err)
		} else {
			log.Debug("rpc", "method", info.FullMethod, "took", time.Since(start))
		}
		return resp, err
	}
}
