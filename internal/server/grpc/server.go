// Package grpc exposes the standard gRPC health service so orchestrators
// can probe pnrserver without a bearer token.
package grpc

import (
	"context"
	"net"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the sync API.
const ServiceName = "pnrwatch.sync"

type GRPCServer struct {
	address   string
	logger    logging.Logger
	health    *health.Server
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, secretKey string) *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{
		address:   a,
		logger:    logging.OrNop(l).With("module", "grpc_server"),
		health:    hs,
		jwtSecret: []byte(secretKey),
	}
}

// SetServing flips the reported status of the sync API.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
