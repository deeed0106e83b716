package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var ErrNotServing = errors.New("service not serving")

// Service is the name reported for the detector in the gRPC health service.
const Service = "serveturn.Detector"

// GRPCServer serves grpc.health.v1.Health.
type GRPCServer struct {
	srv    *grpc.Server
	health *grpchealth.Server
}

func NewGRPCServer() *GRPCServer {
	s := &GRPCServer{srv: grpc.NewServer(), health: grpchealth.NewServer()}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the detector service status.
func (s *GRPCServer) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}

// Serve blocks until ctx is done or the listener fails.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(lis) }()
	logrus.WithField("addr", lis.Addr().String()).Info("grpc health listening")
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Probe asks a health service for the status of service ("" for overall).
func Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("grpc dial: %w", err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

// GRPCCheck is a readiness check that passes while addr reports service as
// SERVING.
func GRPCCheck(addr, service string) Check {
	return Check{Name: "grpc_health", Run: func(ctx context.Context) error {
		st, err := Probe(ctx, addr, service)
		if err != nil {
			return err
		}
		if st != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%w: %s", ErrNotServing, st)
		}
		return nil
	}}
}
