package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const defaultWatchInterval = 5 * time.Second

// Pinger checks the database connection.
type Pinger interface {
	Ping() error
}

// EventsHealth reports whether event publishing is working.
type EventsHealth interface {
	Healthy() bool
}

// HealthServer implements the gRPC health checking protocol for the
// overall server ("") and the named library service.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	service       string
	db            Pinger
	events        EventsHealth
	log           *zap.Logger
	watchInterval time.Duration
}

// NewHealthServer creates a new health check server. events may be nil.
func NewHealthServer(service string, database Pinger, events EventsHealth, log *zap.Logger) *HealthServer {
	return &HealthServer{
		service:       service,
		db:            database,
		events:        events,
		log:           log,
		watchInterval: defaultWatchInterval,
	}
}

func (h *HealthServer) known(service string) bool {
	return service == "" || service == h.service
}

// status pings the database and the event publisher.
func (h *HealthServer) status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if err := h.db.Ping(); err != nil {
		h.log.Error("Database health check failed", zap.Error(err))
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	if h.events != nil && !h.events.Healthy() {
		h.log.Error("RabbitMQ health check failed")
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Check implements the health check
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if !h.known(req.GetService()) {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	return &grpc_health_v1.HealthCheckResponse{Status: h.status()}, nil
}

// Watch sends the current status and then every change until the client
// goes away.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	if !h.known(req.GetService()) {
		return server.Send(&grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN,
		})
	}

	last := h.status()
	if err := server.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return err
	}

	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-server.Context().Done():
			return status.FromContextError(server.Context().Err()).Err()
		case <-ticker.C:
			current := h.status()
			if current == last {
				continue
			}
			last = current
			if err := server.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
		}
	}
}
