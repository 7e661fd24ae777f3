package health

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Manager tracks readiness and mirrors it onto any attached gRPC health
// servers.
type Manager struct {
	ready atomic.Bool

	mu      sync.Mutex
	servers []*grpchealth.Server
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		s.SetServingStatus("", servingStatus(ready))
	}
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// NewGRPCServer returns a gRPC server exposing the standard health service,
// kept in step with m.
func (m *Manager) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", servingStatus(m.IsReady()))

	m.mu.Lock()
	m.servers = append(m.servers, hs)
	m.mu.Unlock()

	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func servingStatus(ready bool) healthpb.HealthCheckResponse_ServingStatus {
	if ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	}
}
