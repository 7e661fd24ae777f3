package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/lifecycle"
	"github.com/investable/accessgate/internal/accessgate/service"
	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/health"
	"github.com/investable/accessgate/internal/metrics"
)

const principalHeader = "X-Principal"

// PrincipalResolver classifies the caller named in the X-Principal header.
type PrincipalResolver interface {
	KindOf(identity string) types.PrincipalKind
}

type Dependencies struct {
	Logger        *zap.Logger
	Addr          string
	LedgerService *service.LedgerService

	// Principals guards the approver-only routes. When nil those routes
	// are open.
	Principals PrincipalResolver

	Health      *health.Manager
	Registry    *prometheus.Registry
	MetricsPath string
	AllowClear  bool
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	ledger     *service.LedgerService
	principals PrincipalResolver
	allowClear bool
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Health == nil {
		d.Health = health.NewManager(true)
	}
	if d.MetricsPath == "" {
		d.MetricsPath = "/metrics"
	}

	s := &Server{
		logger:     d.Logger,
		ledger:     d.LedgerService,
		principals: d.Principals,
		allowClear: d.AllowClear,
	}

	router := gin.New()
	router.Use(requestID())
	router.Use(requestLogger(d.Logger))
	router.Use(recovery(d.Logger))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(d.Health))
	if d.Registry != nil {
		router.GET(d.MetricsPath, gin.WrapH(metrics.Handler(d.Registry)))
	}

	requests := router.Group("/access-requests")
	requests.POST("", s.handleCreate)
	requests.GET("/by-requester/:requesterId", s.handleListByRequester)
	requests.GET("", s.requireApprover(), s.handleListAll)
	requests.PATCH("/:id", s.requireApprover(), s.handleUpdateStatus)
	requests.DELETE("", s.requireApprover(), s.handleClear)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCreate(c *gin.Context) {
	var req types.CreateAccessRequest
	if err := decodeBody(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	rec, err := s.ledger.Create(c.Request.Context(), req)
	if err != nil {
		s.writeServiceError(c, "create", err)
		return
	}
	respond(c, http.StatusCreated, rec)
}

func (s *Server) handleListByRequester(c *gin.Context) {
	recs, err := s.ledger.ListByRequester(c.Request.Context(), c.Param("requesterId"))
	if err != nil {
		s.writeServiceError(c, "list_by_requester", err)
		return
	}
	respond(c, http.StatusOK, recs)
}

func (s *Server) handleListAll(c *gin.Context) {
	recs, err := s.ledger.List(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, "list", err)
		return
	}
	respond(c, http.StatusOK, recs)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req types.UpdateStatusRequest
	if err := decodeBody(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	rec, err := s.ledger.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.writeServiceError(c, "update_status", err)
		return
	}
	respond(c, http.StatusOK, rec)
}

func (s *Server) handleClear(c *gin.Context) {
	if !s.allowClear {
		writeError(c, http.StatusForbidden, "clear_disabled", "clearing the ledger is disabled")
		return
	}
	n, err := s.ledger.Clear(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, "clear", err)
		return
	}
	respond(c, http.StatusOK, types.ClearResponse{Deleted: n})
}

func (s *Server) writeServiceError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidID),
		errors.Is(err, service.ErrInvalidResourceID),
		errors.Is(err, service.ErrInvalidResourceName),
		errors.Is(err, service.ErrInvalidRequesterID),
		errors.Is(err, service.ErrInvalidRequesterName):
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		writeError(c, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(c, http.StatusConflict, "not_pending", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	respond(c, status, types.ErrorResponse{Error: code, Message: message})
}
