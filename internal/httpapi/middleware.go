package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Header(requestIDHeader, reqID)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDHeader)),
		)

		metrics.RequestCount.WithLabelValues(c.Request.Method, path, http.StatusText(status)).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path, http.StatusText(status)).Observe(latency.Seconds())
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", c.GetString(requestIDHeader)),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// requireApprover admits only callers the directory lists as approvers.
// Without a directory every caller is admitted.
func (s *Server) requireApprover() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.principals == nil {
			c.Next()
			return
		}
		caller := types.NormalizeIdentity(c.GetHeader(principalHeader))
		if caller == "" {
			writeError(c, http.StatusUnauthorized, "unauthenticated", principalHeader+" header is required")
			c.Abort()
			return
		}
		if s.principals.KindOf(caller) != types.PrincipalApprover {
			s.logger.Warn("approver route refused", zap.String("principal", caller), zap.String("path", c.FullPath()))
			writeError(c, http.StatusForbidden, "forbidden", "approver role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
