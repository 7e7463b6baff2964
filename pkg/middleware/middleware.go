// Package middleware 提供 Gin 通用中间件（请求日志、request_id、panic recover、指标采集）。
package middleware

import (
	"context"
	"time"

	"github.com/finsignal/signalbridge/pkg/logger"
	"github.com/finsignal/signalbridge/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey gin context key for request ID
const RequestIDKey = "request_id"

// GinLoggingMiddleware Gin 日志中间件，生成 request_id 并记录请求始末
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"client_ip", c.ClientIP(),
			"status_code", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)
				logger.Error(c.Request.Context(), "panic recovered",
					"request_id", requestID,
					"error", err,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(500, gin.H{"code": 500, "message": "internal server error"})
			}
		}()
		c.Next()
	}
}

// GinMetricsMiddleware HTTP 指标采集中间件
func GinMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.HTTPRequestsTotal.Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}
