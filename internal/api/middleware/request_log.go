package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录请求日志并按路由统计请求数。
//
// 路由取注册时的模板（如 /products/:id），未匹配的请求记为 "unmatched"。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		if logger == nil || route == "/metrics" || route == "/healthz" {
			return
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("query", c.Request.URL.RawQuery),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
