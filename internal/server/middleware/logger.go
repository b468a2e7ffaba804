package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"reelcast/internal/pkg/logger"
)

// Logger 访问日志中间件
// 健康检查请求只在出错时记录
func Logger() gin.HandlerFunc {
	httpLog := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if status < 400 && (path == "/health" || path == "/ready") {
			return
		}

		event := httpLog.Info()
		switch {
		case status >= 500:
			event = httpLog.Error()
		case status >= 400:
			event = httpLog.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}
