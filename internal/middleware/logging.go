package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/metrics"
	"praivio-go/internal/model"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

// 不写入请求审计的路径
var unauditedPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RequestLogger 记录每个请求的方法、路径、状态码和耗时，并写入一条请求审计。
// 请求体和响应体可能包含患者或客户数据，一律不记录。
func RequestLogger(audit service.AuditTrail) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(statusCode)).Inc()

		log.Infow("HTTP Request Log",
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		)

		if _, skip := unauditedPaths[path]; skip {
			return
		}
		entry := service.AuditEntry{
			Action:    model.AuditRequest,
			Details:   fmt.Sprintf("%s %s status=%d latency_ms=%d", c.Request.Method, path, statusCode, latency.Milliseconds()),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Success:   statusCode < http.StatusBadRequest,
		}
		if statusCode == http.StatusTooManyRequests {
			entry.Action = model.AuditRateLimited
		}
		if id, ok := CurrentIdentity(c); ok {
			uid := id.UserID
			entry.UserID = &uid
		}
		audit.Record(c.Request.Context(), entry)
	}
}
