package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/metrics"
	"praivio-go/internal/ratelimit"
	"praivio-go/pkg/log"
)

// RateLimit 按身份和路由模板做准入控制，超过限制返回 429。必须在 AuthMiddleware 之后使用。
func RateLimit(gate *ratelimit.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.Next()
			return
		}
		route := c.FullPath()
		if !gate.Admit(id.Key(), route) {
			metrics.RateLimitRejections.WithLabelValues(route).Inc()
			log.Warnw("rate limit exceeded", "user", id.UserID, "route", route)
			c.Header("Retry-After", strconv.Itoa(int(gate.Window().Seconds())))
			c.Header("X-RateLimit-Limit", strconv.Itoa(gate.Limit()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Rate limit exceeded. Please try again later.",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
