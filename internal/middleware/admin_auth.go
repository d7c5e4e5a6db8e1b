package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/model"
)

// RequireCapability 检查调用者是否拥有某项能力，必须在 AuthMiddleware 之后使用。
func RequireCapability(capability model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
			return
		}
		if !id.Can(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "Insufficient permissions: " + string(capability) + " required", "data": nil})
			return
		}
		c.Next()
	}
}
