// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/model"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 校验通过后把不可变的 Identity 存入上下文，失败时返回 401 并写入 AUTH_FAILED 审计。
func AuthMiddleware(users service.UserService, audit service.AuditTrail) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c, audit, "missing_or_malformed_authorization", nil)
			return
		}

		id, err := users.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			category := "invalid_token"
			if errors.Is(err, service.ErrUserInactive) {
				category = "user_inactive"
			} else if !errors.Is(err, service.ErrInvalidToken) {
				log.Errorf("[AuthMiddleware] 认证时发生内部错误: %v", err)
				category = "internal"
			}
			reject(c, audit, category, err)
			return
		}

		c.Set(identityKey, id)
		c.Set(tokenKey, tokenString)
		c.Next()
	}
}

// Authenticate 用于 token 不在请求头中的场景（WebSocket 路径参数）。
func Authenticate(c *gin.Context, users service.UserService, audit service.AuditTrail, tokenString string) (model.Identity, bool) {
	id, err := users.Authenticate(c.Request.Context(), tokenString)
	if err != nil {
		reject(c, audit, "invalid_token", err)
		return model.Identity{}, false
	}
	c.Set(identityKey, id)
	c.Set(tokenKey, tokenString)
	return id, true
}

func bearerToken(header string) (string, bool) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return tokenString, tokenString != ""
}

func reject(c *gin.Context, audit service.AuditTrail, category string, err error) {
	audit.Record(c.Request.Context(), service.AuditEntry{
		Action:    model.AuditAuthFailed,
		Details:   category + " path=" + c.Request.URL.Path,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   false,
		Err:       err,
	})
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Could not validate credentials", "data": nil})
}

// CurrentIdentity 返回 AuthMiddleware 存入的身份。
func CurrentIdentity(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// CurrentToken 返回本次请求使用的 access token。
func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// Meta 提取写入审计日志的请求来源信息。
func Meta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
