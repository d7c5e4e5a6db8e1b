// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

// errorStatus 把业务错误映射为 HTTP 状态码和返回给客户端的描述。
// 5xx 错误只返回通用描述，细节写入日志。
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrMissingFile),
		errors.Is(err, service.ErrSelfDeletion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, service.ErrUserInactive), errors.Is(err, service.ErrAdminRoleReserved):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, service.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "Generation timed out"
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, "Generation failed"
	case errors.Is(err, service.ErrStorageFailure):
		return http.StatusBadGateway, "File storage failed"
	case errors.Is(err, service.ErrSearchUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func respondError(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func respondBadRequest(c *gin.Context, err error) {
	log.Warnf("%s %s: invalid request payload: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载: " + err.Error(), "data": nil})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}
