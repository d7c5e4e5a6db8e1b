package handler

import (
	"github.com/gin-gonic/gin"

	"praivio-go/internal/middleware"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

// UserHandler 负责处理登录、登出和当前用户信息的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=256"`
}

// Login 处理用户登录请求，成功时返回 token 对和用户信息。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.userService.Login(c.Request.Context(), middleware.Meta(c), req.Username, req.Password)
	if err != nil {
		log.Warnf("Login: authentication failed for '%s': %v", req.Username, err)
		respondError(c, err)
		return
	}

	log.Infof("User '%s' logged in successfully", req.Username)
	respondOK(c, "Login successful", result)
}

// GetProfile 获取当前登录用户的个人信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	user, err := h.userService.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"role":         user.Role,
		"organization": user.Organization,
		"is_active":    user.IsActive,
		"last_login":   user.LastLogin,
		"created_at":   user.CreatedAt,
		"capabilities": id.Capabilities(),
	})
}

// Logout 吊销当前请求使用的 access token。
func (h *UserHandler) Logout(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.userService.Logout(c.Request.Context(), id, middleware.Meta(c), middleware.CurrentToken(c)); err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' logged out successfully", id.Username)
	respondOK(c, "Successfully logged out", nil)
}
