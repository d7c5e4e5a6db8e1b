package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/middleware"
	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/internal/sanitize"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

// AdminHandler 负责处理所有与用户管理和审计日志相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
	audit        service.AuditTrail
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, audit service.AuditTrail) *AdminHandler {
	return &AdminHandler{adminService: adminService, audit: audit}
}

// CreateUserRequest 定义了创建用户 API 的请求体结构。
type CreateUserRequest struct {
	Username     string `json:"username" binding:"required,notblank,max=64"`
	Email        string `json:"email" binding:"required,email,max=255"`
	Password     string `json:"password" binding:"required,min=8,max=256"`
	Role         string `json:"role" binding:"required,userrole"`
	Organization string `json:"organization" binding:"max=255"`
}

// UpdateUserRequest 定义了更新用户 API 的请求体结构，缺省字段保持不变。
type UpdateUserRequest struct {
	Email        *string `json:"email" binding:"omitempty,email,max=255"`
	Password     *string `json:"password" binding:"omitempty,min=8,max=256"`
	Role         *string `json:"role" binding:"omitempty,userrole"`
	Organization *string `json:"organization" binding:"omitempty,max=255"`
	IsActive     *bool   `json:"is_active"`
}

func parseUserID(c *gin.Context) (uint, bool) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Warnf("%s: invalid user ID %q", c.FullPath(), c.Param("id"))
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的用户 ID", "data": nil})
		return 0, false
	}
	return uint(userID), true
}

// ListUsers 处理分页获取用户列表的请求，页码从 1 开始。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	userList, err := h.adminService.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", userList)
}

// CreateUser 创建一个新用户。
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	actor, _ := middleware.CurrentIdentity(c)

	user, err := h.adminService.CreateUser(c.Request.Context(), actor, middleware.Meta(c), service.CreateUserRequest{
		Username:     strings.TrimSpace(req.Username),
		Email:        req.Email,
		Password:     req.Password,
		Role:         model.Role(req.Role),
		Organization: req.Organization,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' created user '%s' with role %s", actor.Username, user.Username, user.Role)
	respondOK(c, "User created successfully", service.NewUserDetail(user))
}

// UpdateUser 修改用户的邮箱、密码、角色、组织或启用状态。
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	actor, _ := middleware.CurrentIdentity(c)

	update := service.UpdateUserRequest{
		Email:        req.Email,
		Password:     req.Password,
		Organization: req.Organization,
		IsActive:     req.IsActive,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		update.Role = &role
	}
	user, err := h.adminService.UpdateUser(c.Request.Context(), actor, middleware.Meta(c), userID, update)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "User updated successfully", service.NewUserDetail(user))
}

// DeleteUser 删除用户，不能删除自己。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	actor, _ := middleware.CurrentIdentity(c)

	if err := h.adminService.DeleteUser(c.Request.Context(), actor, middleware.Meta(c), userID); err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' deleted user ID %d", actor.Username, userID)
	respondOK(c, "User deleted successfully", nil)
}

// ToggleUserStatus 切换用户的启用状态。
func (h *AdminHandler) ToggleUserStatus(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	actor, _ := middleware.CurrentIdentity(c)

	user, err := h.adminService.ToggleUserStatus(c.Request.Context(), actor, middleware.Meta(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "User status updated successfully", gin.H{"id": user.ID, "is_active": user.IsActive})
}

// AuditLogs 分页返回审计日志，支持按 user_id、action 和起始日期 since（YYYY-MM-DD）过滤。
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 50
	}
	filter := repository.AuditFilter{
		Action: strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		Offset: (page - 1) * size,
		Limit:  size,
	}

	if s := c.Query("user_id"); s != "" {
		uid, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid user ID format", "data": nil})
			return
		}
		u := uint(uid)
		filter.UserID = &u
	}
	if s := c.Query("since"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid since format, use YYYY-MM-DD", "data": nil})
			return
		}
		filter.Since = &t
	}

	events, total, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"items": events, "total": total, "page": page, "size": size})
}

// SearchAuditLogs 在审计索引中做全文检索。
func (h *AdminHandler) SearchAuditLogs(c *gin.Context) {
	query := sanitize.SanitizeStrict(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Query parameter q is required", "data": nil})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	if size < 1 || size > 500 {
		size = 50
	}

	events, err := h.audit.Search(c.Request.Context(), query, size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", events)
}
