package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/log"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"total_elements"`
	TotalPages    int                  `json:"total_pages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID       uint             `json:"id"`
	Username     string           `json:"username"`
	Email        string           `json:"email"`
	Role         model.Role       `json:"role"`
	Organization string           `json:"organization"`
	IsActive     bool             `json:"is_active"`
	LastLogin    *model.LocalTime `json:"last_login"`
	CreatedAt    model.LocalTime  `json:"created_at"`
}

// CreateUserRequest 是管理员创建用户的输入。
type CreateUserRequest struct {
	Username     string
	Email        string
	Password     string
	Role         model.Role
	Organization string
}

// UpdateUserRequest 中为 nil 的字段保持不变。
type UpdateUserRequest struct {
	Email        *string
	Password     *string
	Role         *model.Role
	Organization *string
	IsActive     *bool
}

// AdminService 接口定义了所有管理员相关的业务操作，每次变更都写入审计日志。
type AdminService interface {
	ListUsers(ctx context.Context, page, size int) (*UserListResponse, error)
	CreateUser(ctx context.Context, actor model.Identity, meta RequestMeta, req CreateUserRequest) (*model.User, error)
	UpdateUser(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint, req UpdateUserRequest) (*model.User, error)
	DeleteUser(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint) error
	ToggleUserStatus(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint) (*model.User, error)
}

type adminService struct {
	userRepo repository.UserRepository
	audit    AuditTrail
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, audit AuditTrail) AdminService {
	return &adminService{userRepo: userRepo, audit: audit}
}

// NewUserDetail 把用户转换为不含密码字段的响应结构。
func NewUserDetail(u *model.User) UserDetailResponse {
	return UserDetailResponse{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		Organization: u.Organization,
		IsActive:     u.IsActive,
		LastLogin:    model.NewLocalTime(u.LastLogin),
		CreatedAt:    model.LocalTime(u.CreatedAt),
	}
}

func (s *adminService) ListUsers(_ context.Context, page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(offset, size)
	if err != nil {
		return nil, err
	}

	content := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		content = append(content, NewUserDetail(&u))
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}
	return &UserListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

func (s *adminService) CreateUser(ctx context.Context, actor model.Identity, meta RequestMeta, req CreateUserRequest) (*model.User, error) {
	u, err := s.createUser(actor, req)
	details := fmt.Sprintf("username=%s role=%s", req.Username, req.Role)
	if err == nil {
		details = fmt.Sprintf("user=%d %s", u.ID, details)
	}
	s.record(ctx, actor, meta, model.AuditUserCreate, details, err)
	return u, err
}

func (s *adminService) createUser(actor model.Identity, req CreateUserRequest) (*model.User, error) {
	if req.Role == model.RoleAdmin && !actor.IsAdmin() {
		return nil, ErrAdminRoleReserved
	}
	if _, err := s.userRepo.FindByUsername(req.Username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u, err := NewUserRecord(req.Username, req.Email, req.Password, req.Role, req.Organization)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	log.Infof("[AdminService] 用户 %s 创建了用户 %s (role=%s)", actor.Username, u.Username, u.Role)
	return u, nil
}

func (s *adminService) UpdateUser(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint, req UpdateUserRequest) (*model.User, error) {
	u, changed, err := s.updateUser(actor, userID, req)
	s.record(ctx, actor, meta, model.AuditUserUpdate, fmt.Sprintf("user=%d fields=%s", userID, strings.Join(changed, ",")), err)
	return u, err
}

func (s *adminService) updateUser(actor model.Identity, userID uint, req UpdateUserRequest) (*model.User, []string, error) {
	u, err := s.findUser(userID)
	if err != nil {
		return nil, nil, err
	}
	if u.Role == model.RoleAdmin && !actor.IsAdmin() {
		return nil, nil, ErrAdminRoleReserved
	}

	var changed []string
	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
		changed = append(changed, "email")
	}
	if req.Organization != nil {
		u.Organization = strings.TrimSpace(*req.Organization)
		changed = append(changed, "organization")
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, nil, ErrInvalidRole
		}
		if *req.Role == model.RoleAdmin && !actor.IsAdmin() {
			return nil, nil, ErrAdminRoleReserved
		}
		u.Role = *req.Role
		changed = append(changed, "role")
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
		changed = append(changed, "is_active")
	}
	if req.Password != nil {
		if err := SetPassword(u, *req.Password); err != nil {
			return nil, nil, err
		}
		changed = append(changed, "password")
	}

	if err := s.userRepo.Update(u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrUserExists
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return u, changed, nil
}

// DeleteUser 删除用户。管理员不能删除自己。
func (s *adminService) DeleteUser(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint) error {
	err := s.deleteUser(actor, userID)
	s.record(ctx, actor, meta, model.AuditUserDelete, fmt.Sprintf("user=%d", userID), err)
	return err
}

func (s *adminService) deleteUser(actor model.Identity, userID uint) error {
	if userID == actor.UserID {
		return ErrSelfDeletion
	}
	u, err := s.findUser(userID)
	if err != nil {
		return err
	}
	if u.Role == model.RoleAdmin && !actor.IsAdmin() {
		return ErrAdminRoleReserved
	}
	if err := s.userRepo.Delete(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ToggleUserStatus 启用或停用用户。停用的用户已签发的 token 立即失效。
func (s *adminService) ToggleUserStatus(ctx context.Context, actor model.Identity, meta RequestMeta, userID uint) (*model.User, error) {
	u, err := s.toggle(actor, userID)
	details := fmt.Sprintf("user=%d", userID)
	if err == nil {
		details = fmt.Sprintf("%s is_active=%t", details, u.IsActive)
	}
	s.record(ctx, actor, meta, model.AuditUserToggleStatus, details, err)
	return u, err
}

func (s *adminService) toggle(actor model.Identity, userID uint) (*model.User, error) {
	if userID == actor.UserID {
		return nil, ErrSelfDeletion
	}
	u, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}
	if u.Role == model.RoleAdmin && !actor.IsAdmin() {
		return nil, ErrAdminRoleReserved
	}
	u.IsActive = !u.IsActive
	if err := s.userRepo.Update(u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return u, nil
}

func (s *adminService) findUser(userID uint) (*model.User, error) {
	u, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *adminService) record(ctx context.Context, actor model.Identity, meta RequestMeta, action, details string, err error) {
	uid := actor.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID: &uid, Action: action, Details: details,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: err == nil, Err: err,
	})
}
