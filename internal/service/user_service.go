package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/hash"
	"praivio-go/pkg/log"
	"praivio-go/pkg/token"
)

// TokenPair 是登录和刷新接口返回的 token。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginResult 是登录成功后的响应。
type LoginResult struct {
	TokenPair
	User *model.User `json:"user"`
}

// UserService 接口定义了登录、登出和 token 校验相关的操作。
type UserService interface {
	Login(ctx context.Context, meta RequestMeta, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, id model.Identity, meta RequestMeta, tokenString string) error
	// Authenticate 校验 access token，并确认用户仍然存在且处于启用状态。
	Authenticate(ctx context.Context, tokenString string) (model.Identity, error)
	GetProfile(ctx context.Context, id model.Identity) (*model.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
	audit      AuditTrail
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager, audit AuditTrail) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
		audit:      audit,
	}
}

// NewUserRecord 构造一个带密码哈希的新用户，供管理接口和命令行工具使用。
func NewUserRecord(username, email, password string, role model.Role, organization string) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	u := &model.User{
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		Role:         role,
		Organization: strings.TrimSpace(organization),
		IsActive:     true,
	}
	if err := SetPassword(u, password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword 为用户生成新的盐和密码哈希。
func SetPassword(u *model.User, password string) error {
	h, salt, err := hash.HashPassword(password)
	if err != nil {
		return fmt.Errorf("生成密码哈希失败: %w", err)
	}
	u.PasswordHash = h
	u.PasswordSalt = salt
	return nil
}

// Login 处理用户登录的业务逻辑。用户不存在和密码错误返回同一个错误。
func (s *userService) Login(ctx context.Context, meta RequestMeta, username, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil || !hash.CheckPassword(password, user.PasswordHash, user.PasswordSalt) {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[UserService] 查询用户失败 username=%s: %v", username, err)
		}
		s.audit.Record(ctx, AuditEntry{
			Action: model.AuditLogin, Details: "invalid_credentials username=" + username,
			IP: meta.IP, UserAgent: meta.UserAgent, Success: false, Err: ErrInvalidCredentials,
		})
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.audit.Record(ctx, AuditEntry{
			UserID: &user.ID, Action: model.AuditLogin, Details: "inactive username=" + username,
			IP: meta.IP, UserAgent: meta.UserAgent, Success: false, Err: ErrUserInactive,
		})
		return nil, ErrUserInactive
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(user.ID, now); err != nil {
		log.Warnf("[UserService] 更新最后登录时间失败 user=%d: %v", user.ID, err)
	} else {
		user.LastLogin = &now
	}
	s.audit.Record(ctx, AuditEntry{
		UserID: &user.ID, Action: model.AuditLogin, Details: "username=" + username,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: true,
	})
	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// Logout 把 token 加入黑名单，直到它自然过期。
func (s *userService) Logout(ctx context.Context, id model.Identity, meta RequestMeta, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return ErrInvalidToken
	}
	err = s.blacklist.Revoke(ctx, tokenString, s.jwtManager.RemainingTTL(claims))
	if err != nil {
		log.Errorf("[UserService] token 加入黑名单失败 user=%d: %v", id.UserID, err)
	}
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID: &uid, Action: model.AuditLogout, Details: "username=" + id.Username,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: err == nil, Err: err,
	})
	return err
}

func (s *userService) Authenticate(ctx context.Context, tokenString string) (model.Identity, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	revoked, err := s.blacklist.IsRevoked(ctx, tokenString)
	if err != nil {
		return model.Identity{}, fmt.Errorf("查询 token 黑名单失败: %w", err)
	}
	if revoked {
		return model.Identity{}, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Identity{}, fmt.Errorf("%w: user %d no longer exists", ErrInvalidToken, claims.UserID)
		}
		return model.Identity{}, err
	}
	if !user.IsActive {
		return model.Identity{}, ErrUserInactive
	}
	return model.NewIdentity(user), nil
}

func (s *userService) GetProfile(_ context.Context, id model.Identity) (*model.User, error) {
	user, err := s.userRepo.FindByID(id.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	id, err := s.Authenticate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(id.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *userService) issue(user *model.User) (*TokenPair, error) {
	subject := token.Subject{
		UserID:       user.ID,
		Username:     user.Username,
		Role:         string(user.Role),
		Organization: user.Organization,
	}
	access, err := s.jwtManager.GenerateToken(subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(subject)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
