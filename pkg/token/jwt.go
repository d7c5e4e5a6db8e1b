// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer 是本服务签发的所有 token 的 iss 声明。
const Issuer = "praivio"

// ErrInvalidToken 表示 token 签名、签发者或有效期校验失败。
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey       []byte
	accessTokenDur  time.Duration
	refreshTokenDur time.Duration
	now             func() time.Time
}

// CustomClaims 定义了 JWT 中携带的身份信息。
type CustomClaims struct {
	UserID       uint   `json:"user_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Organization string `json:"organization,omitempty"`
	jwt.RegisteredClaims
}

// Subject 是签发 token 所需的用户信息。
type Subject struct {
	UserID       uint
	Username     string
	Role         string
	Organization string
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secret),
		accessTokenDur:  time.Hour * time.Duration(accessTokenExpireHours),
		refreshTokenDur: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
		now:             time.Now,
	}
}

// GenerateToken 生成 access token。
func (m *JWTManager) GenerateToken(s Subject) (string, error) {
	return m.sign(s, m.accessTokenDur)
}

// GenerateRefreshToken 生成 refresh token，有效期更长。
func (m *JWTManager) GenerateRefreshToken(s Subject) (string, error) {
	return m.sign(s, m.refreshTokenDur)
}

func (m *JWTManager) sign(s Subject, ttl time.Duration) (string, error) {
	now := m.now()
	claims := CustomClaims{
		UserID:       s.UserID,
		Username:     s.Username,
		Role:         s.Role,
		Organization: s.Organization,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证 token 的签名、签发者和有效期，成功时返回 claims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// RemainingTTL 返回 token 距离过期的剩余时间，用于黑名单的过期设置。
func (m *JWTManager) RemainingTTL(claims *CustomClaims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl < 0 {
		return 0
	}
	return ttl
}
