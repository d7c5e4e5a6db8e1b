package service

import "errors"

// 业务层的哨兵错误，handler 用 errors.Is 映射为 HTTP 状态码。
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or revoked token")
	ErrUserInactive       = errors.New("user account is deactivated")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username or email already exists")
	ErrSelfDeletion       = errors.New("cannot delete your own account")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAdminRoleReserved  = errors.New("only administrators may assign or modify the admin role")

	ErrEmptyContent      = errors.New("content is empty after sanitization")
	ErrSessionNotFound   = errors.New("chat session not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrMissingFile       = errors.New("multipart field file is required")
	ErrStorageFailure    = errors.New("file storage failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrUpstream          = errors.New("upstream llm service failed")
	ErrUpstreamTimeout   = errors.New("upstream llm service timed out")
	ErrSearchUnavailable = errors.New("audit search is not configured")
)
