package model

import "time"

// 审计动作标签
const (
	AuditRequest          = "REQUEST"
	AuditLogin            = "LOGIN"
	AuditLogout           = "LOGOUT"
	AuditAuthFailed       = "AUTH_FAILED"
	AuditTextGeneration   = "TEXT_GENERATION"
	AuditChatMessage      = "CHAT_MESSAGE"
	AuditChatDelete       = "CHAT_SESSION_DELETE"
	AuditFileUpload       = "FILE_UPLOAD"
	AuditFileDelete       = "FILE_DELETE"
	AuditUserCreate       = "USER_CREATE"
	AuditUserUpdate       = "USER_UPDATE"
	AuditUserDelete       = "USER_DELETE"
	AuditUserToggleStatus = "USER_TOGGLE_STATUS"
	AuditRateLimited      = "RATE_LIMITED"
)

// AuditEvent 对应 audit_logs 表，只追加。
type AuditEvent struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       *uint     `gorm:"index" json:"user_id"`
	Action       string    `gorm:"type:varchar(64);index;not null" json:"action"`
	Details      string    `gorm:"type:text" json:"details"`
	IPAddress    string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent    string    `gorm:"type:varchar(512)" json:"user_agent"`
	Success      bool      `gorm:"not null" json:"success"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

func (AuditEvent) TableName() string {
	return "audit_logs"
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &ChatSession{}, &ChatMessage{}, &Generation{}, &AttachedFile{}, &AuditEvent{},
	}
}
