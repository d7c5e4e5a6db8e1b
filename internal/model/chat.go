package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole 是聊天消息的角色，只允许 user 和 assistant。
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Valid 判断角色是否合法。
func (r MessageRole) Valid() bool {
	return r == MessageRoleUser || r == MessageRoleAssistant
}

// ChatSession 对应 chat_sessions 表。每次追加消息都会刷新 UpdatedAt。
type ChatSession struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       uint          `gorm:"index;not null" json:"user_id"`
	Title        string        `gorm:"type:varchar(255);not null" json:"title"`
	Model        string        `gorm:"type:varchar(100);not null" json:"model"`
	SystemPrompt *string       `gorm:"type:text" json:"system_prompt"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Messages     []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 对应 chat_messages 表，只追加不修改。
type ChatMessage struct {
	ID           string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID    string      `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Role         MessageRole `gorm:"type:varchar(16);not null;check:chk_chat_messages_role,role IN ('user','assistant')" json:"role"`
	Content      string      `gorm:"type:text;not null" json:"content"`
	GenerationID *uint       `json:"generation_id"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// NewMessageID 生成按时间递增的 UUIDv7，同一毫秒内写入的消息也能按 id 排序。
func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}
