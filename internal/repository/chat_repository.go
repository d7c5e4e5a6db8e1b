package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"praivio-go/internal/model"
)

// SessionSummary 是会话列表中的一行。
type SessionSummary struct {
	model.ChatSession
	MessageCount int64 `json:"message_count"`
}

// ChatRepository 定义了聊天会话和消息的持久化操作。
// 所有按会话 id 的查询都带上 userID，其他用户的会话视为不存在。
type ChatRepository interface {
	CreateSession(ctx context.Context, s *model.ChatSession) error
	FindSession(ctx context.Context, sessionID string, userID uint) (*model.ChatSession, error)
	ListSessions(ctx context.Context, userID uint) ([]SessionSummary, error)
	UpdateSession(ctx context.Context, s *model.ChatSession) error
	DeleteSession(ctx context.Context, sessionID string, userID uint) error
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, s *model.ChatSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *chatRepository) FindSession(ctx context.Context, sessionID string, userID uint) (*model.ChatSession, error) {
	var s model.ChatSession
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions 按最近更新时间倒序返回会话及消息数。
func (r *chatRepository) ListSessions(ctx context.Context, userID uint) ([]SessionSummary, error) {
	var sessions []model.ChatSession
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []SessionSummary{}, nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	var counts []struct {
		SessionID string
		N         int64
	}
	if err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Select("session_id, COUNT(*) AS n").
		Where("session_id IN ?", ids).
		Group("session_id").Scan(&counts).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.SessionID] = c.N
	}

	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSummary{ChatSession: s, MessageCount: byID[s.ID]}
	}
	return out, nil
}

func (r *chatRepository) UpdateSession(ctx context.Context, s *model.ChatSession) error {
	return r.db.WithContext(ctx).Model(s).
		Select("title", "system_prompt", "model", "updated_at").
		Updates(s).Error
}

// DeleteSession 在一个事务中删除会话及其全部消息。
func (r *chatRepository) DeleteSession(ctx context.Context, sessionID string, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("session_id = ?", sessionID).Delete(&model.ChatMessage{}).Error
	})
}

// AppendMessage 写入消息并刷新会话的 updated_at。
func (r *chatRepository) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		res := tx.Model(&model.ChatSession{}).Where("id = ?", msg.SessionID).
			Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListMessages 按时间顺序返回会话的全部消息，时间相同时按 id（UUIDv7）排序。
func (r *chatRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").Find(&msgs).Error
	return msgs, err
}
