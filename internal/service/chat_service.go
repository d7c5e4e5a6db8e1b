// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/prompt"
	"praivio-go/internal/repository"
	"praivio-go/internal/sanitize"
	"praivio-go/pkg/llm"
	"praivio-go/pkg/log"
)

// DefaultSessionTitle 是未命名会话的标题，首条消息发送后替换为消息摘要。
const DefaultSessionTitle = "Neue Unterhaltung"

const titleMaxRunes = 50

// CreateSessionRequest 是创建会话的输入。
type CreateSessionRequest struct {
	Title        string
	Model        string
	SystemPrompt *string
}

// UpdateSessionRequest 中为 nil 的字段保持不变。
type UpdateSessionRequest struct {
	Title        *string
	SystemPrompt *string
}

// SendMessageRequest 是一次对话轮次的输入。
type SendMessageRequest struct {
	Content       string
	AttachedFiles []string
}

// ChatService 定义了聊天会话和对话轮次的操作。
type ChatService interface {
	CreateSession(ctx context.Context, id model.Identity, req CreateSessionRequest) (*model.ChatSession, error)
	ListSessions(ctx context.Context, id model.Identity) ([]repository.SessionSummary, error)
	GetSession(ctx context.Context, id model.Identity, sessionID string) (*model.ChatSession, error)
	UpdateSession(ctx context.Context, id model.Identity, sessionID string, req UpdateSessionRequest) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, id model.Identity, meta RequestMeta, sessionID string) error
	// SendMessage 保存用户消息并把回复流式写入 sink。
	// 只在流开始之前的失败时返回错误；无论流如何结束，已收到的回复文本都会被保存。
	SendMessage(ctx context.Context, id model.Identity, meta RequestMeta, sessionID string, req SendMessageRequest, sink StreamSink) error
}

type chatService struct {
	chats     repository.ChatRepository
	assembler *prompt.Assembler
	llm       llm.Client
	recorder  Recorder
	audit     AuditTrail
	defaults  GenerationDefaults
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(chats repository.ChatRepository, assembler *prompt.Assembler, client llm.Client, recorder Recorder, audit AuditTrail, defaults GenerationDefaults) ChatService {
	return &chatService{
		chats:     chats,
		assembler: assembler,
		llm:       client,
		recorder:  recorder,
		audit:     audit,
		defaults:  defaults,
	}
}

func (s *chatService) CreateSession(ctx context.Context, id model.Identity, req CreateSessionRequest) (*model.ChatSession, error) {
	session := &model.ChatSession{
		ID:     uuid.NewString(),
		UserID: id.UserID,
		Title:  firstNonEmpty(sanitize.Sanitize(req.Title), DefaultSessionTitle),
		Model:  firstNonEmpty(strings.TrimSpace(req.Model), s.defaults.Model),
	}
	if req.SystemPrompt != nil {
		if sp := sanitize.Sanitize(*req.SystemPrompt); sp != "" {
			session.SystemPrompt = &sp
		}
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return session, nil
}

func (s *chatService) ListSessions(ctx context.Context, id model.Identity) ([]repository.SessionSummary, error) {
	return s.chats.ListSessions(ctx, id.UserID)
}

func (s *chatService) GetSession(ctx context.Context, id model.Identity, sessionID string) (*model.ChatSession, error) {
	session, err := s.findSession(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.Messages = msgs
	return session, nil
}

func (s *chatService) UpdateSession(ctx context.Context, id model.Identity, sessionID string, req UpdateSessionRequest) (*model.ChatSession, error) {
	session, err := s.findSession(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		if title := sanitize.Sanitize(*req.Title); title != "" {
			session.Title = title
		}
	}
	if req.SystemPrompt != nil {
		sp := sanitize.Sanitize(*req.SystemPrompt)
		if sp == "" {
			session.SystemPrompt = nil
		} else {
			session.SystemPrompt = &sp
		}
	}
	if err := s.chats.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return session, nil
}

func (s *chatService) DeleteSession(ctx context.Context, id model.Identity, meta RequestMeta, sessionID string) error {
	uid := id.UserID
	err := s.chats.DeleteSession(ctx, sessionID, id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	entry := AuditEntry{
		UserID: &uid, Action: model.AuditChatDelete, Details: "session=" + sessionID,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: err == nil, Err: err,
	}
	s.audit.Record(ctx, entry)
	return err
}

func (s *chatService) SendMessage(ctx context.Context, id model.Identity, meta RequestMeta, sessionID string, req SendMessageRequest, sink StreamSink) error {
	session, err := s.findSession(ctx, id, sessionID)
	if err != nil {
		s.auditTurnFailure(ctx, id, meta, sessionID, err)
		return err
	}
	content := sanitize.Sanitize(req.Content)
	if content == "" {
		s.auditTurnFailure(ctx, id, meta, session.ID, ErrEmptyContent)
		return ErrEmptyContent
	}

	userMsg := &model.ChatMessage{
		ID:        model.NewMessageID(),
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   content,
	}
	if err := s.chats.AppendMessage(ctx, userMsg); err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
		s.auditTurnFailure(ctx, id, meta, session.ID, err)
		return err
	}
	history, err := s.chats.ListMessages(ctx, session.ID)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
		s.auditTurnFailure(ctx, id, meta, session.ID, err)
		return err
	}
	s.maybeRetitle(ctx, session, history, content)

	var systemPrompt string
	if session.SystemPrompt != nil {
		systemPrompt = *session.SystemPrompt
	}
	assembled := s.assembler.Assemble(ctx, prompt.Input{
		OwnerID:          id.UserID,
		SystemPrompt:     systemPrompt,
		History:          history,
		AttachedFiles:    req.AttachedFiles,
		ExcludeMessageID: userMsg.ID,
		CurrentText:      content,
	})
	completion := llm.CompletionRequest{
		Model:  firstNonEmpty(session.Model, s.defaults.Model),
		Prompt: assembled,
		Options: llm.Options{
			MaxTokens:   s.defaults.MaxTokens,
			Temperature: &s.defaults.Temperature,
			TopP:        &s.defaults.TopP,
		},
	}

	if err := sink.Begin(); err != nil {
		s.auditTurnFailure(ctx, id, meta, session.ID, err)
		return err
	}

	// acc 在每个片段转发之前写入；不论流以何种方式结束，退出时保存已收到的文本
	var (
		acc       strings.Builder
		persisted bool
	)
	persist := func(generationID *uint) *model.ChatMessage {
		if persisted {
			return nil
		}
		persisted = true
		return s.recorder.AppendAssistantMessage(ctx, session.ID, acc.String(), generationID)
	}
	defer func() { persist(nil) }()

	ev := relay(ctx, s.llm, completion, sink, &acc)
	observeOutcome("chat", ev)
	if ev.Type == llm.EventError {
		err := upstreamError(ev.Err)
		log.Errorf("[ChatService] 对话生成失败 session=%s: %v", session.ID, ev.Err)
		s.auditTurnFailure(ctx, id, meta, session.ID, err)
		_ = sink.Fail(publicMessage(err))
		return nil
	}
	observeTokens(completion.Model, ev.TokensUsed)

	summary := StreamSummary{TokensUsed: ev.TokensUsed, ProcessingTime: seconds(ev.ProcessingTime)}
	if gen := s.recorder.RecordGeneration(ctx, GenerationRecord{
		UserID:         id.UserID,
		Prompt:         content,
		GeneratedText:  acc.String(),
		ModelName:      completion.Model,
		TokensUsed:     ev.TokensUsed,
		ProcessingTime: ev.ProcessingTime,
	}); gen != nil {
		summary.GenerationID = &gen.ID
	}
	if msg := persist(summary.GenerationID); msg != nil {
		summary.MessageID = msg.ID
	}
	if err := sink.Complete(summary); err != nil {
		log.Warnf("[ChatService] 发送结束事件失败: %v", err)
	}
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID: &uid, Action: model.AuditChatMessage,
		Details: fmt.Sprintf("session=%s model=%s tokens=%d files=%d", session.ID, completion.Model, ev.TokensUsed, len(req.AttachedFiles)),
		IP:      meta.IP, UserAgent: meta.UserAgent, Success: true,
	})
	return nil
}

// auditTurnFailure 记录一次失败的对话轮次，流是否已打开都使用同一格式。
func (s *chatService) auditTurnFailure(ctx context.Context, id model.Identity, meta RequestMeta, sessionID string, err error) {
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID:    &uid,
		Action:    model.AuditChatMessage,
		Details:   fmt.Sprintf("%s session=%s tokens=0", failureCategory(err), sessionID),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   false,
		Err:       err,
	})
}

// maybeRetitle 用第一条用户消息替换默认标题。
func (s *chatService) maybeRetitle(ctx context.Context, session *model.ChatSession, history []model.ChatMessage, content string) {
	if session.Title != DefaultSessionTitle || len(history) != 1 {
		return
	}
	title := []rune(content)
	if len(title) > titleMaxRunes {
		title = append(title[:titleMaxRunes], '…')
	}
	session.Title = string(title)
	if err := s.chats.UpdateSession(ctx, session); err != nil {
		log.Warnf("[ChatService] 更新会话标题失败 session=%s: %v", session.ID, err)
	}
}

func (s *chatService) findSession(ctx context.Context, id model.Identity, sessionID string) (*model.ChatSession, error) {
	session, err := s.chats.FindSession(ctx, sessionID, id.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}
