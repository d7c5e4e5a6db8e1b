package service

import (
	"context"
	"time"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/log"
)

const persistTimeout = 10 * time.Second

// GenerationRecord 是一次完成的生成需要保存的内容。
type GenerationRecord struct {
	UserID         uint
	Prompt         string
	GeneratedText  string
	ModelName      string
	TokensUsed     int
	ProcessingTime time.Duration
	TemplateUsed   *string
	Context        *string
}

// Recorder 保存生成结果。写入失败不影响已经返回给调用方的文本。
type Recorder interface {
	// RecordGeneration 返回 nil 表示没有写入。
	RecordGeneration(ctx context.Context, r GenerationRecord) *model.Generation
	// AppendAssistantMessage 保存助手回复，text 为空时不写入并返回 nil。
	AppendAssistantMessage(ctx context.Context, sessionID, text string, generationID *uint) *model.ChatMessage
}

type recorder struct {
	generations repository.GenerationRepository
	chats       repository.ChatRepository
}

func NewRecorder(generations repository.GenerationRepository, chats repository.ChatRepository) Recorder {
	return &recorder{generations: generations, chats: chats}
}

func (r *recorder) RecordGeneration(ctx context.Context, rec GenerationRecord) *model.Generation {
	g := &model.Generation{
		UserID:         rec.UserID,
		Prompt:         rec.Prompt,
		GeneratedText:  rec.GeneratedText,
		ModelName:      rec.ModelName,
		TokensUsed:     max(rec.TokensUsed, 0),
		ProcessingTime: max(rec.ProcessingTime.Seconds(), 0),
		TemplateUsed:   rec.TemplateUsed,
		Context:        rec.Context,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.generations.Create(writeCtx, g); err != nil {
		log.Errorf("[Recorder] 保存生成记录失败 user=%d: %v", rec.UserID, err)
		return nil
	}
	return g
}

func (r *recorder) AppendAssistantMessage(ctx context.Context, sessionID, text string, generationID *uint) *model.ChatMessage {
	if text == "" {
		return nil
	}
	msg := &model.ChatMessage{
		ID:           model.NewMessageID(),
		SessionID:    sessionID,
		Role:         model.MessageRoleAssistant,
		Content:      text,
		GenerationID: generationID,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.chats.AppendMessage(writeCtx, msg); err != nil {
		log.Errorf("[Recorder] 保存助手消息失败 session=%s: %v", sessionID, err)
		return nil
	}
	return msg
}
