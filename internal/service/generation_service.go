package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"praivio-go/internal/model"
	"praivio-go/internal/prompt"
	"praivio-go/internal/repository"
	"praivio-go/internal/sanitize"
	"praivio-go/pkg/llm"
	"praivio-go/pkg/log"
)

// GenerationDefaults 是请求未指定参数时使用的默认值。
type GenerationDefaults struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// DefaultGenerationDefaults 返回默认采样参数。
func DefaultGenerationDefaults(model string) GenerationDefaults {
	return GenerationDefaults{Model: model, MaxTokens: 1000, Temperature: 0.7, TopP: 0.9}
}

// GenerateRequest 是一次单轮生成的输入。
type GenerateRequest struct {
	Prompt           string
	Model            string
	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Template         *string
	Context          *string
}

// GenerationResult 是单轮生成的响应。ID 为 nil 表示结果未能保存。
type GenerationResult struct {
	ID             *uint     `json:"id"`
	GeneratedText  string    `json:"generated_text"`
	ModelName      string    `json:"model_name"`
	TokensUsed     int       `json:"tokens_used"`
	ProcessingTime float64   `json:"processing_time"`
	TemplateUsed   *string   `json:"template_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenerationService 处理单轮文本生成。
type GenerationService interface {
	Generate(ctx context.Context, id model.Identity, meta RequestMeta, req GenerateRequest) (*GenerationResult, error)
	// GenerateStream 只在流开始之前的失败时返回错误，之后的失败以 Fail 事件发送。
	GenerateStream(ctx context.Context, id model.Identity, meta RequestMeta, req GenerateRequest, sink StreamSink) error
	History(ctx context.Context, id model.Identity, page, size int) ([]model.Generation, int64, error)
}

type generationService struct {
	llm         llm.Client
	recorder    Recorder
	audit       AuditTrail
	generations repository.GenerationRepository
	defaults    GenerationDefaults
}

// NewGenerationService 创建一个新的 GenerationService 实例。
func NewGenerationService(client llm.Client, recorder Recorder, audit AuditTrail, generations repository.GenerationRepository, defaults GenerationDefaults) GenerationService {
	return &generationService{llm: client, recorder: recorder, audit: audit, generations: generations, defaults: defaults}
}

type preparedGeneration struct {
	prompt       string
	templateUsed *string
	context      *string
	completion   llm.CompletionRequest
}

// prepare 清洗输入并套用模板。
func (s *generationService) prepare(req GenerateRequest) (*preparedGeneration, error) {
	cleaned := sanitize.Sanitize(req.Prompt)
	if cleaned == "" {
		return nil, ErrEmptyContent
	}

	var contextText, templateID string
	if req.Context != nil {
		contextText = sanitize.Sanitize(*req.Context)
	}
	if req.Template != nil {
		templateID = strings.TrimSpace(*req.Template)
	}
	final, applied := prompt.ApplyTemplate(templateID, contextText, cleaned)

	p := &preparedGeneration{prompt: cleaned}
	if applied {
		p.templateUsed = &templateID
	}
	if contextText != "" {
		p.context = &contextText
	}
	p.completion = llm.CompletionRequest{
		Model:   firstNonEmpty(strings.TrimSpace(req.Model), s.defaults.Model),
		Prompt:  final,
		Options: s.options(req),
	}
	return p, nil
}

func (s *generationService) options(req GenerateRequest) llm.Options {
	opts := llm.Options{
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = s.defaults.MaxTokens
	}
	if opts.Temperature == nil {
		t := s.defaults.Temperature
		opts.Temperature = &t
	}
	if opts.TopP == nil {
		p := s.defaults.TopP
		opts.TopP = &p
	}
	return opts
}

func (s *generationService) Generate(ctx context.Context, id model.Identity, meta RequestMeta, req GenerateRequest) (*GenerationResult, error) {
	p, err := s.prepare(req)
	if err != nil {
		s.auditFailure(ctx, id, meta, err)
		return nil, err
	}

	ev := relay(ctx, s.llm, p.completion, nil, nil)
	observeOutcome("generate", ev)
	if ev.Type == llm.EventError {
		err := upstreamError(ev.Err)
		log.Errorf("[GenerationService] 生成失败 user=%d model=%s: %v", id.UserID, p.completion.Model, ev.Err)
		s.auditFailure(ctx, id, meta, err)
		return nil, err
	}
	observeTokens(p.completion.Model, ev.TokensUsed)

	result := &GenerationResult{
		GeneratedText:  ev.Text,
		ModelName:      p.completion.Model,
		TokensUsed:     ev.TokensUsed,
		ProcessingTime: seconds(ev.ProcessingTime),
		TemplateUsed:   p.templateUsed,
		CreatedAt:      time.Now(),
	}
	if gen := s.record(ctx, id, p, ev); gen != nil {
		result.ID = &gen.ID
		result.CreatedAt = gen.CreatedAt
	}
	s.auditSuccess(ctx, id, meta, p.completion.Model, ev.TokensUsed)
	return result, nil
}

func (s *generationService) GenerateStream(ctx context.Context, id model.Identity, meta RequestMeta, req GenerateRequest, sink StreamSink) error {
	p, err := s.prepare(req)
	if err != nil {
		s.auditFailure(ctx, id, meta, err)
		return err
	}
	if err := sink.Begin(); err != nil {
		return err
	}

	ev := relay(ctx, s.llm, p.completion, sink, nil)
	observeOutcome("generate_stream", ev)
	if ev.Type == llm.EventError {
		err := upstreamError(ev.Err)
		log.Errorf("[GenerationService] 流式生成失败 user=%d model=%s: %v", id.UserID, p.completion.Model, ev.Err)
		s.auditFailure(ctx, id, meta, err)
		_ = sink.Fail(publicMessage(err))
		return nil
	}
	observeTokens(p.completion.Model, ev.TokensUsed)

	summary := StreamSummary{TokensUsed: ev.TokensUsed, ProcessingTime: seconds(ev.ProcessingTime)}
	if gen := s.record(ctx, id, p, ev); gen != nil {
		summary.GenerationID = &gen.ID
	}
	if err := sink.Complete(summary); err != nil {
		log.Warnf("[GenerationService] 发送结束事件失败: %v", err)
	}
	s.auditSuccess(ctx, id, meta, p.completion.Model, ev.TokensUsed)
	return nil
}

func (s *generationService) History(ctx context.Context, id model.Identity, page, size int) ([]model.Generation, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.generations.ListByUser(ctx, id.UserID, (page-1)*size, size)
}

func (s *generationService) record(ctx context.Context, id model.Identity, p *preparedGeneration, ev llm.Event) *model.Generation {
	return s.recorder.RecordGeneration(ctx, GenerationRecord{
		UserID:         id.UserID,
		Prompt:         p.prompt,
		GeneratedText:  ev.Text,
		ModelName:      p.completion.Model,
		TokensUsed:     ev.TokensUsed,
		ProcessingTime: ev.ProcessingTime,
		TemplateUsed:   p.templateUsed,
		Context:        p.context,
	})
}

func (s *generationService) auditSuccess(ctx context.Context, id model.Identity, meta RequestMeta, modelName string, tokens int) {
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID:    &uid,
		Action:    model.AuditTextGeneration,
		Details:   fmt.Sprintf("model=%s tokens=%d", modelName, tokens),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
}

func (s *generationService) auditFailure(ctx context.Context, id model.Identity, meta RequestMeta, err error) {
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID:    &uid,
		Action:    model.AuditTextGeneration,
		Details:   failureCategory(err) + " tokens=0",
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   false,
		Err:       err,
	})
}

// failureCategory 返回审计日志中的失败类别。
func failureCategory(err error) string {
	switch {
	case errors.Is(err, ErrEmptyContent):
		return "validation"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
