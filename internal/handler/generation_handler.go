package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/middleware"
	"praivio-go/internal/prompt"
	"praivio-go/internal/service"
	"praivio-go/pkg/llm"
	"praivio-go/pkg/log"
)

// GenerationHandler 处理单轮文本生成、历史记录、模板和模型列表。
type GenerationHandler struct {
	generations service.GenerationService
	llm         llm.Client
}

// NewGenerationHandler 创建一个新的 GenerationHandler 实例。
func NewGenerationHandler(generations service.GenerationService, client llm.Client) *GenerationHandler {
	return &GenerationHandler{generations: generations, llm: client}
}

// GenerateRequest 定义了生成 API 的请求体结构。
type GenerateRequest struct {
	Prompt           string   `json:"prompt" binding:"required,notblank,max=10000"`
	Model            string   `json:"model" binding:"max=100"`
	MaxTokens        int      `json:"max_tokens" binding:"omitempty,min=1,max=4000"`
	Temperature      *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	TopP             *float64 `json:"top_p" binding:"omitempty,min=0,max=1"`
	FrequencyPenalty *float64 `json:"frequency_penalty" binding:"omitempty,min=-2,max=2"`
	PresencePenalty  *float64 `json:"presence_penalty" binding:"omitempty,min=-2,max=2"`
	Template         *string  `json:"template" binding:"omitempty,max=100"`
	Context          *string  `json:"context" binding:"omitempty,max=50000"`
}

func (r GenerateRequest) toService() service.GenerateRequest {
	return service.GenerateRequest{
		Prompt:           r.Prompt,
		Model:            r.Model,
		MaxTokens:        r.MaxTokens,
		Temperature:      r.Temperature,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		Template:         r.Template,
		Context:          r.Context,
	}
}

// Generate 处理非流式生成请求，返回完整的生成结果。
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	id, _ := middleware.CurrentIdentity(c)

	result, err := h.generations.Generate(c.Request.Context(), id, middleware.Meta(c), req.toService())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", result)
}

// GenerateStream 以 SSE 的形式逐段返回生成结果。
func (h *GenerationHandler) GenerateStream(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	id, _ := middleware.CurrentIdentity(c)

	if err := h.generations.GenerateStream(c.Request.Context(), id, middleware.Meta(c), req.toService(), newSSESink(c)); err != nil {
		respondError(c, err)
	}
}

// History 分页返回当前用户的生成记录。
func (h *GenerationHandler) History(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	items, total, err := h.generations.History(c.Request.Context(), id, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"items": items, "total": total, "page": page, "size": size})
}

// Templates 返回按领域分组的模板目录。
func (h *GenerationHandler) Templates(c *gin.Context) {
	respondOK(c, "success", prompt.Catalog())
}

// Models 代理推理服务的模型列表，推理服务不可用时返回空列表。
func (h *GenerationHandler) Models(c *gin.Context) {
	models, err := h.llm.ListModels(c.Request.Context())
	if err != nil {
		log.Warnf("Models: failed to list models from inference service: %v", err)
		models = []llm.ModelInfo{}
	}
	respondOK(c, "success", gin.H{"models": models})
}
