package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"praivio-go/internal/middleware"
	"praivio-go/internal/service"
	"praivio-go/pkg/database"
	"praivio-go/pkg/llm"
)

const healthProbeTimeout = 3 * time.Second

// SystemHandler 提供统计和健康检查接口。
type SystemHandler struct {
	stats   service.StatsService
	db      *gorm.DB
	llm     llm.Client
	version string
}

// NewSystemHandler 创建一个新的 SystemHandler 实例。
func NewSystemHandler(stats service.StatsService, db *gorm.DB, client llm.Client, version string) *SystemHandler {
	return &SystemHandler{stats: stats, db: db, llm: client, version: version}
}

// Statistics 返回使用统计，范围由调用者的能力决定。
func (h *SystemHandler) Statistics(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	stats, err := h.stats.Statistics(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", stats)
}

// Health 检查数据库和推理服务的可达性。数据库不可用时返回 503。
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		dbStatus = "unavailable"
	}
	llmStatus := "ok"
	if _, err := h.llm.ListModels(ctx); err != nil {
		llmStatus = "unavailable"
	}

	status, code := "healthy", http.StatusOK
	if dbStatus != "ok" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else if llmStatus != "ok" {
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status":    status,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    gin.H{"database": dbStatus, "ollama": llmStatus},
	})
}
