package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"praivio-go/internal/model"
)

// UsageCount 是按名称聚合的使用次数。
type UsageCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// GenerationTotals 是生成记录的汇总。
type GenerationTotals struct {
	Count             int64   `json:"total_generations"`
	Tokens            int64   `json:"total_tokens"`
	AvgProcessingTime float64 `json:"average_processing_time"`
}

// GenerationRepository 定义了生成记录的持久化操作。只提供插入和查询。
type GenerationRepository interface {
	Create(ctx context.Context, g *model.Generation) error
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Generation, int64, error)
	Totals(ctx context.Context, userID *uint) (GenerationTotals, error)
	CountSince(ctx context.Context, userID *uint, since time.Time) (int64, error)
	ModelUsage(ctx context.Context, userID *uint) ([]UsageCount, error)
	TemplateUsage(ctx context.Context, userID *uint) ([]UsageCount, error)
}

type generationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

func (r *generationRepository) Create(ctx context.Context, g *model.Generation) error {
	return r.db.WithContext(ctx).Create(g).Error
}

// ListByUser 按创建时间倒序分页返回用户的生成记录。
func (r *generationRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Generation, int64, error) {
	var (
		gens  []model.Generation
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.Generation{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&gens).Error; err != nil {
		return nil, 0, err
	}
	return gens, total, nil
}

// scoped 在 userID 非空时按用户过滤，否则统计全部。
func (r *generationRepository) scoped(ctx context.Context, userID *uint) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.Generation{})
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	}
	return db
}

func (r *generationRepository) Totals(ctx context.Context, userID *uint) (GenerationTotals, error) {
	var row struct {
		Count  int64
		Tokens *int64
		Avg    *float64
	}
	err := r.scoped(ctx, userID).
		Select("COUNT(*) AS count, SUM(tokens_used) AS tokens, AVG(processing_time) AS avg").
		Scan(&row).Error
	if err != nil {
		return GenerationTotals{}, err
	}
	t := GenerationTotals{Count: row.Count}
	if row.Tokens != nil {
		t.Tokens = *row.Tokens
	}
	if row.Avg != nil {
		t.AvgProcessingTime = *row.Avg
	}
	return t, nil
}

func (r *generationRepository) CountSince(ctx context.Context, userID *uint, since time.Time) (int64, error) {
	var n int64
	err := r.scoped(ctx, userID).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}

func (r *generationRepository) ModelUsage(ctx context.Context, userID *uint) ([]UsageCount, error) {
	var rows []UsageCount
	err := r.scoped(ctx, userID).
		Select("model_name AS name, COUNT(*) AS count").
		Group("model_name").Order("count DESC").Scan(&rows).Error
	return rows, err
}

func (r *generationRepository) TemplateUsage(ctx context.Context, userID *uint) ([]UsageCount, error) {
	var rows []UsageCount
	err := r.scoped(ctx, userID).
		Where("template_used IS NOT NULL").
		Select("template_used AS name, COUNT(*) AS count").
		Group("template_used").Order("count DESC").Scan(&rows).Error
	return rows, err
}
