package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"praivio-go/internal/model"
)

// AuditFilter 是审计日志查询条件，零值字段不参与过滤。
type AuditFilter struct {
	UserID *uint
	Action string
	Since  *time.Time
	Offset int
	Limit  int
}

// AuditRepository 定义了审计日志的持久化操作，只追加不修改。
type AuditRepository interface {
	Create(ctx context.Context, e *model.AuditEvent) error
	List(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int64, error)
	// CountSince 返回 since 之后的事件数和其中成功的事件数。
	CountSince(ctx context.Context, userID *uint, since time.Time) (total int64, succeeded int64, err error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, e *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *auditRepository) List(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.AuditEvent{})
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.Since != nil {
		db = db.Where("created_at >= ?", *f.Since)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var events []model.AuditEvent
	if err := db.Order("created_at DESC").Order("id DESC").Offset(f.Offset).Limit(limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *auditRepository) CountSince(ctx context.Context, userID *uint, since time.Time) (int64, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.AuditEvent{}).Where("created_at >= ?", since)
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	}
	db = db.Session(&gorm.Session{})
	var total, ok int64
	if err := db.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := db.Where("success = ?", true).Count(&ok).Error; err != nil {
		return 0, 0, err
	}
	return total, ok, nil
}
