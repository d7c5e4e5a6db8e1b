package repository

import (
	"context"

	"gorm.io/gorm"

	"praivio-go/internal/model"
)

// FileRepository 定义了附件元数据的持久化操作。
type FileRepository interface {
	Create(ctx context.Context, f *model.AttachedFile) error
	FindByID(ctx context.Context, fileID string, userID uint) (*model.AttachedFile, error)
	// FindByIDUnscoped 不校验所有者，供后台提取任务使用。
	FindByIDUnscoped(ctx context.Context, fileID string) (*model.AttachedFile, error)
	ListBySession(ctx context.Context, sessionID string, userID uint) ([]model.AttachedFile, error)
	// CompleteExtraction 只更新仍处于 pending 状态的记录，提取结果写入后不再改变。
	CompleteExtraction(ctx context.Context, fileID string, content *string, status model.ExtractionStatus) error
	Delete(ctx context.Context, fileID string, userID uint) error
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, f *model.AttachedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *fileRepository) FindByID(ctx context.Context, fileID string, userID uint) (*model.AttachedFile, error) {
	var f model.AttachedFile
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileID, userID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepository) FindByIDUnscoped(ctx context.Context, fileID string) (*model.AttachedFile, error) {
	var f model.AttachedFile
	if err := r.db.WithContext(ctx).Where("id = ?", fileID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepository) ListBySession(ctx context.Context, sessionID string, userID uint) ([]model.AttachedFile, error) {
	var files []model.AttachedFile
	err := r.db.WithContext(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("created_at ASC").Find(&files).Error
	return files, err
}

func (r *fileRepository) CompleteExtraction(ctx context.Context, fileID string, content *string, status model.ExtractionStatus) error {
	res := r.db.WithContext(ctx).Model(&model.AttachedFile{}).
		Where("id = ? AND status = ?", fileID, model.ExtractionPending).
		Updates(map[string]interface{}{"processed_content": content, "status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *fileRepository) Delete(ctx context.Context, fileID string, userID uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileID, userID).Delete(&model.AttachedFile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
