package model

import "time"

// FileKind 是附件类型。
type FileKind string

const (
	FileKindPDF   FileKind = "pdf"
	FileKindImage FileKind = "image"
	FileKindAudio FileKind = "audio"
)

// ExtractionStatus 描述附件文本提取的进度。
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// AttachedFile 对应 uploaded_files 表。ProcessedContent 为加密后的提取文本，
// 提取完成后不再修改。
type AttachedFile struct {
	ID               string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           uint             `gorm:"index;not null" json:"user_id"`
	SessionID        *string          `gorm:"type:varchar(36);index" json:"session_id"`
	Kind             FileKind         `gorm:"type:varchar(16);not null" json:"file_type"`
	FileName         string           `gorm:"type:varchar(255);not null" json:"filename"`
	ContentType      string           `gorm:"type:varchar(128)" json:"content_type"`
	FileSize         int64            `gorm:"not null" json:"file_size"`
	StoragePath      string           `gorm:"type:varchar(512);not null" json:"-"`
	ProcessedContent *string          `gorm:"type:longtext" json:"-"`
	Status           ExtractionStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (AttachedFile) TableName() string {
	return "uploaded_files"
}
