package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"praivio-go/internal/metrics"
	"praivio-go/internal/model"
	"praivio-go/internal/prompt"
	"praivio-go/internal/repository"
	"praivio-go/pkg/log"
	"praivio-go/pkg/secure"
	"praivio-go/pkg/storage"
	"praivio-go/pkg/tasks"
)

// DownloadURLExpiry 是临时下载链接的有效期。
const DownloadURLExpiry = 15 * time.Minute

// UploadLimits 是各类附件的大小上限（字节）。
type UploadLimits struct {
	PDF   int64
	Image int64
	Audio int64
}

// Max 返回某类附件的大小上限。
func (l UploadLimits) Max(kind model.FileKind) int64 {
	switch kind {
	case model.FileKindPDF:
		return l.PDF
	case model.FileKindImage:
		return l.Image
	case model.FileKindAudio:
		return l.Audio
	}
	return 0
}

// ExtractionRunner 同步提取附件文本，由 pipeline.Processor 实现。
type ExtractionRunner interface {
	ExtractAndStore(ctx context.Context, f *model.AttachedFile, data []byte) error
}

// ExtractionPublisher 把提取任务投递到消息队列，由 kafka.Producer 实现。
type ExtractionPublisher interface {
	PublishExtraction(ctx context.Context, task tasks.FileExtractionTask) error
}

// UploadInput 是一次上传的文件内容。
type UploadInput struct {
	FileName    string
	ContentType string
	Data        []byte
	SessionID   *string
}

// FileInfo 是返回给客户端的附件信息。ProcessedContent 只在查询单个文件时填充。
type FileInfo struct {
	ID               string                 `json:"id"`
	FileName         string                 `json:"filename"`
	FileType         model.FileKind         `json:"file_type"`
	FileSize         int64                  `json:"file_size"`
	SessionID        *string                `json:"session_id"`
	Status           model.ExtractionStatus `json:"status"`
	ProcessedContent *string                `json:"processed_content,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// FileService 定义了附件的上传、查询和删除操作，同时为提示词组装提供附件内容。
type FileService interface {
	Upload(ctx context.Context, id model.Identity, meta RequestMeta, in UploadInput) (*FileInfo, error)
	// RejectUpload 为在读取请求体阶段就被拒绝的上传写入失败审计。
	RejectUpload(ctx context.Context, id model.Identity, meta RequestMeta, fileName string, err error)
	Get(ctx context.Context, id model.Identity, fileID string) (*FileInfo, error)
	ListBySession(ctx context.Context, id model.Identity, sessionID string) ([]FileInfo, error)
	Delete(ctx context.Context, id model.Identity, meta RequestMeta, fileID string) error
	DownloadURL(ctx context.Context, id model.Identity, fileID string) (string, error)
	ResolveFile(ctx context.Context, ownerID uint, fileID string) (*prompt.FileContent, error)
}

type fileService struct {
	files     repository.FileRepository
	chats     repository.ChatRepository
	store     storage.ObjectStore
	cipher    *secure.Cipher
	runner    ExtractionRunner
	publisher ExtractionPublisher
	audit     AuditTrail
	limits    UploadLimits
}

// NewFileService 创建一个新的 FileService 实例。publisher 为 nil 时在上传请求中同步提取。
func NewFileService(files repository.FileRepository, chats repository.ChatRepository, store storage.ObjectStore, cipher *secure.Cipher,
	runner ExtractionRunner, publisher ExtractionPublisher, audit AuditTrail, limits UploadLimits) FileService {
	return &fileService{
		files:     files,
		chats:     chats,
		store:     store,
		cipher:    cipher,
		runner:    runner,
		publisher: publisher,
		audit:     audit,
		limits:    limits,
	}
}

// DetectKind 先按 Content-Type、再按扩展名判断附件类型。
func DetectKind(contentType, fileName string) (model.FileKind, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "application/pdf":
		return model.FileKindPDF, true
	case strings.HasPrefix(mediaType, "image/"):
		return model.FileKindImage, true
	case strings.HasPrefix(mediaType, "audio/"):
		return model.FileKindAudio, true
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return model.FileKindPDF, true
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".webp":
		return model.FileKindImage, true
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm":
		return model.FileKindAudio, true
	}
	return "", false
}

func (s *fileService) Upload(ctx context.Context, id model.Identity, meta RequestMeta, in UploadInput) (*FileInfo, error) {
	info, err := s.upload(ctx, id, in)
	uid := id.UserID
	entry := AuditEntry{
		UserID: &uid, Action: model.AuditFileUpload,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: true,
	}
	if err != nil {
		s.RejectUpload(ctx, id, meta, in.FileName, err)
		return nil, err
	}
	entry.Details = fmt.Sprintf("file=%s type=%s size=%d status=%s", info.ID, info.FileType, info.FileSize, info.Status)
	metrics.FilesUploaded.WithLabelValues(string(info.FileType), string(info.Status)).Inc()
	s.audit.Record(ctx, entry)
	return info, nil
}

func (s *fileService) RejectUpload(ctx context.Context, id model.Identity, meta RequestMeta, fileName string, err error) {
	uid := id.UserID
	name := "-"
	if fileName != "" {
		name = filepath.Base(fileName)
	}
	s.audit.Record(ctx, AuditEntry{
		UserID:    &uid,
		Action:    model.AuditFileUpload,
		Details:   fmt.Sprintf("%s filename=%s", uploadFailureCategory(err), name),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   false,
		Err:       err,
	})
}

func (s *fileService) upload(ctx context.Context, id model.Identity, in UploadInput) (*FileInfo, error) {
	kind, ok := DetectKind(in.ContentType, in.FileName)
	if !ok {
		return nil, ErrUnsupportedFile
	}
	if limit := s.limits.Max(kind); limit > 0 && int64(len(in.Data)) > limit {
		return nil, fmt.Errorf("%w: %s files are limited to %d MB", ErrFileTooLarge, kind, limit/(1024*1024))
	}
	if in.SessionID != nil {
		if _, err := s.chats.FindSession(ctx, *in.SessionID, id.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
	}

	fileID := uuid.NewString()
	name := filepath.Base(in.FileName)
	key := fmt.Sprintf("uploads/%d/%s%s", id.UserID, fileID, strings.ToLower(filepath.Ext(name)))
	if err := s.store.Put(ctx, key, in.Data, in.ContentType); err != nil {
		log.Errorf("[FileService] 上传到对象存储失败 key=%s: %v", key, err)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	f := &model.AttachedFile{
		ID:          fileID,
		UserID:      id.UserID,
		SessionID:   in.SessionID,
		Kind:        kind,
		FileName:    name,
		ContentType: in.ContentType,
		FileSize:    int64(len(in.Data)),
		StoragePath: key,
		Status:      model.ExtractionPending,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			log.Warnf("[FileService] 清理对象失败 key=%s: %v", key, rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.extract(ctx, f, in.Data)
	return toFileInfo(f, nil), nil
}

// extract 优先投递到消息队列，没有队列或投递失败时同步提取。
func (s *fileService) extract(ctx context.Context, f *model.AttachedFile, data []byte) {
	if s.publisher != nil {
		err := s.publisher.PublishExtraction(ctx, tasks.FileExtractionTask{
			FileID:      f.ID,
			ObjectKey:   f.StoragePath,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Kind:        string(f.Kind),
			UserID:      f.UserID,
		})
		if err == nil {
			return
		}
		log.Warnf("[FileService] 投递提取任务失败，改为同步提取 file=%s: %v", f.ID, err)
	}
	if err := s.runner.ExtractAndStore(ctx, f, data); err != nil {
		log.Errorf("[FileService] 保存提取结果失败 file=%s: %v", f.ID, err)
	}
}

func (s *fileService) Get(ctx context.Context, id model.Identity, fileID string) (*FileInfo, error) {
	f, err := s.find(ctx, id.UserID, fileID)
	if err != nil {
		return nil, err
	}
	var content *string
	if text, ok := s.decrypt(f); ok {
		content = &text
	}
	return toFileInfo(f, content), nil
}

func (s *fileService) ListBySession(ctx context.Context, id model.Identity, sessionID string) ([]FileInfo, error) {
	if _, err := s.chats.FindSession(ctx, sessionID, id.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	files, err := s.files.ListBySession(ctx, sessionID, id.UserID)
	if err != nil {
		return nil, err
	}
	infos := make([]FileInfo, 0, len(files))
	for i := range files {
		infos = append(infos, *toFileInfo(&files[i], nil))
	}
	return infos, nil
}

func (s *fileService) Delete(ctx context.Context, id model.Identity, meta RequestMeta, fileID string) error {
	err := s.delete(ctx, id, fileID)
	uid := id.UserID
	s.audit.Record(ctx, AuditEntry{
		UserID: &uid, Action: model.AuditFileDelete, Details: "file=" + fileID,
		IP: meta.IP, UserAgent: meta.UserAgent, Success: err == nil, Err: err,
	})
	return err
}

func (s *fileService) delete(ctx context.Context, id model.Identity, fileID string) error {
	f, err := s.find(ctx, id.UserID, fileID)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, f.ID, id.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := s.store.Remove(ctx, f.StoragePath); err != nil {
		log.Warnf("[FileService] 删除对象失败 key=%s: %v", f.StoragePath, err)
	}
	return nil
}

func (s *fileService) DownloadURL(ctx context.Context, id model.Identity, fileID string) (string, error) {
	f, err := s.find(ctx, id.UserID, fileID)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignedURL(ctx, f.StoragePath, f.FileName, DownloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return url, nil
}

// ResolveFile 返回已完成提取的附件文本；未完成、失败或不属于 ownerID 的附件返回错误。
func (s *fileService) ResolveFile(ctx context.Context, ownerID uint, fileID string) (*prompt.FileContent, error) {
	f, err := s.find(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	text, ok := s.decrypt(f)
	if !ok {
		return nil, fmt.Errorf("file %s has no extracted content (status %s)", f.ID, f.Status)
	}
	return &prompt.FileContent{ID: f.ID, FileName: f.FileName, Kind: f.Kind, Content: text}, nil
}

func (s *fileService) decrypt(f *model.AttachedFile) (string, bool) {
	if f.Status != model.ExtractionCompleted || f.ProcessedContent == nil {
		return "", false
	}
	text, err := s.cipher.Decrypt(*f.ProcessedContent)
	if err != nil {
		log.Errorf("[FileService] 解密附件内容失败 file=%s: %v", f.ID, err)
		return "", false
	}
	return text, true
}

func (s *fileService) find(ctx context.Context, userID uint, fileID string) (*model.AttachedFile, error) {
	f, err := s.files.FindByID(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return f, nil
}

func toFileInfo(f *model.AttachedFile, content *string) *FileInfo {
	return &FileInfo{
		ID:               f.ID,
		FileName:         f.FileName,
		FileType:         f.Kind,
		FileSize:         f.FileSize,
		SessionID:        f.SessionID,
		Status:           f.Status,
		ProcessedContent: content,
		CreatedAt:        f.CreatedAt,
	}
}

func uploadFailureCategory(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFile):
		return "unsupported_type"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrMissingFile):
		return "missing_file"
	case errors.Is(err, ErrStorageFailure):
		return "storage"
	default:
		return failureCategory(err)
	}
}
