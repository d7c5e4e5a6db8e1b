// Package pipeline 定义了附件文本提取的流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/log"
	"praivio-go/pkg/secure"
	"praivio-go/pkg/storage"
	"praivio-go/pkg/tasks"
)

// Processor 提取附件文本、加密后写回数据库。
// 上传时同步调用 ExtractAndStore，配置了 Kafka 时由消费者调用 Process。
type Processor struct {
	extractor *Extractor
	store     storage.ObjectStore
	files     repository.FileRepository
	cipher    *secure.Cipher
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(extractor *Extractor, store storage.ObjectStore, files repository.FileRepository, cipher *secure.Cipher) *Processor {
	return &Processor{extractor: extractor, store: store, files: files, cipher: cipher}
}

// Process 处理一条 Kafka 任务：从对象存储读取文件后提取。已完成的文件直接跳过。
func (p *Processor) Process(ctx context.Context, task tasks.FileExtractionTask) error {
	f, err := p.files.FindByIDUnscoped(ctx, task.FileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Processor] 文件 %s 已不存在，跳过", task.FileID)
			return nil
		}
		return err
	}
	if f.Status != model.ExtractionPending {
		return nil
	}

	data, err := p.store.Get(ctx, f.StoragePath)
	if err != nil {
		return fmt.Errorf("从对象存储读取文件失败: %w", err)
	}
	return p.ExtractAndStore(ctx, f, data)
}

// ExtractAndStore 提取并保存文本。提取失败时状态记为 failed 且不保存内容，
// 只有写库失败才返回错误。
func (p *Processor) ExtractAndStore(ctx context.Context, f *model.AttachedFile, data []byte) error {
	status := model.ExtractionCompleted
	var content *string

	text, err := p.extractor.ExtractText(ctx, data, f.Kind, f.FileName, f.ContentType)
	text = strings.TrimSpace(text)
	switch {
	case err != nil:
		log.Warnw("[Processor] 文本提取失败", "file", f.ID, "kind", f.Kind, "error", err)
		status = model.ExtractionFailed
	case text == "":
		log.Warnw("[Processor] 未提取到文本", "file", f.ID, "kind", f.Kind)
		status = model.ExtractionFailed
	default:
		enc, err := p.cipher.Encrypt(text)
		if err != nil {
			return fmt.Errorf("加密提取内容失败: %w", err)
		}
		content = &enc
	}

	if err := p.files.CompleteExtraction(ctx, f.ID, content, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 已被其他处理者完成
			return nil
		}
		return fmt.Errorf("保存提取结果失败: %w", err)
	}
	f.Status = status
	f.ProcessedContent = content
	log.Infof("[Processor] 文件 %s 提取完成, status=%s", f.ID, status)
	return nil
}
