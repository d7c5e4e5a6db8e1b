package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"praivio-go/internal/model"
)

// MaxPDFChars 是 PDF 提取文本保留的最大字符数。
const MaxPDFChars = 10000

const truncationMarker = "\n\n[... Text gekürzt ...]"

// ErrNoExtractor 表示该类型的附件没有配置提取服务。
var ErrNoExtractor = errors.New("no extractor configured for file kind")

// DocumentExtractor 从 PDF 或图片中提取文本（含 OCR）。
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName, contentType string) (string, error)
}

// Transcriber 把音频转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, fileName string) (string, error)
}

// Extractor 按附件类型选择提取方式。
type Extractor struct {
	documents DocumentExtractor
	audio     Transcriber
}

// NewExtractor 任一参数可为 nil，对应类型的附件将无法提取。
func NewExtractor(documents DocumentExtractor, audio Transcriber) *Extractor {
	return &Extractor{documents: documents, audio: audio}
}

// ExtractText 返回附件的纯文本。PDF 文本超过 MaxPDFChars 时截断并追加标记。
func (e *Extractor) ExtractText(ctx context.Context, data []byte, kind model.FileKind, fileName, contentType string) (string, error) {
	switch kind {
	case model.FileKindPDF:
		if e.documents == nil {
			return "", ErrNoExtractor
		}
		text, err := e.documents.ExtractText(ctx, data, fileName, contentType)
		if err != nil {
			return "", err
		}
		return truncate(text, MaxPDFChars), nil
	case model.FileKindImage:
		if e.documents == nil {
			return "", ErrNoExtractor
		}
		return e.documents.ExtractText(ctx, data, fileName, contentType)
	case model.FileKindAudio:
		if e.audio == nil {
			return "", ErrNoExtractor
		}
		return e.audio.Transcribe(ctx, data, fileName)
	default:
		return "", fmt.Errorf("unsupported file kind %q", kind)
	}
}

func truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + truncationMarker
}
