// Package transcribe 通过 Whisper 兼容接口把音频转写为文本。
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"praivio-go/internal/config"
)

// Client 包装 go-openai 的转写接口，可指向本地部署的 Whisper 服务。
type Client struct {
	api      *openai.Client
	model    string
	language string
}

// NewClient 创建转写客户端。BaseURL 形如 http://whisper:8000/v1。
func NewClient(cfg config.TranscriptionConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{api: openai.NewClientWithConfig(oc), model: model, language: cfg.Language}
}

// Transcribe 转写一段音频，fileName 用于让服务端识别格式。
func (c *Client) Transcribe(ctx context.Context, data []byte, fileName string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: fileName,
		Reader:   bytes.NewReader(data),
		Language: c.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
