// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"praivio-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL   string
	ocrLanguage string
	httpClient  *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		ocrLanguage: cfg.OCRLanguage,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// ExtractText 调用 Tika 提取文本。contentType 为空时根据文件后缀推断。
// 对图片设置 OCR 语言，Tika 会交给 Tesseract 处理。
func (c *Client) ExtractText(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	if contentType == "" {
		contentType = detectMimeType(fileName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)
	if strings.HasPrefix(contentType, "image/") && c.ocrLanguage != "" {
		req.Header.Set("X-Tika-OCRLanguage", c.ocrLanguage)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	mimeType := mime.TypeByExtension(filepath.Ext(fileName))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
