// Package llm provides a streaming client for a locally hosted, Ollama-compatible inference service.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"praivio-go/internal/config"
	"praivio-go/pkg/log"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Stream 发起一次流式补全。返回的 channel 恰好产生一个终止事件（Done 或 Error）后关闭，
	// 调用方必须一直读取到 channel 关闭。
	Stream(ctx context.Context, req CompletionRequest) <-chan Event
	// ListModels 返回推理服务上可用的模型。
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Options 对应推理服务的采样参数，nil 表示使用服务端默认值。
type Options struct {
	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// CompletionRequest 是一次补全调用的输入。
type CompletionRequest struct {
	Model   string
	Prompt  string
	Options Options
}

// EventType 区分流中的事件。
type EventType int

const (
	EventToken EventType = iota + 1
	EventDone
	EventError
)

// Event 是流中的一个元素。
// Token 事件的 Text 是本次片段；Done 和 Error 事件的 Text 是到目前为止累积的全文。
type Event struct {
	Type           EventType
	Text           string
	TokensUsed     int
	ProcessingTime time.Duration
	Err            error
}

// Terminal 判断事件是否终止流。
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// StatusError 表示推理服务返回了非 2xx 状态码。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm service returned status %d: %s", e.StatusCode, e.Body)
}

// IsTimeout 判断错误是否由超时引起。
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type ollamaClient struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建 Ollama 客户端，cfg.Timeout 限制单次请求（含读取整个流）的总时长。
func NewClient(cfg config.LLMConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ollamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type generateOptions struct {
	NumPredict       int      `json:"num_predict,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateChunk struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error"`
}

func (c *ollamaClient) Stream(ctx context.Context, req CompletionRequest) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		c.stream(ctx, req, events)
	}()
	return events
}

func (c *ollamaClient) stream(ctx context.Context, req CompletionRequest, events chan<- Event) {
	start := time.Now()
	var (
		acc    strings.Builder
		tokens int
	)
	fail := func(err error) {
		events <- Event{Type: EventError, Text: acc.String(), TokensUsed: tokens, ProcessingTime: time.Since(start), Err: err}
	}

	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: true,
		Options: generateOptions{
			NumPredict:       req.Options.MaxTokens,
			Temperature:      req.Options.Temperature,
			TopP:             req.Options.TopP,
			FrequencyPenalty: req.Options.FrequencyPenalty,
			PresencePenalty:  req.Options.PresencePenalty,
		},
	})
	if err != nil {
		fail(fmt.Errorf("failed to marshal generate request: %w", err))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		fail(fmt.Errorf("failed to create generate request: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		fail(fmt.Errorf("failed to call llm service: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fail(&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))})
		return
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				// 无法解析的行直接跳过，不中断整个流
				log.Warnf("skip malformed llm stream line: %v", err)
			} else {
				if chunk.Error != "" {
					fail(fmt.Errorf("llm service error: %s", chunk.Error))
					return
				}
				if chunk.EvalCount > 0 {
					tokens = chunk.EvalCount
				}
				if chunk.Response != "" {
					acc.WriteString(chunk.Response)
					select {
					case events <- Event{Type: EventToken, Text: chunk.Response}:
					case <-ctx.Done():
						fail(fmt.Errorf("stream cancelled: %w", ctx.Err()))
						return
					}
				}
				if chunk.Done {
					events <- Event{Type: EventDone, Text: acc.String(), TokensUsed: tokens, ProcessingTime: time.Since(start)}
					return
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			fail(fmt.Errorf("failed to read from stream: %w", readErr))
			return
		}
	}

	// 上游在没有 done 标记的情况下关闭了连接，按已收到的内容完成
	events <- Event{Type: EventDone, Text: acc.String(), TokensUsed: tokens, ProcessingTime: time.Since(start)}
}
