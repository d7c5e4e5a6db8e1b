package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"praivio-go/internal/metrics"
	"praivio-go/pkg/llm"
	"praivio-go/pkg/log"
)

// RequestMeta 是写入审计日志的请求来源信息。
type RequestMeta struct {
	IP        string
	UserAgent string
}

// StreamSummary 是流正常结束时发给客户端的信息。
type StreamSummary struct {
	GenerationID   *uint
	MessageID      string
	TokensUsed     int
	ProcessingTime float64
}

// StreamSink 是流式响应的输出端（SSE 或 WebSocket）。
// Begin 在第一个事件之前调用一次，之后的错误只能以 Fail 事件告知客户端。
type StreamSink interface {
	Begin() error
	Token(text string) error
	Complete(s StreamSummary) error
	Fail(message string) error
}

var errTruncatedStream = errors.New("stream closed without terminal event")

// relay 读取整个事件流：每个片段先写入 acc，再转发给 sink。
// sink 写入失败后停止转发并取消上游请求，但仍读到流结束，返回终止事件。
func relay(ctx context.Context, client llm.Client, req llm.CompletionRequest, sink StreamSink, acc *strings.Builder) llm.Event {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	forwarding := sink != nil
	var terminal llm.Event
	for ev := range client.Stream(streamCtx, req) {
		if ev.Type != llm.EventToken {
			terminal = ev
			continue
		}
		if acc != nil {
			acc.WriteString(ev.Text)
		}
		if forwarding {
			if err := sink.Token(ev.Text); err != nil {
				log.Warnf("client stopped receiving stream: %v", err)
				forwarding = false
				cancel()
			}
		}
	}
	if !terminal.Terminal() {
		terminal = llm.Event{Type: llm.EventError, Err: errTruncatedStream}
	}
	return terminal
}

// upstreamError 把推理服务的错误归类为超时或一般失败。
func upstreamError(err error) error {
	if llm.IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// publicMessage 是返回给客户端的错误描述，不包含内部细节。
func publicMessage(err error) string {
	if errors.Is(err, ErrUpstreamTimeout) {
		return "Generation timed out"
	}
	return "Generation failed"
}

func observeOutcome(kind string, ev llm.Event) {
	switch {
	case ev.Type == llm.EventDone:
		metrics.GenerationsTotal.WithLabelValues(kind, metrics.OutcomeCompleted).Inc()
		metrics.GenerationDuration.WithLabelValues(kind).Observe(ev.ProcessingTime.Seconds())
	case errors.Is(ev.Err, context.Canceled):
		metrics.GenerationsTotal.WithLabelValues(kind, metrics.OutcomeCancelled).Inc()
	default:
		metrics.GenerationsTotal.WithLabelValues(kind, metrics.OutcomeFailed).Inc()
	}
}

func observeTokens(model string, tokens int) {
	if tokens > 0 {
		metrics.TokensTotal.WithLabelValues(model).Add(float64(tokens))
	}
}

func seconds(d time.Duration) float64 {
	return max(d.Seconds(), 0)
}
