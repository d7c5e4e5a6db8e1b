package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"praivio-go/internal/service"
)

// sseSink 把流式事件写成 text/event-stream，每个事件是一行 data: JSON。
type sseSink struct {
	c *gin.Context
}

func newSSESink(c *gin.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) Begin() error {
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) Token(text string) error {
	return s.write(gin.H{"response": text})
}

func (s *sseSink) Complete(sum service.StreamSummary) error {
	done := gin.H{
		"done":            true,
		"id":              sum.GenerationID,
		"tokens_used":     sum.TokensUsed,
		"processing_time": sum.ProcessingTime,
	}
	if sum.MessageID != "" {
		done["message_id"] = sum.MessageID
	}
	return s.write(done)
}

func (s *sseSink) Fail(message string) error {
	return s.write(gin.H{"error": message})
}

func (s *sseSink) write(v interface{}) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", b); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

const wsWriteTimeout = 10 * time.Second

// wsConn 串行化同一连接上的写操作。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

// wsSink 把一次对话轮次的事件写到 WebSocket 连接。
type wsSink struct {
	out       *wsConn
	sessionID string
}

func (s *wsSink) Begin() error {
	return s.out.send(gin.H{"type": "start", "session_id": s.sessionID})
}

func (s *wsSink) Token(text string) error {
	return s.out.send(gin.H{"type": "token", "content": text})
}

func (s *wsSink) Complete(sum service.StreamSummary) error {
	return s.out.send(gin.H{
		"type":            "completion",
		"status":          "finished",
		"session_id":      s.sessionID,
		"id":              sum.GenerationID,
		"message_id":      sum.MessageID,
		"tokens_used":     sum.TokensUsed,
		"processing_time": sum.ProcessingTime,
		"timestamp":       time.Now().UnixMilli(),
	})
}

func (s *wsSink) Fail(message string) error {
	return s.out.send(gin.H{"type": "error", "error": message, "session_id": s.sessionID})
}
