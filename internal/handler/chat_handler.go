package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"praivio-go/internal/metrics"
	"praivio-go/internal/middleware"
	"praivio-go/internal/model"
	"praivio-go/internal/ratelimit"
	"praivio-go/internal/service"
	"praivio-go/pkg/log"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// 单条 WebSocket 消息的最大字节数
const wsReadLimit = 64 * 1024

// ChatHandler 负责聊天会话的 REST 接口以及 SSE 和 WebSocket 两种对话传输。
type ChatHandler struct {
	chats service.ChatService
	users service.UserService
	audit service.AuditTrail
	gate  *ratelimit.Gate
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chats service.ChatService, users service.UserService, audit service.AuditTrail, gate *ratelimit.Gate) *ChatHandler {
	return &ChatHandler{chats: chats, users: users, audit: audit, gate: gate}
}

// CreateSessionRequest 定义了创建会话 API 的请求体结构。
type CreateSessionRequest struct {
	Title        string  `json:"title" binding:"max=200"`
	Model        string  `json:"model" binding:"max=100"`
	SystemPrompt *string `json:"system_prompt" binding:"omitempty,max=10000"`
}

// UpdateSessionRequest 定义了更新会话 API 的请求体结构，缺省字段保持不变。
type UpdateSessionRequest struct {
	Title        *string `json:"title" binding:"omitempty,notblank,max=200"`
	SystemPrompt *string `json:"system_prompt" binding:"omitempty,max=10000"`
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Content       string   `json:"content" binding:"required,notblank,max=10000"`
	AttachedFiles []string `json:"attached_files" binding:"max=10,dive,required,max=64"`
}

// CreateSession 创建一个新的聊天会话。
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	id, _ := middleware.CurrentIdentity(c)

	session, err := h.chats.CreateSession(c.Request.Context(), id, service.CreateSessionRequest{
		Title:        req.Title,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", session)
}

// ListSessions 返回当前用户的会话列表。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	sessions, err := h.chats.ListSessions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", sessions)
}

// GetSession 返回会话及其全部消息。
func (h *ChatHandler) GetSession(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	session, err := h.chats.GetSession(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", session)
}

// UpdateSession 修改会话标题或系统提示词。
func (h *ChatHandler) UpdateSession(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	id, _ := middleware.CurrentIdentity(c)

	session, err := h.chats.UpdateSession(c.Request.Context(), id, c.Param("id"), service.UpdateSessionRequest{
		Title:        req.Title,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", session)
}

// DeleteSession 删除会话及其消息。
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	if err := h.chats.DeleteSession(c.Request.Context(), id, middleware.Meta(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Session deleted successfully", nil)
}

// SendMessage 追加用户消息，并以 SSE 的形式流式返回助手回复。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	id, _ := middleware.CurrentIdentity(c)

	err := h.chats.SendMessage(c.Request.Context(), id, middleware.Meta(c), c.Param("id"), service.SendMessageRequest{
		Content:       req.Content,
		AttachedFiles: req.AttachedFiles,
	}, newSSESink(c))
	if err != nil {
		respondError(c, err)
	}
}

// wsRequest 是客户端经 WebSocket 发送的指令。
// type 为 message 时开始新的对话轮次，为 stop 时中断正在进行的轮次。
type wsRequest struct {
	Type          string   `json:"type"`
	SessionID     string   `json:"session_id"`
	Content       string   `json:"content"`
	AttachedFiles []string `json:"attached_files"`
}

// Handle 处理一个 WebSocket 聊天连接，token 来自路径参数。
// 同一连接上同时只进行一个对话轮次。
func (h *ChatHandler) Handle(c *gin.Context) {
	id, ok := middleware.Authenticate(c, h.users, h.audit, c.Param("token"))
	if !ok {
		return
	}
	if !id.Can(model.CapWrite) {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "Insufficient permissions: write required", "data": nil})
		return
	}
	meta := middleware.Meta(c)
	route := c.FullPath()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)
	out := &wsConn{conn: conn}

	log.Infof("WebSocket 连接已建立，用户: %s", id.Username)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	incoming := h.readLoop(ctx, conn)

	var (
		stopTurn context.CancelFunc
		turnDone chan struct{}
	)
	defer func() {
		if stopTurn != nil {
			stopTurn()
			<-turnDone
		}
	}()

	for {
		select {
		case req, ok := <-incoming:
			if !ok {
				log.Infof("WebSocket 连接已关闭，用户: %s", id.Username)
				return
			}
			switch req.Type {
			case "stop":
				if stopTurn != nil {
					stopTurn()
					_ = out.send(gin.H{"type": "stop", "message": "Generation stopped", "timestamp": time.Now().UnixMilli()})
				}
			case "message", "":
				if turnDone != nil {
					_ = out.send(gin.H{"type": "error", "error": "A reply is still being generated"})
					continue
				}
				if !h.gate.Admit(id.Key(), route) {
					metrics.RateLimitRejections.WithLabelValues(route).Inc()
					_ = out.send(gin.H{"type": "error", "error": "Rate limit exceeded. Please try again later."})
					continue
				}
				var turnCtx context.Context
				turnCtx, stopTurn = context.WithCancel(ctx)
				turnDone = make(chan struct{})
				go h.runTurn(turnCtx, id, meta, req, out, turnDone)
			default:
				_ = out.send(gin.H{"type": "error", "error": "Unknown message type"})
			}
		case <-turnDone:
			stopTurn()
			stopTurn, turnDone = nil, nil
		}
	}
}

// readLoop 持续读取客户端指令，连接断开后关闭返回的 channel。
func (h *ChatHandler) readLoop(ctx context.Context, conn *websocket.Conn) <-chan wsRequest {
	incoming := make(chan wsRequest)
	go func() {
		defer close(incoming)
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warnf("从 WebSocket 读取消息失败: %v", err)
				}
				return
			}
			select {
			case incoming <- req:
			case <-ctx.Done():
				return
			}
		}
	}()
	return incoming
}

func (h *ChatHandler) runTurn(ctx context.Context, id model.Identity, meta service.RequestMeta, req wsRequest, out *wsConn, done chan<- struct{}) {
	defer close(done)
	sink := &wsSink{out: out, sessionID: req.SessionID}
	err := h.chats.SendMessage(ctx, id, meta, req.SessionID, service.SendMessageRequest{
		Content:       req.Content,
		AttachedFiles: req.AttachedFiles,
	}, sink)
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("WebSocket 对话轮次失败 user=%d session=%s: %v", id.UserID, req.SessionID, err)
		}
		_ = sink.Fail(message)
	}
}
