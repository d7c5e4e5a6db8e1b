package service

import (
	"context"
	"time"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/log"
)

// 审计写入使用独立的超时，不受请求取消影响
const auditWriteTimeout = 5 * time.Second

// AuditEntry 是一次审计记录的输入。
type AuditEntry struct {
	UserID    *uint
	Action    string
	Details   string
	IP        string
	UserAgent string
	Success   bool
	Err       error
}

// AuditMirror 把审计事件额外写入检索系统。
type AuditMirror interface {
	Index(ctx context.Context, e *model.AuditEvent) error
	Search(ctx context.Context, query string, size int) ([]model.AuditEvent, error)
}

// AuditTrail 记录合规审计事件。
type AuditTrail interface {
	// Record 尽力写入一条事件，失败只记日志，返回值可以忽略。
	Record(ctx context.Context, e AuditEntry) bool
	List(ctx context.Context, f repository.AuditFilter) ([]model.AuditEvent, int64, error)
	Search(ctx context.Context, query string, size int) ([]model.AuditEvent, error)
}

type auditTrail struct {
	repo   repository.AuditRepository
	mirror AuditMirror
}

// NewAuditTrail 创建审计服务，mirror 可为 nil。
func NewAuditTrail(repo repository.AuditRepository, mirror AuditMirror) AuditTrail {
	return &auditTrail{repo: repo, mirror: mirror}
}

func (a *auditTrail) Record(ctx context.Context, e AuditEntry) bool {
	event := &model.AuditEvent{
		UserID:    e.UserID,
		Action:    e.Action,
		Details:   e.Details,
		IPAddress: e.IP,
		UserAgent: truncateRunes(e.UserAgent, 512),
		Success:   e.Success,
	}
	if e.Err != nil {
		msg := e.Err.Error()
		event.ErrorMessage = &msg
	}
	// 失败事件必须带有失败类别
	if !e.Success && event.Details == "" {
		if e.Err != nil {
			event.Details = e.Err.Error()
		} else {
			event.Details = e.Action + " failed"
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.repo.Create(writeCtx, event); err != nil {
		log.Errorf("[AuditTrail] 写入审计事件失败 action=%s: %v", e.Action, err)
		return false
	}
	if a.mirror != nil {
		if err := a.mirror.Index(writeCtx, event); err != nil {
			log.Warnf("[AuditTrail] 审计事件镜像失败 id=%d: %v", event.ID, err)
		}
	}
	return true
}

func (a *auditTrail) List(ctx context.Context, f repository.AuditFilter) ([]model.AuditEvent, int64, error) {
	return a.repo.List(ctx, f)
}

func (a *auditTrail) Search(ctx context.Context, query string, size int) ([]model.AuditEvent, error) {
	if a.mirror == nil {
		return nil, ErrSearchUnavailable
	}
	return a.mirror.Search(ctx, query, size)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
