package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
)

// 统计范围
const (
	ScopeGlobal = "global"
	ScopeOwn    = "own"
)

// Statistics 是 /stats 接口的响应。
type Statistics struct {
	repository.GenerationTotals
	GenerationsToday int64                   `json:"generations_today"`
	ModelUsage       []repository.UsageCount `json:"model_usage"`
	TemplateUsage    []repository.UsageCount `json:"template_usage"`
	AuditEventsToday int64                   `json:"audit_events_today"`
	SuccessRate      float64                 `json:"success_rate"`
	ActiveUsers      *int64                  `json:"active_users,omitempty"`
	Scope            string                  `json:"scope"`
}

// StatsService 汇总生成和审计数据。
type StatsService interface {
	// Statistics 对拥有 view_statistics 能力的调用者返回全局数据，否则只统计自己的数据。
	Statistics(ctx context.Context, id model.Identity) (*Statistics, error)
}

type statsService struct {
	generations repository.GenerationRepository
	audits      repository.AuditRepository
	users       repository.UserRepository
	now         func() time.Time
}

// NewStatsService 创建一个新的 StatsService 实例。
func NewStatsService(generations repository.GenerationRepository, audits repository.AuditRepository, users repository.UserRepository) StatsService {
	return &statsService{generations: generations, audits: audits, users: users, now: time.Now}
}

func (s *statsService) Statistics(ctx context.Context, id model.Identity) (*Statistics, error) {
	stats := &Statistics{Scope: ScopeGlobal}
	var scope *uint
	if !id.Can(model.CapViewStatistics) {
		uid := id.UserID
		scope = &uid
		stats.Scope = ScopeOwn
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var auditTotal, auditSucceeded int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.GenerationTotals, err = s.generations.Totals(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		stats.GenerationsToday, err = s.generations.CountSince(gctx, scope, startOfDay)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ModelUsage, err = s.generations.ModelUsage(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TemplateUsage, err = s.generations.TemplateUsage(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		auditTotal, auditSucceeded, err = s.audits.CountSince(gctx, scope, startOfDay)
		return err
	})
	if scope == nil {
		g.Go(func() error {
			n, err := s.users.CountActive()
			if err != nil {
				return err
			}
			stats.ActiveUsers = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.ModelUsage == nil {
		stats.ModelUsage = []repository.UsageCount{}
	}
	if stats.TemplateUsage == nil {
		stats.TemplateUsage = []repository.UsageCount{}
	}
	stats.AuditEventsToday = auditTotal
	if auditTotal > 0 {
		stats.SuccessRate = float64(auditSucceeded) / float64(auditTotal) * 100
	}
	return stats, nil
}
