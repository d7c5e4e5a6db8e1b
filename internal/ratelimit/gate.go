// Package ratelimit 实现按用户和路由计数的滑动窗口准入控制。
// 状态只保存在进程内存中，重启后清空，多实例之间不共享。
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultLimit  = 100
	DefaultWindow = time.Hour
)

// Gate 为每个 identity:route 键维护一个有序的请求时间戳列表。
type Gate struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string][]time.Time
	// 上次全量清理的时间，每隔一个窗口清理一次空闲键
	lastSweep time.Time
}

// Option 用于定制 Gate。
type Option func(*Gate)

// WithClock 替换时钟，测试中使用。
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate 创建 Gate；limit 或 window 非正时使用默认值。
func NewGate(limit int, window time.Duration, opts ...Option) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Gate{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastSweep = g.now()
	return g
}

// Admit 判断 identity 在 route 上的这次请求是否放行。
// 拒绝的请求不计入窗口。
func (g *Gate) Admit(identity, route string) bool {
	key := identity + ":" + route

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= g.window {
		g.sweep(now)
	}
	stamps := prune(g.windows[key], now, g.window)
	if len(stamps) >= g.limit {
		g.windows[key] = stamps
		return false
	}
	g.windows[key] = append(stamps, now)
	return true
}

// sweep 删除窗口内已没有时间戳的键，调用方须持有锁。
func (g *Gate) sweep(now time.Time) {
	for key, stamps := range g.windows {
		if pruned := prune(stamps, now, g.window); len(pruned) == 0 {
			delete(g.windows, key)
		} else {
			g.windows[key] = pruned
		}
	}
	g.lastSweep = now
}

// Limit 返回窗口内允许的最大请求数。
func (g *Gate) Limit() int { return g.limit }

// Window 返回窗口长度。
func (g *Gate) Window() time.Duration { return g.window }

// Keys 返回当前保存的键数量。
func (g *Gate) Keys() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

// prune 丢弃 now-window 之前（含边界）的时间戳，stamps 按时间升序。
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= window {
		i++
	}
	if i == len(stamps) {
		return nil
	}
	return stamps[i:]
}
