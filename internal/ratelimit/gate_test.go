package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestAdmitWithinLimit(t *testing.T) {
	clock := newClock()
	g := NewGate(100, time.Hour, WithClock(clock.Now))

	for i := 0; i < 100; i++ {
		require.True(t, g.Admit("7", "/generate"), "request %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, g.Admit("7", "/generate"))
}

func TestRejectedRequestsAreNotRecorded(t *testing.T) {
	clock := newClock()
	g := NewGate(2, time.Minute, WithClock(clock.Now))

	require.True(t, g.Admit("u", "r"))
	clock.Advance(10 * time.Second)
	require.True(t, g.Admit("u", "r"))

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		assert.False(t, g.Admit("u", "r"))
	}

	// 第一个时间戳过期后只腾出一个名额；被拒绝的请求没有占位
	clock.Advance(45 * time.Second)
	assert.True(t, g.Admit("u", "r"))
	assert.False(t, g.Admit("u", "r"))
}

func TestWindowElapses(t *testing.T) {
	clock := newClock()
	g := NewGate(3, time.Hour, WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		require.True(t, g.Admit("a", "/chat"))
	}
	require.False(t, g.Admit("a", "/chat"))

	clock.Advance(time.Hour)
	assert.True(t, g.Admit("a", "/chat"))
}

func TestKeysAreIndependent(t *testing.T) {
	clock := newClock()
	g := NewGate(1, time.Hour, WithClock(clock.Now))

	assert.True(t, g.Admit("a", "/generate"))
	assert.False(t, g.Admit("a", "/generate"))
	assert.True(t, g.Admit("a", "/chat"))
	assert.True(t, g.Admit("b", "/generate"))
}

func TestIdleKeysAreDropped(t *testing.T) {
	clock := newClock()
	g := NewGate(5, time.Minute, WithClock(clock.Now))
	g.Admit("a", "r")
	g.Admit("b", "r")
	assert.Equal(t, 2, g.Keys())

	clock.Advance(2 * time.Minute)
	assert.True(t, g.Admit("c", "r"))
	assert.Equal(t, 1, g.Keys())
}

func TestActiveKeysSurviveSweep(t *testing.T) {
	clock := newClock()
	g := NewGate(2, time.Minute, WithClock(clock.Now))
	g.Admit("a", "r")
	clock.Advance(30 * time.Second)
	g.Admit("b", "r")
	g.Admit("b", "r")

	clock.Advance(40 * time.Second)
	assert.True(t, g.Admit("c", "r"))
	assert.Equal(t, 2, g.Keys())
	assert.False(t, g.Admit("b", "r"))
}

func TestDefaults(t *testing.T) {
	g := NewGate(0, 0)
	assert.Equal(t, DefaultLimit, g.Limit())
	assert.Equal(t, DefaultWindow, g.Window())
}

func TestConcurrentAdmitNeverExceedsLimit(t *testing.T) {
	g := NewGate(50, time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok := g.Admit("shared", "/generate")
			// 其他键的流量不影响 shared 的计数
			g.Admit(fmt.Sprintf("other-%d", i), "/generate")
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}
