// Package circuit 为交易所调用提供熔断：连续失败达到阈值后在冷却期内直接拒绝，
// 冷却结束后只放行一个探测请求。
package circuit

import (
	"errors"
	"sync"
	"time"

	"spotguard/internal/logger"
)

// ErrOpen 表示熔断打开（或半开探测进行中），请求未被执行。
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	counts    func(error) bool
	onChange  func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

type Option func(*Breaker)

// WithClock 替换时间源。
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// CountIf 决定哪些错误计入失败；不计入的错误按成功处理。默认所有非 nil 错误都计入。
func CountIf(fn func(error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.counts = fn
		}
	}
}

// OnStateChange 在状态迁移后同步回调，回调内不得再调用 Breaker。
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

func New(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		counts:    func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute 在熔断允许时执行 fn 并记录结果；被拒绝时返回 ErrOpen，fn 不会执行。
func (b *Breaker) Execute(fn func() error) error {
	if !b.acquire() {
		return ErrOpen
	}
	err := fn()
	b.release(b.counts(err))
	return err
}

func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.moveTo(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) release(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.state == StateHalfOpen
	b.probing = false
	if !failed {
		b.failures = 0
		if wasProbe {
			b.moveTo(StateClosed)
		}
		return
	}
	b.failures++
	if wasProbe || (b.state == StateClosed && b.failures >= b.threshold) {
		b.openedAt = b.now()
		b.moveTo(StateOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d, cooldown=%s)", b.name, from, to, b.failures, b.threshold, b.cooldown)
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
