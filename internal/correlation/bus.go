// Package correlation 事件总线：持久订阅 + 一次性等待者。
//
// 协议没有请求 ID，命令与响应的匹配依赖设备逐条处理命令的约定：
// 调用方在发送命令前登记等待者，第一个匹配的事件完成调用并注销该调用的全部等待登记。
package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

var (
	// ErrTimeout 截止时间前未收到匹配事件
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrClosed 总线已关闭（连接断开）
	ErrClosed = errors.New("event bus closed")
)

// Listener 持久订阅回调，在读路径上同步执行，不得阻塞
type Listener func(event.Event)

type subscription struct {
	id    uint64
	kinds map[event.Kind]struct{} // nil 表示全部类型
	fn    Listener
}

func (s *subscription) match(k event.Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus 单连接事件总线
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	subs    []*subscription
	waiters map[event.Kind][]*Waiter
	closed  bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{waiters: make(map[event.Kind][]*Waiter)}
}

// Subscribe 持久订阅；kinds 为空时接收全部事件。返回的函数用于取消订阅（可重复调用）。
func (b *Bus) Subscribe(fn Listener, kinds ...event.Kind) (unsubscribe func()) {
	s := &subscription{fn: fn}
	if len(kinds) > 0 {
		s.kinds = make(map[event.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, x := range b.subs {
				if x.id == s.id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Await 为 kinds 登记一次性等待者。须在发送命令之前调用。
func (b *Bus) Await(kinds ...event.Kind) *Waiter {
	w := &Waiter{bus: b, kinds: kinds, ch: make(chan event.Event, 1)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		w.done = true
		close(w.ch)
		return w
	}
	for _, k := range kinds {
		b.waiters[k] = append(b.waiters[k], w)
	}
	return w
}

// Publish 投递事件：先完成该类型最早登记的等待者，再按登记顺序通知持久订阅者。
// 返回是否完成了某个等待者。
func (b *Bus) Publish(ev event.Event) bool {
	k := ev.Kind()

	b.mu.Lock()
	var resolved *Waiter
	if ws := b.waiters[k]; len(ws) > 0 {
		resolved = ws[0]
		b.retireLocked(resolved)
		resolved.ch <- ev
	}
	var targets []Listener
	for _, s := range b.subs {
		if s.match(k) {
			targets = append(targets, s.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
	return resolved != nil
}

// Pending 当前登记的等待者数量（按类型计数）
func (b *Bus) Pending(k event.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[k])
}

// Close 关闭总线：所有未完成的等待者立即以 ErrClosed 结束，之后的 Await 直接返回已关闭的等待者。
// 持久订阅不受影响。
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ws := range b.waiters {
		for _, w := range ws {
			if !w.done {
				w.done = true
				close(w.ch)
			}
		}
	}
	b.waiters = make(map[event.Kind][]*Waiter)
}

// retireLocked 将 w 从其登记的全部类型中移除
func (b *Bus) retireLocked(w *Waiter) {
	if w.done {
		return
	}
	w.done = true
	for _, k := range w.kinds {
		ws := b.waiters[k]
		for i, x := range ws {
			if x == w {
				ws = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(b.waiters, k)
		} else {
			b.waiters[k] = ws
		}
	}
}

// Waiter 一次性等待登记
type Waiter struct {
	bus   *Bus
	kinds []event.Kind
	ch    chan event.Event
	done  bool // 受 bus.mu 保护
}

// C 完成时收到事件；总线关闭时通道被关闭
func (w *Waiter) C() <-chan event.Event { return w.ch }

// Cancel 注销全部等待登记，返回调用前是否仍在等待
func (w *Waiter) Cancel() bool {
	w.bus.mu.Lock()
	defer w.bus.mu.Unlock()
	if w.done {
		return false
	}
	w.bus.retireLocked(w)
	return true
}

// Wait 阻塞直到事件到达、超时（timeout<=0 表示不限）或 ctx 取消。
// 超时与取消都会注销等待登记；若注销时事件恰好已到达，则返回该事件。
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (event.Event, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case ev, ok := <-w.ch:
		if !ok {
			return nil, ErrClosed
		}
		return ev, nil
	case <-timeoutC:
		return w.abandon(ErrTimeout)
	case <-ctx.Done():
		return w.abandon(ctx.Err())
	}
}

func (w *Waiter) abandon(cause error) (event.Event, error) {
	if w.Cancel() {
		return nil, cause
	}
	ev, ok := <-w.ch
	if !ok {
		return nil, ErrClosed
	}
	return ev, nil
}
