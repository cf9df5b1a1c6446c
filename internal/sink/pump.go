package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/correlation"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

const (
	defaultQueueSize      = 1024
	defaultDeliverTimeout = 5 * time.Second
)

// Source 可订阅事件的连接（companion.Client 满足该接口）
type Source interface {
	ID() string
	Subscribe(fn correlation.Listener, kinds ...event.Kind) func()
}

// Pump 有界队列 + 单投递协程。
// 订阅回调运行在设备读路径上，Offer 永不阻塞，队列满时丢弃并计数。
type Pump struct {
	sinks   []Sink
	queue   chan *Envelope
	log     *zap.Logger
	obs     Observer
	now     func() time.Time
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	running bool
	done    chan struct{}
}

// PumpOption Pump 选项
type PumpOption func(*Pump)

func WithPumpLogger(l *zap.Logger) PumpOption {
	return func(p *Pump) {
		if l != nil {
			p.log = l
		}
	}
}

func WithPumpObserver(o Observer) PumpOption {
	return func(p *Pump) {
		if o != nil {
			p.obs = o
		}
	}
}

// WithQueueSize 队列容量，<=0 使用默认值
func WithQueueSize(n int) PumpOption {
	return func(p *Pump) {
		if n > 0 {
			p.queue = make(chan *Envelope, n)
		}
	}
}

// WithDeliverTimeout 单个 sink 单次投递超时
func WithDeliverTimeout(d time.Duration) PumpOption {
	return func(p *Pump) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPump 创建 Pump，调用 Start 后开始投递
func NewPump(sinks []Sink, opts ...PumpOption) *Pump {
	p := &Pump{
		sinks:   sinks,
		queue:   make(chan *Envelope, defaultQueueSize),
		log:     zap.NewNop(),
		obs:     nopObserver{},
		now:     time.Now,
		timeout: defaultDeliverTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach 订阅连接上的事件，返回取消订阅函数；kinds 为空时订阅全部
func (p *Pump) Attach(src Source, kinds ...event.Kind) func() {
	connID := src.ID()
	return src.Subscribe(func(ev event.Event) {
		if ev.Kind() == event.KindTx {
			return
		}
		p.Offer(NewEnvelope(connID, ev, p.now()))
	}, kinds...)
}

// Offer 非阻塞入队；队列满或已关闭时返回 false
func (p *Pump) Offer(env *Envelope) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- env:
		return true
	default:
		p.obs.ObserveOverflow()
		p.log.Warn("sink queue full, drop event", zap.String("kind", env.Kind), zap.String("id", env.ID))
		return false
	}
}

// Len 当前排队数量
func (p *Pump) Len() int { return len(p.queue) }

// Start 启动投递协程，Close 后排空队列退出。ctx 取消时放弃剩余事件。
func (p *Pump) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.closed {
		return
	}
	p.running = true
	go p.run(ctx)
}

func (p *Pump) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.queue:
			if !ok {
				return
			}
			p.deliver(ctx, env)
		}
	}
}

func (p *Pump) deliver(ctx context.Context, env *Envelope) {
	for _, s := range p.sinks {
		dctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := s.Deliver(dctx, env)
		cancel()
		if err != nil {
			p.obs.ObserveDelivery(s.Name(), "error")
			p.log.Warn("sink delivery failed",
				zap.String("sink", s.Name()),
				zap.String("kind", env.Kind),
				zap.String("id", env.ID),
				zap.Error(err))
			continue
		}
		p.obs.ObserveDelivery(s.Name(), "ok")
	}
}

// Close 停止接收新事件，等待投递协程排空队列后关闭所有 sink
func (p *Pump) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	running := p.running
	p.mu.Unlock()

	if running {
		<-p.done
	}
	var firstErr error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
