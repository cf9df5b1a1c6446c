package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/health"
	"github.com/taoyao-code/meshcore-bridge/internal/metrics"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

// ErrLinkLost 未启用重连时链路断开
var ErrLinkLost = errors.New("device link lost")

// Dialer 建立设备链路（未 Start）
type Dialer func(ctx context.Context) (transport.Transport, error)

// ConnectHook 每次连接建立（Connected 已发布）后依次同步执行
type ConnectHook func(ctx context.Context, c *companion.Client)

// SupervisorOptions 链路守护参数
type SupervisorOptions struct {
	Dial             Dialer
	NewClient        func(t transport.Transport) *companion.Client
	Reconnect        bool
	Interval         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	Logger           *zap.Logger
	Metrics          *metrics.AppMetrics
}

// Supervisor 维护单条设备链路：经熔断器拨号、启动客户端、断线后按间隔重连
type Supervisor struct {
	opts    SupervisorOptions
	breaker *transport.Breaker
	log     *zap.Logger
	hooks   []ConnectHook
	attach  []func(c *companion.Client)

	mu       sync.RWMutex
	client   *companion.Client
	since    time.Time
	firmware string

	lastEvent  atomic.Int64
	reconnects atomic.Int64
}

// NewSupervisor 创建守护器
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.NewClient == nil {
		opts.NewClient = func(t transport.Transport) *companion.Client { return companion.New(t) }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Supervisor{
		opts:    opts,
		breaker: transport.NewBreaker(opts.FailureThreshold, opts.Cooldown),
		log:     log,
	}
	s.breaker.OnStateChange(func(from, to transport.BreakerState) {
		s.log.Warn("dial breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	})
	return s
}

// OnConnect 注册连接建立钩子，须在 Run 前调用
func (s *Supervisor) OnConnect(h ConnectHook) { s.hooks = append(s.hooks, h) }

// OnClient 注册订阅钩子：在客户端 Start 前执行，保证能收到 Connected
func (s *Supervisor) OnClient(fn func(c *companion.Client)) { s.attach = append(s.attach, fn) }

// Breaker 拨号熔断器
func (s *Supervisor) Breaker() *transport.Breaker { return s.breaker }

// Current 当前连接，链路断开时为 nil
func (s *Supervisor) Current() *companion.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Status 链路状态快照（健康检查）
func (s *Supervisor) Status() health.LinkStatus {
	s.mu.RLock()
	st := health.LinkStatus{
		Connected: s.client != nil,
		Since:     s.since,
		Firmware:  s.firmware,
	}
	s.mu.RUnlock()
	if ns := s.lastEvent.Load(); ns > 0 {
		st.LastEventAt = time.Unix(0, ns)
	}
	st.Reconnects = s.reconnects.Load()
	st.BreakerState = s.breaker.State().String()
	return st
}

func (s *Supervisor) setClient(c *companion.Client) {
	s.mu.Lock()
	s.client = c
	s.since = time.Now()
	s.firmware = ""
	if c != nil {
		if info := c.DeviceInfo(); info != nil {
			s.firmware = info.FirmwareBuildDate
		}
	}
	s.mu.Unlock()
}

// Run 阻塞维护链路直到 ctx 取消。未启用重连时，首次拨号失败或链路断开即返回错误。
func (s *Supervisor) Run(ctx context.Context) error {
	connected := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		var t transport.Transport
		err := s.breaker.Call(func() error {
			var dialErr error
			t, dialErr = s.opts.Dial(ctx)
			return dialErr
		})
		if err != nil {
			if !s.opts.Reconnect {
				return err
			}
			if !errors.Is(err, transport.ErrBreakerOpen) {
				s.log.Warn("device dial failed", zap.Error(err))
			}
			if !s.sleep(ctx) {
				return nil
			}
			continue
		}

		if connected > 0 {
			s.reconnects.Add(1)
			if s.opts.Metrics != nil {
				s.opts.Metrics.ReconnectsTotal.Inc()
			}
		}
		connected++

		if err := s.serve(ctx, s.opts.NewClient(t)); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !s.opts.Reconnect {
			return ErrLinkLost
		}
		if !s.sleep(ctx) {
			return nil
		}
	}
}

// serve 运行一次连接直到链路断开或 ctx 取消
func (s *Supervisor) serve(ctx context.Context, c *companion.Client) error {
	c.Subscribe(func(event.Event) { s.lastEvent.Store(time.Now().UnixNano()) })
	for _, fn := range s.attach {
		fn(c)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return err
	}
	s.setClient(c)
	s.log.Info("device link up", zap.String("conn_id", c.ID()))

	for _, h := range s.hooks {
		h(ctx, c)
	}

	select {
	case <-c.Done():
		s.log.Warn("device link down", zap.String("conn_id", c.ID()))
	case <-ctx.Done():
		_ = c.Close()
	}
	s.setClient(nil)
	return nil
}

func (s *Supervisor) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
