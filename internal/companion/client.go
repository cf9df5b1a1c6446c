// Package companion 设备连接门面：链路 + 分帧 + 事件解码 + 事件总线 + 类型化命令调用。
//
// 协议没有请求 ID，同一连接上的调用被串行化，保证设备一次只处理一条命令。
package companion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/correlation"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/frame"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultAppName     = "meshcore-bridge"
)

var (
	// ErrTimeout 截止时间前设备未响应
	ErrTimeout = correlation.ErrTimeout
	// ErrClosed 连接已关闭
	ErrClosed = correlation.ErrClosed
	// ErrDisabled 设备禁用了该功能（例如导出私钥）
	ErrDisabled = errors.New("feature disabled on device")
	// ErrUnexpectedEvent 完成调用的事件类型与预期不符
	ErrUnexpectedEvent = errors.New("unexpected event")
	// ErrNotStarted 连接尚未启动
	ErrNotStarted = errors.New("client not started")
	// ErrInvalidArgument 参数在发送前即被拒绝
	ErrInvalidArgument = errors.New("invalid argument")
)

// CommandFailedError 设备以 Err 响应命令
type CommandFailedError struct {
	Command command.Code
	Code    event.ErrCode
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("%s rejected by device: %s", e.Command, e.Code)
}

// Client 单个设备连接
type Client struct {
	id      string
	t       transport.Transport
	dec     *frame.StreamDecoder
	table   *event.Table
	bus     *correlation.Bus
	pacer   *Pacer
	log     *zap.Logger
	obs     Observer
	now     func() time.Time
	timeout time.Duration
	appName string

	callMu sync.Mutex
	// emitMu 串行化监听器回调：读路径投递与调用方发布的 Tx 不会并发执行
	emitMu sync.Mutex

	infoMu     sync.RWMutex
	deviceInfo *event.DeviceInfo
	selfInfo   *event.SelfInfo

	startOnce sync.Once
	started   chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// Option 客户端选项
type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithTimeout 单次调用的默认超时；<=0 表示只受 ctx 约束
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithAppName AppStart 上报的应用名
func WithAppName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.appName = name
		}
	}
}

// WithSendRate 命令发送节流；perSec<=0 表示不限速
func WithSendRate(perSec float64, burst int) Option {
	return func(c *Client) { c.pacer = NewPacer(perSec, burst) }
}

// WithTable 替换事件解码表
func WithTable(t *event.Table) Option {
	return func(c *Client) {
		if t != nil {
			c.table = t
		}
	}
}

// WithClock 注入时钟（消息时间戳、设备校时）
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithID 指定连接实例 ID（默认随机 UUID）
func WithID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.id = id
		}
	}
}

// New 在链路上创建客户端，调用 Start 后开始收发
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		id:      uuid.NewString(),
		t:       t,
		table:   event.DefaultTable(),
		bus:     correlation.NewBus(),
		pacer:   NewPacer(0, 1),
		log:     zap.NewNop(),
		obs:     NopObserver(),
		now:     time.Now,
		timeout: defaultCallTimeout,
		appName: defaultAppName,
		started: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("conn_id", c.id))
	c.dec = frame.NewStreamDecoder(
		frame.WithLogger(c.log),
		frame.WithDropHook(c.obs.ObserveDrop),
	)
	return c
}

// ID 连接实例 ID
func (c *Client) ID() string { return c.id }

// Bus 连接的事件总线
func (c *Client) Bus() *correlation.Bus { return c.bus }

// Subscribe 持久订阅；kinds 为空时接收全部事件。
// 回调串行同步执行，不得阻塞，也不得在回调内发起命令或调用 Close（需要时另起 goroutine）。
func (c *Client) Subscribe(fn correlation.Listener, kinds ...event.Kind) func() {
	return c.bus.Subscribe(fn, kinds...)
}

// Done 连接关闭且 Disconnected 已发布后关闭
func (c *Client) Done() <-chan struct{} { return c.closed }

// Pacer 命令节流器
func (c *Client) Pacer() *Pacer { return c.pacer }

// DeviceInfo 最近一次 DeviceQuery 的结果
func (c *Client) DeviceInfo() *event.DeviceInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.deviceInfo
}

// SelfInfo 最近一次 AppStart 的结果
func (c *Client) SelfInfo() *event.SelfInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.selfInfo
}

// Start 启动链路，执行尽力而为的 DeviceQuery 后发布 Connected
func (c *Client) Start(ctx context.Context) error {
	first := false
	c.startOnce.Do(func() {
		first = true
		c.t.SetOnRead(c.onRead)
		c.t.Start()
		close(c.started)
		go c.watch()
	})
	if !first {
		return nil
	}
	c.obs.ObserveLink(true)

	info, err := c.DeviceQuery(ctx, command.SupportedCompanionProtocolVersion)
	if err != nil {
		c.log.Warn("device query failed", zap.Error(err))
	}
	c.publish(&event.Connected{DeviceInfo: info})
	c.log.Info("companion connected", zap.Bool("device_info", info != nil))
	return nil
}

// Close 关闭链路，等待 Disconnected 发布完成。不可在监听器回调内同步调用。
func (c *Client) Close() error {
	err := c.t.Close()
	select {
	case <-c.started:
		<-c.closed
	default:
		c.bus.Close()
		c.markClosed()
	}
	return err
}

func (c *Client) markClosed() { c.closeOnce.Do(func() { close(c.closed) }) }

func (c *Client) watch() {
	<-c.t.Done()
	reason := "closed"
	if err := c.t.Err(); err != nil {
		reason = err.Error()
	}
	c.obs.ObserveLink(false)
	c.log.Info("companion disconnected", zap.String("reason", reason))
	c.publish(&event.Disconnected{Reason: reason})
	c.bus.Close()
	c.markClosed()
}

// onRead 读路径：分帧、解码、投递。只在链路的读协程中执行。
func (c *Client) onRead(chunk []byte) {
	for _, f := range c.dec.Feed(chunk) {
		c.obs.ObserveFrame("rx", len(f.Payload))
		if f.Kind != frame.KindIncoming {
			c.log.Debug("ignore non-incoming frame", zap.Stringer("kind", f.Kind))
			c.obs.ObserveDrop("direction")
			continue
		}
		c.dispatch(f.Payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	ev, err := c.table.Decode(payload)
	if err != nil {
		reason := "truncated"
		switch {
		case errors.Is(err, event.ErrUnknownCode):
			reason = "unknown_code"
		case errors.Is(err, event.ErrMalformed):
			reason = "malformed"
		case errors.Is(err, event.ErrEmpty):
			reason = "empty"
		}
		c.obs.ObserveDecodeError(reason)
		c.log.Warn("drop inbound frame",
			zap.String("reason", reason),
			zap.Int("len", len(payload)),
			zap.Error(err))
		return
	}
	c.obs.ObserveEvent(ev.Kind().String())
	c.publish(ev)
}

func (c *Client) publish(ev event.Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.bus.Publish(ev)
}

// call 登记等待者、发送命令、等待完成。Err 总是被一并等待并转换为 CommandFailedError。
func (c *Client) call(ctx context.Context, cmd command.Code, payload []byte, kinds ...event.Kind) (event.Event, error) {
	return c.collectCall(ctx, cmd, payload, nil, kinds...)
}

// collectCall 同 call；collect 非空时在串行区内订阅中间事件，返回前退订，
// 排队中的其他调用看不到本次调用的流式响应。
func (c *Client) collectCall(ctx context.Context, cmd command.Code, payload []byte,
	collect func() (unsubscribe func()), kinds ...event.Kind) (event.Event, error) {
	select {
	case <-c.started:
	default:
		return nil, ErrNotStarted
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()
	if collect != nil {
		defer collect()()
	}

	begin := time.Now()
	ev, err := c.roundTrip(ctx, payload, kinds)
	result := "ok"
	switch {
	case err == nil:
		if e, ok := ev.(*event.Err); ok {
			result = "failed"
			err = &CommandFailedError{Command: cmd, Code: e.Code}
			ev = nil
		} else if _, ok := ev.(*event.Disabled); ok {
			result = "disabled"
			err = ErrDisabled
			ev = nil
		}
	case errors.Is(err, correlation.ErrTimeout):
		result = "timeout"
		c.log.Warn("call timed out", zap.Stringer("command", cmd), zap.Duration("timeout", c.timeout))
	case errors.Is(err, correlation.ErrClosed), errors.Is(err, transport.ErrClosed):
		result = "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	default:
		result = "error"
	}
	c.obs.ObserveCall(cmd.String(), result, time.Since(begin))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return ev, nil
}

func (c *Client) roundTrip(ctx context.Context, payload []byte, kinds []event.Kind) (event.Event, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	awaited := make([]event.Kind, 0, len(kinds)+1)
	awaited = append(awaited, kinds...)
	awaited = append(awaited, event.KindErr)
	w := c.bus.Await(awaited...)

	raw, err := frame.Encode(frame.KindOutgoing, payload)
	if err != nil {
		w.Cancel()
		return nil, err
	}
	c.publish(&event.Tx{Payload: payload})
	if err := c.t.Write(raw); err != nil {
		w.Cancel()
		return nil, fmt.Errorf("write: %w", err)
	}
	c.obs.ObserveFrame("tx", len(payload))
	return w.Wait(ctx, c.timeout)
}

// expect 将完成事件断言为具体类型
func expect[T event.Event](ev event.Event) (T, error) {
	v, ok := ev.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Kind())
	}
	return v, nil
}
