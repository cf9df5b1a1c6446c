package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn 为一条设备链路提供读/写循环与回调能力
type Conn struct {
	rwc          io.ReadWriteCloser
	writeC       chan []byte
	writeTimeout time.Duration
	closed       int32
	started      int32
	onRead       func([]byte)
	onRecvBytes  func(int)
	doneC        chan struct{}
	doneOnce     sync.Once

	errMu sync.Mutex
	err   error
}

// ConnOption 链路选项
type ConnOption func(*Conn)

// WithWriteTimeout 写队列满时的等待上限
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithRecvHook 每次读到数据时回调字节数（指标）
func WithRecvHook(fn func(int)) ConnOption {
	return func(c *Conn) { c.onRecvBytes = fn }
}

// NewConn 包装双工字节流；调用 Start 后开始读写
func NewConn(rwc io.ReadWriteCloser, opts ...ConnOption) *Conn {
	c := &Conn{
		rwc:          rwc,
		writeC:       make(chan []byte, 128),
		writeTimeout: 5 * time.Second,
		doneC:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetOnRead 安装读取回调（收到上行原始字节时触发）
func (c *Conn) SetOnRead(h func([]byte)) { c.onRead = h }

// Start 启动读/写循环（非阻塞，只生效一次）
func (c *Conn) Start() {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return
	}
	go c.run()
}

// Write 异步写入，受写队列与写超时影响
func (c *Conn) Write(b []byte) (err error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)

	// Close 与入队竞争时 writeC 可能已关闭
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case c.writeC <- dup:
		return nil
	case <-time.After(c.writeTimeout):
		return errors.New("write queue timeout")
	}
}

// Close 关闭链路与写队列
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.writeC)
	err := c.rwc.Close()
	if atomic.LoadInt32(&c.started) == 0 {
		c.finish()
	}
	return err
}

// Done 返回链路关闭通知通道
func (c *Conn) Done() <-chan struct{} { return c.doneC }

// Err 返回导致链路结束的 I/O 错误；主动关闭或对端 EOF 时为 nil
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) finish() {
	c.doneOnce.Do(func() { close(c.doneC) })
}

// run 读/写循环，阻塞直至链路结束
func (c *Conn) run() {
	defer c.finish()

	// 写循环
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for msg := range c.writeC {
			if _, err := c.rwc.Write(msg); err != nil {
				c.setErr(err)
				_ = c.rwc.Close()
				// 排空队列，让 Close 可以结束
				for range c.writeC {
				}
				return
			}
		}
	}()

	// 读循环
	buf := make([]byte, 4096)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			if c.onRecvBytes != nil {
				c.onRecvBytes(n)
			}
			if c.onRead != nil {
				c.onRead(buf[:n])
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && atomic.LoadInt32(&c.closed) == 0 {
				c.setErr(err)
			}
			break
		}
	}
	_ = c.Close()
	// 等待写循环退出
	<-doneW
}
