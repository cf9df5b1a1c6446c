// Package transport 设备链路：在任意双工字节流上提供读回调、有序写队列与关闭通知。
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrClosed 链路已关闭
var ErrClosed = errors.New("transport closed")

// Transport 协议引擎对链路的全部要求
type Transport interface {
	// Write 按序发送，返回前已复制 b
	Write(b []byte) error
	// SetOnRead 安装上行字节回调（任意分片），须在 Start 前调用
	SetOnRead(h func([]byte))
	// Start 开始读写循环，重复调用无效
	Start()
	// Done 链路关闭时关闭
	Done() <-chan struct{}
	// Err 关闭原因（正常关闭为 nil）
	Err() error
	Close() error
}

// Kind 链路类型
type Kind string

const (
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

// Options 打开链路所需参数
type Options struct {
	Kind         Kind
	Addr         string // tcp: host:port
	SerialPath   string
	Baud         int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	OnRecv       func(n int) // 每次读到数据时回调字节数，可为空
}

// Open 按 Options 建立底层字节流；返回的 Conn 尚未 Start
func Open(ctx context.Context, opts Options) (*Conn, error) {
	var (
		rwc io.ReadWriteCloser
		err error
	)
	switch opts.Kind {
	case KindTCP, "":
		rwc, err = DialTCP(ctx, opts.Addr, opts.DialTimeout)
	case KindSerial:
		rwc, err = OpenSerial(opts.SerialPath, opts.Baud)
	default:
		return nil, fmt.Errorf("unsupported transport %q", opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	connOpts := []ConnOption{WithWriteTimeout(opts.WriteTimeout)}
	if opts.OnRecv != nil {
		connOpts = append(connOpts, WithRecvHook(opts.OnRecv))
	}
	return NewConn(rwc, connOpts...), nil
}
