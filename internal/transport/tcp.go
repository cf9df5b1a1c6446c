package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// DialTCP 连接设备的 TCP 伴侣端口（如 WiFi 固件的 5000 端口）
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}
