package frame

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// StreamDecoder 流式解码器：处理半包/粘包，遇到无效首字节逐字节重同步
type StreamDecoder struct {
	buf    []byte
	log    *zap.Logger
	onDrop func(reason string)
}

// Option 解码器选项
type Option func(*StreamDecoder)

// WithLogger 记录重同步日志
func WithLogger(l *zap.Logger) Option {
	return func(d *StreamDecoder) {
		if l != nil {
			d.log = l
		}
	}
}

// WithDropHook 每丢弃一个字节回调一次（reason: bad_kind | zero_length）
func WithDropHook(fn func(reason string)) Option {
	return func(d *StreamDecoder) { d.onDrop = fn }
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(opts ...Option) *StreamDecoder {
	d := &StreamDecoder{log: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Buffered 当前缓存的未解析字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Reset 丢弃缓存（链路重连时调用）
func (d *StreamDecoder) Reset() { d.buf = nil }

// Feed 追加字节并返回所有已完整到达的帧，按到达顺序排列。
// 不完整的尾部保留到下次调用。
func (d *StreamDecoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)
	var out []Frame
	for len(d.buf) >= HeaderLen {
		kind := Kind(d.buf[0])
		if !kind.Valid() {
			d.drop("bad_kind")
			continue
		}
		n := int(binary.LittleEndian.Uint16(d.buf[1:3]))
		if n == 0 {
			d.drop("zero_length")
			continue
		}
		if len(d.buf) < HeaderLen+n {
			break
		}
		payload := make([]byte, n)
		copy(payload, d.buf[HeaderLen:HeaderLen+n])
		out = append(out, Frame{Kind: kind, Payload: payload})
		d.buf = d.buf[HeaderLen+n:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

func (d *StreamDecoder) drop(reason string) {
	d.log.Debug("frame resync, dropping byte",
		zap.String("reason", reason),
		zap.Uint8("byte", d.buf[0]),
		zap.Int("buffered", len(d.buf)))
	d.buf = d.buf[1:]
	if d.onDrop != nil {
		d.onDrop(reason)
	}
}
