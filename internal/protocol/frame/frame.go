package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind 帧方向标记（首字节）
type Kind byte

const (
	KindOutgoing Kind = 0x3C // '<' 主机 -> 设备
	KindIncoming Kind = 0x3E // '>' 设备 -> 主机
)

// HeaderLen 帧头长度：kind(1) + len(2, LE)
const HeaderLen = 3

// MaxPayload 单帧载荷上限（u16 长度字段）
const MaxPayload = 0xFFFF

var (
	// ErrPayloadTooLarge 载荷超过长度字段可表达的范围
	ErrPayloadTooLarge = errors.New("frame payload too large")
	// ErrEmptyPayload 零长度帧会被解码端当作噪声跳过
	ErrEmptyPayload = errors.New("frame payload empty")
)

func (k Kind) Valid() bool { return k == KindOutgoing || k == KindIncoming }

func (k Kind) String() string {
	switch k {
	case KindOutgoing:
		return "outgoing"
	case KindIncoming:
		return "incoming"
	}
	return fmt.Sprintf("kind(0x%02X)", byte(k))
}

// Frame 一个完整的链路帧
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Encode 构造 kind | len(u16 LE) | payload
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	out := make([]byte, HeaderLen+len(payload))
	out[0] = byte(kind)
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(payload)))
	copy(out[HeaderLen:], payload)
	return out, nil
}
