package buffer

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrTruncated 读取越过缓冲区末尾
var ErrTruncated = errors.New("buffer truncated")

// Reader 顺序读取游标（小端序）。
// 首次越界后进入错误状态：后续读取均返回零值，Err 返回 ErrTruncated。
type Reader struct {
	b   []byte
	off int
	err error
}

// NewReader 基于 b 创建读取游标（不复制）
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Err 返回首次读取失败的原因
func (r *Reader) Err() error { return r.err }

// Remaining 剩余可读字节数
func (r *Reader) Remaining() int {
	if r.err != nil {
		return 0
	}
	return len(r.b) - r.off
}

// Offset 当前游标位置
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

// Skip 跳过 n 字节（保留字段）
func (r *Reader) Skip(n int) { r.take(n) }

// Bytes 读取 n 字节（返回副本）
func (r *Reader) Bytes(n int) []byte {
	p := r.take(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// Rest 读取剩余全部字节（返回副本，可为空切片）
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	return r.Bytes(len(r.b) - r.off)
}

func (r *Reader) Uint8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

func (r *Reader) Uint16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

func (r *Reader) Uint32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

// Uint16BE 大端读取（CayenneLPP 使用）
func (r *Reader) Uint16BE() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *Reader) Int16BE() int16 { return int16(r.Uint16BE()) }

func (r *Reader) Uint32BE() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

// Int24BE 读取 3 字节大端有符号整数
func (r *Reader) Int24BE() int32 {
	p := r.take(3)
	if p == nil {
		return 0
	}
	v := int32(p[0])<<16 | int32(p[1])<<8 | int32(p[2])
	if v&0x800000 != 0 {
		v -= 0x1000000
	}
	return v
}

// Text 将剩余字节按 UTF-8 解码为字符串
func (r *Reader) Text() string { return DecodeUTF8(r.Rest()) }

// CString 读取 n 字节定长字段，截断到首个 NUL
func (r *Reader) CString(n int) string {
	p := r.take(n)
	if p == nil {
		return ""
	}
	for i, c := range p {
		if c == 0 {
			p = p[:i]
			break
		}
	}
	return DecodeUTF8(p)
}

// DecodeUTF8 宽松解码：丢弃非法 UTF-8 字节
func DecodeUTF8(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	return strings.ToValidUTF8(string(p), "")
}
