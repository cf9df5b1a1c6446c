package buffer

import "encoding/binary"

// Writer 追加式写入器（小端序）
type Writer struct {
	b []byte
}

// NewWriter 创建写入器，可指定初始容量
func NewWriter(capacity int) *Writer { return &Writer{b: make([]byte, 0, capacity)} }

// Bytes 返回已写入内容
func (w *Writer) Bytes() []byte { return w.b }

// Len 已写入字节数
func (w *Writer) Len() int { return len(w.b) }

func (w *Writer) Uint8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) Int8(v int8) *Writer { return w.Uint8(uint8(v)) }

func (w *Writer) Uint16(v uint16) *Writer {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
	return w
}

func (w *Writer) Int16(v int16) *Writer { return w.Uint16(uint16(v)) }

func (w *Writer) Uint32(v uint32) *Writer {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
	return w
}

func (w *Writer) Int32(v int32) *Writer { return w.Uint32(uint32(v)) }

// Write 追加原始字节
func (w *Writer) Write(p []byte) *Writer {
	w.b = append(w.b, p...)
	return w
}

// Zeros 追加 n 个零字节（保留字段）
func (w *Writer) Zeros(n int) *Writer {
	for i := 0; i < n; i++ {
		w.b = append(w.b, 0)
	}
	return w
}

// String 追加 UTF-8 字符串（无终止符）
func (w *Writer) String(s string) *Writer {
	w.b = append(w.b, s...)
	return w
}

// Fixed 追加定长字段：超长截断，不足补零
func (w *Writer) Fixed(p []byte, n int) *Writer {
	if len(p) > n {
		p = p[:n]
	}
	w.b = append(w.b, p...)
	return w.Zeros(n - len(p))
}

// CString 追加定长 NUL 结尾字符串：最多 n-1 字节内容，其余补零
func (w *Writer) CString(s string, n int) *Writer {
	if n <= 0 {
		return w
	}
	p := []byte(s)
	if len(p) > n-1 {
		p = p[:n-1]
	}
	return w.Fixed(p, n)
}
