package buffer

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// ToHex 小写十六进制编码
func ToHex(p []byte) string { return hex.EncodeToString(p) }

// FromHex 解析十六进制，允许空白与 0x 前缀
func FromHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Join(strings.Fields(s), "")
	return hex.DecodeString(s)
}

func ToBase64(p []byte) string { return base64.StdEncoding.EncodeToString(p) }

func FromBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(strings.TrimSpace(s)) }

// Hex 以十六进制文本序列化的字节串（JSON/YAML 输出公钥、路径等）
type Hex []byte

func (h Hex) MarshalText() ([]byte, error) { return []byte(ToHex(h)), nil }

func (h *Hex) UnmarshalText(text []byte) error {
	p, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*h = p
	return nil
}

func (h Hex) String() string { return ToHex(h) }
