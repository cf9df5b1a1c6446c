// Package advert 解析节点广播（Advertisement）并校验其签名。
package advert

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

const (
	PublicKeySize = 32
	SignatureSize = 64
)

// Type 广播节点类型（flags 低 4 位）
type Type uint8

const (
	TypeNone     Type = 0
	TypeChat     Type = 1
	TypeRepeater Type = 2
	TypeRoom     Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeChat:
		return "CHAT"
	case TypeRepeater:
		return "REPEATER"
	case TypeRoom:
		return "ROOM"
	}
	return fmt.Sprintf("TYPE(%d)", uint8(t))
}

// app_data flags 位
const (
	FlagLatLon      uint8 = 0x10
	FlagBattery     uint8 = 0x20 // 保留，无字段解码
	FlagTemperature uint8 = 0x40 // 保留，无字段解码
	FlagName        uint8 = 0x80
)

// ErrCapabilityUnavailable 未注入签名校验能力
var ErrCapabilityUnavailable = errors.New("signature verification capability unavailable")

// Advert 节点广播原始字段
type Advert struct {
	PublicKey []byte
	Timestamp uint32
	Signature []byte
	AppData   []byte
}

// AppData 由 app_data 派生的解析结果。未出现的可选字段为 nil。
type AppData struct {
	Flags uint8   `json:"flags" yaml:"flags"`
	Type  Type    `json:"type" yaml:"type"`
	Lat   *int32  `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon   *int32  `json:"lon,omitempty" yaml:"lon,omitempty"`
	Name  *string `json:"name,omitempty" yaml:"name,omitempty"`
}

// LatLonDegrees 将 1e-6 度的定点坐标转换为度
func (a AppData) LatLonDegrees() (lat, lon float64, ok bool) {
	if a.Lat == nil || a.Lon == nil {
		return 0, 0, false
	}
	return float64(*a.Lat) / 1e6, float64(*a.Lon) / 1e6, true
}

// Parse 解析 public_key(32) | timestamp(u32 LE) | signature(64) | app_data(rest)
func Parse(b []byte) (*Advert, error) {
	r := buffer.NewReader(b)
	a := &Advert{
		PublicKey: r.Bytes(PublicKeySize),
		Timestamp: r.Uint32(),
		Signature: r.Bytes(SignatureSize),
		AppData:   r.Rest(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse advert: %w", err)
	}
	return a, nil
}

// Type 返回广播类型；app_data 为空时为 TypeNone
func (a *Advert) Type() Type {
	if len(a.AppData) == 0 {
		return TypeNone
	}
	return Type(a.AppData[0] & 0x0F)
}

// ParseAppData 按 flags 解析可选字段：先经纬度（0x10），再名称（0x80，剩余全部字节）
func (a *Advert) ParseAppData() (AppData, error) {
	return ParseAppData(a.AppData)
}

// ParseAppData 解析独立的 app_data 字节
func ParseAppData(b []byte) (AppData, error) {
	r := buffer.NewReader(b)
	flags := r.Uint8()
	out := AppData{Flags: flags, Type: Type(flags & 0x0F)}
	if flags&FlagLatLon != 0 {
		lat, lon := r.Int32(), r.Int32()
		out.Lat, out.Lon = &lat, &lon
	}
	if flags&FlagName != 0 {
		name := r.Text()
		out.Name = &name
	}
	if err := r.Err(); err != nil {
		return AppData{}, fmt.Errorf("parse advert app data: %w", err)
	}
	return out, nil
}

// SignedMessage 返回被签名的字节序列：public_key || timestamp(LE) || app_data
func (a *Advert) SignedMessage() []byte {
	w := buffer.NewWriter(PublicKeySize + 4 + len(a.AppData))
	w.Write(a.PublicKey).Uint32(a.Timestamp).Write(a.AppData)
	return w.Bytes()
}

// Verify 使用注入的 Verifier 校验签名；v 为 nil 时返回 ErrCapabilityUnavailable
func (a *Advert) Verify(v Verifier) (bool, error) {
	if v == nil {
		return false, ErrCapabilityUnavailable
	}
	return v.Verify(a.SignedMessage(), a.Signature, a.PublicKey), nil
}
