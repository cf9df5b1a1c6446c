// Package packet 解析/构造空中网状路由包（mesh packet）。
package packet

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/advert"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

// header 位布局
const (
	routeMask    = 0x03
	typeShift    = 2
	typeMask     = 0x0F
	versionShift = 6
	versionMask  = 0x03

	// HeaderDoNotRetransmit 不转发标记，覆盖原有全部头字段
	HeaderDoNotRetransmit byte = 0xFF

	MaxPathLen = 64
)

// ErrPathTooLong 路径超过 MaxPathLen
var ErrPathTooLong = errors.New("packet path too long")

// RouteType 路由类型（0x00/0x03 保留）
type RouteType uint8

const (
	RouteFlood  RouteType = 0x01
	RouteDirect RouteType = 0x02
)

// Name 返回路由类型名称，保留值返回空串
func (r RouteType) Name() string {
	switch r {
	case RouteFlood:
		return "FLOOD"
	case RouteDirect:
		return "DIRECT"
	}
	return ""
}

// PayloadType 载荷类型
type PayloadType uint8

const (
	PayloadReq       PayloadType = 0x00
	PayloadResponse  PayloadType = 0x01
	PayloadTxtMsg    PayloadType = 0x02
	PayloadAck       PayloadType = 0x03
	PayloadAdvert    PayloadType = 0x04
	PayloadGrpTxt    PayloadType = 0x05
	PayloadGrpData   PayloadType = 0x06
	PayloadAnonReq   PayloadType = 0x07
	PayloadPath      PayloadType = 0x08
	PayloadTrace     PayloadType = 0x09
	PayloadRawCustom PayloadType = 0x0F
)

var payloadNames = map[PayloadType]string{
	PayloadReq:       "REQ",
	PayloadResponse:  "RESPONSE",
	PayloadTxtMsg:    "TXT_MSG",
	PayloadAck:       "ACK",
	PayloadAdvert:    "ADVERT",
	PayloadGrpTxt:    "GRP_TXT",
	PayloadGrpData:   "GRP_DATA",
	PayloadAnonReq:   "ANON_REQ",
	PayloadPath:      "PATH",
	PayloadTrace:     "TRACE",
	PayloadRawCustom: "RAW_CUSTOM",
}

// Name 返回载荷类型名称，未定义的类型返回空串（数值保留在类型本身）
func (p PayloadType) Name() string { return payloadNames[p] }

// Packet 网状路由包
type Packet struct {
	Header  byte
	Path    []byte
	Payload []byte
}

// Parse 解析 header(1) | path_len(int8) | path | payload(rest)
func Parse(b []byte) (*Packet, error) {
	r := buffer.NewReader(b)
	header := r.Uint8()
	pathLen := int(r.Int8())
	if r.Err() == nil && pathLen < 0 {
		return nil, fmt.Errorf("parse packet: negative path length %d: %w", pathLen, buffer.ErrTruncated)
	}
	p := &Packet{
		Header:  header,
		Path:    r.Bytes(pathLen),
		Payload: r.Rest(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse packet: %w", err)
	}
	return p, nil
}

// Encode 序列化为线上格式
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Path) > MaxPathLen {
		return nil, fmt.Errorf("%w: %d", ErrPathTooLong, len(p.Path))
	}
	w := buffer.NewWriter(2 + len(p.Path) + len(p.Payload))
	w.Uint8(p.Header).Int8(int8(len(p.Path))).Write(p.Path).Write(p.Payload)
	return w.Bytes(), nil
}

// MakeHeader 按位布局组装 header
func MakeHeader(route RouteType, typ PayloadType, version uint8) byte {
	return byte(route)&routeMask |
		(byte(typ)&typeMask)<<typeShift |
		(version&versionMask)<<versionShift
}

// RouteType 调用方应先检查 IsDoNotRetransmit
func (p *Packet) RouteType() RouteType { return RouteType(p.Header & routeMask) }

func (p *Packet) PayloadType() PayloadType {
	return PayloadType((p.Header >> typeShift) & typeMask)
}

func (p *Packet) Version() uint8 { return (p.Header >> versionShift) & versionMask }

func (p *Packet) IsFlood() bool  { return p.RouteType() == RouteFlood }
func (p *Packet) IsDirect() bool { return p.RouteType() == RouteDirect }

// MarkDoNotRetransmit 将 header 置为 0xFF（不可逆，原有头字段丢失）
func (p *Packet) MarkDoNotRetransmit() { p.Header = HeaderDoNotRetransmit }

func (p *Packet) IsDoNotRetransmit() bool { return p.Header == HeaderDoNotRetransmit }

// Addressed PATH / REQ / RESPONSE / TXT_MSG 载荷：1 字节目的/源哈希
type Addressed struct {
	Dest      uint8  `json:"dest" yaml:"dest"`
	Src       uint8  `json:"src" yaml:"src"`
	Encrypted []byte `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// Ack ACK 载荷
type Ack struct {
	Code []byte `json:"ack_code" yaml:"ack_code"`
}

// AnonReq ANON_REQ 载荷
type AnonReq struct {
	Dest         uint8  `json:"dest" yaml:"dest"`
	SrcPublicKey []byte `json:"src_public_key" yaml:"src_public_key"`
}

// AdvertBody ADVERT 载荷
type AdvertBody struct {
	Advert  *advert.Advert `json:"-" yaml:"-"`
	AppData advert.AppData `json:"app_data" yaml:"app_data"`
}

// DecodePayload 按载荷类型解析结构化字段。
// 返回 *Addressed | *Ack | *AnonReq | *AdvertBody；其他类型返回 (nil, nil)。
func (p *Packet) DecodePayload() (any, error) {
	r := buffer.NewReader(p.Payload)
	var out any
	switch p.PayloadType() {
	case PayloadPath, PayloadResponse, PayloadTxtMsg:
		out = &Addressed{Dest: r.Uint8(), Src: r.Uint8()}
	case PayloadReq:
		out = &Addressed{Dest: r.Uint8(), Src: r.Uint8(), Encrypted: r.Rest()}
	case PayloadAck:
		out = &Ack{Code: r.Rest()}
	case PayloadAnonReq:
		out = &AnonReq{Dest: r.Uint8(), SrcPublicKey: r.Bytes(advert.PublicKeySize)}
	case PayloadAdvert:
		a, err := advert.Parse(p.Payload)
		if err != nil {
			return nil, err
		}
		app, err := a.ParseAppData()
		if err != nil {
			return nil, err
		}
		return &AdvertBody{Advert: a, AppData: app}, nil
	default:
		return nil, nil
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.PayloadType().Name(), err)
	}
	return out, nil
}
