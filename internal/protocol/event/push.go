package event

import (
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/lpp"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/packet"
)

type Advert struct {
	PublicKey buffer.Hex `json:"public_key" yaml:"public_key"`
}

type PathUpdated struct {
	PublicKey buffer.Hex `json:"public_key" yaml:"public_key"`
}

type SendConfirmed struct {
	AckCode   uint32 `json:"ack_code" yaml:"ack_code"`
	RoundTrip uint32 `json:"round_trip" yaml:"round_trip"`
}

type MsgWaiting struct{}

// RawData 收到的原始数据；LastSNR 单位 dB（线上值 /4）
type RawData struct {
	LastSNR  float64    `json:"last_snr" yaml:"last_snr"`
	LastRSSI int8       `json:"last_rssi" yaml:"last_rssi"`
	Reserved uint8      `json:"-" yaml:"-"`
	Payload  buffer.Hex `json:"payload" yaml:"payload"`
}

type LoginSuccess struct {
	Reserved     uint8      `json:"-" yaml:"-"`
	PubKeyPrefix buffer.Hex `json:"pub_key_prefix" yaml:"pub_key_prefix"`
}

type LoginFail struct {
	Reserved     uint8      `json:"-" yaml:"-"`
	PubKeyPrefix buffer.Hex `json:"pub_key_prefix" yaml:"pub_key_prefix"`
}

type StatusResponse struct {
	Reserved     uint8      `json:"-" yaml:"-"`
	PubKeyPrefix buffer.Hex `json:"pub_key_prefix" yaml:"pub_key_prefix"`
	StatusData   buffer.Hex `json:"status_data" yaml:"status_data"`
}

// LogRxData 设备收包日志，Raw 为空中网状路由包
type LogRxData struct {
	LastSNR  float64    `json:"last_snr" yaml:"last_snr"`
	LastRSSI int8       `json:"last_rssi" yaml:"last_rssi"`
	Raw      buffer.Hex `json:"raw" yaml:"raw"`
}

// Packet 解析 Raw 为网状路由包
func (e *LogRxData) Packet() (*packet.Packet, error) { return packet.Parse(e.Raw) }

type TraceData struct {
	Reserved   uint8      `json:"-" yaml:"-"`
	PathLen    uint8      `json:"path_len" yaml:"path_len"`
	Flags      uint8      `json:"flags" yaml:"flags"`
	Tag        uint32     `json:"tag" yaml:"tag"`
	AuthCode   uint32     `json:"auth_code" yaml:"auth_code"`
	PathHashes buffer.Hex `json:"path_hashes" yaml:"path_hashes"`
	PathSNRs   buffer.Hex `json:"path_snrs" yaml:"path_snrs"`
	LastSNR    float64    `json:"last_snr" yaml:"last_snr"`
}

// SNRs 将逐跳 SNR 原始字节（int8，/4）转换为 dB
func (e *TraceData) SNRs() []float64 {
	out := make([]float64, len(e.PathSNRs))
	for i, b := range e.PathSNRs {
		out[i] = float64(int8(b)) / 4
	}
	return out
}

// NewAdvert 新节点广播，布局与 Contact 相同
type NewAdvert struct {
	Contact
}

type TelemetryResponse struct {
	Reserved      uint8      `json:"-" yaml:"-"`
	PubKeyPrefix  buffer.Hex `json:"pub_key_prefix" yaml:"pub_key_prefix"`
	LPPSensorData buffer.Hex `json:"lpp_sensor_data" yaml:"lpp_sensor_data"`
}

// Records 解码 CayenneLPP 遥测数据
func (e *TelemetryResponse) Records() []lpp.Record { return lpp.Decode(e.LPPSensorData) }

type BinaryResponse struct {
	Reserved     uint8      `json:"-" yaml:"-"`
	Tag          uint32     `json:"tag" yaml:"tag"`
	ResponseData buffer.Hex `json:"response_data" yaml:"response_data"`
}

// Connected 连接建立（启动查询完成后）
type Connected struct {
	DeviceInfo *DeviceInfo `json:"device_info,omitempty" yaml:"device_info,omitempty"`
}

// Disconnected 传输层关闭
type Disconnected struct {
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Tx 每个发出的命令载荷
type Tx struct {
	Payload buffer.Hex `json:"payload" yaml:"payload"`
}

func (Advert) Kind() Kind            { return KindAdvert }
func (PathUpdated) Kind() Kind       { return KindPathUpdated }
func (SendConfirmed) Kind() Kind     { return KindSendConfirmed }
func (MsgWaiting) Kind() Kind        { return KindMsgWaiting }
func (RawData) Kind() Kind           { return KindRawData }
func (LoginSuccess) Kind() Kind      { return KindLoginSuccess }
func (LoginFail) Kind() Kind         { return KindLoginFail }
func (StatusResponse) Kind() Kind    { return KindStatusResponse }
func (LogRxData) Kind() Kind         { return KindLogRxData }
func (TraceData) Kind() Kind         { return KindTraceData }
func (NewAdvert) Kind() Kind         { return KindNewAdvert }
func (TelemetryResponse) Kind() Kind { return KindTelemetryResponse }
func (BinaryResponse) Kind() Kind    { return KindBinaryResponse }
func (Connected) Kind() Kind         { return KindConnected }
func (Disconnected) Kind() Kind      { return KindDisconnected }
func (Tx) Kind() Kind                { return KindTx }
