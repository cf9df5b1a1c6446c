// Package event 将设备上行帧载荷解码为类型化的响应/推送事件。
package event

import "fmt"

// Kind 事件类型。协议事件的取值等于线上码（响应 0–20，推送 0x80–0x8C），
// 连接级合成事件使用 0x100 以上的取值。
type Kind uint16

// 响应
const (
	KindOk             Kind = 0
	KindErr            Kind = 1
	KindContactsStart  Kind = 2
	KindContact        Kind = 3
	KindEndOfContacts  Kind = 4
	KindSelfInfo       Kind = 5
	KindSent           Kind = 6
	KindContactMsgRecv Kind = 7
	KindChannelMsgRecv Kind = 8
	KindCurrTime       Kind = 9
	KindNoMoreMessages Kind = 10
	KindExportContact  Kind = 11
	KindBatteryVoltage Kind = 12
	KindDeviceInfo     Kind = 13
	KindPrivateKey     Kind = 14
	KindDisabled       Kind = 15
	KindChannelInfo    Kind = 18
	KindSignStart      Kind = 19
	KindSignature      Kind = 20
)

// 推送
const (
	KindAdvert            Kind = 0x80
	KindPathUpdated       Kind = 0x81
	KindSendConfirmed     Kind = 0x82
	KindMsgWaiting        Kind = 0x83
	KindRawData           Kind = 0x84
	KindLoginSuccess      Kind = 0x85
	KindLoginFail         Kind = 0x86
	KindStatusResponse    Kind = 0x87
	KindLogRxData         Kind = 0x88
	KindTraceData         Kind = 0x89
	KindNewAdvert         Kind = 0x8A
	KindTelemetryResponse Kind = 0x8B
	KindBinaryResponse    Kind = 0x8C
)

// 连接级事件（非线上码）
const (
	KindConnected    Kind = 0x100
	KindDisconnected Kind = 0x101
	KindTx           Kind = 0x102
)

var kindNames = map[Kind]string{
	KindOk:                "ok",
	KindErr:               "err",
	KindContactsStart:     "contacts_start",
	KindContact:           "contact",
	KindEndOfContacts:     "end_of_contacts",
	KindSelfInfo:          "self_info",
	KindSent:              "sent",
	KindContactMsgRecv:    "contact_msg_recv",
	KindChannelMsgRecv:    "channel_msg_recv",
	KindCurrTime:          "curr_time",
	KindNoMoreMessages:    "no_more_messages",
	KindExportContact:     "export_contact",
	KindBatteryVoltage:    "battery_voltage",
	KindDeviceInfo:        "device_info",
	KindPrivateKey:        "private_key",
	KindDisabled:          "disabled",
	KindChannelInfo:       "channel_info",
	KindSignStart:         "sign_start",
	KindSignature:         "signature",
	KindAdvert:            "advert",
	KindPathUpdated:       "path_updated",
	KindSendConfirmed:     "send_confirmed",
	KindMsgWaiting:        "msg_waiting",
	KindRawData:           "raw_data",
	KindLoginSuccess:      "login_success",
	KindLoginFail:         "login_fail",
	KindStatusResponse:    "status_response",
	KindLogRxData:         "log_rx_data",
	KindTraceData:         "trace_data",
	KindNewAdvert:         "new_advert",
	KindTelemetryResponse: "telemetry_response",
	KindBinaryResponse:    "binary_response",
	KindConnected:         "connected",
	KindDisconnected:      "disconnected",
	KindTx:                "tx",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(0x%X)", uint16(k))
}

// IsPush 是否为设备主动推送
func (k Kind) IsPush() bool { return k >= 0x80 && k <= 0xFF }

// IsResponse 是否为命令响应
func (k Kind) IsResponse() bool { return k < 0x80 }

// Event 所有事件的公共接口
type Event interface {
	Kind() Kind
}

// ErrCode 设备 Err 响应携带的错误码
type ErrCode uint8

const (
	ErrCodeNone           ErrCode = 0 // 响应未携带错误码
	ErrCodeUnsupportedCmd ErrCode = 1
	ErrCodeNotFound       ErrCode = 2
	ErrCodeTableFull      ErrCode = 3
	ErrCodeBadState       ErrCode = 4
	ErrCodeFileIOError    ErrCode = 5
	ErrCodeIllegalArg     ErrCode = 6
)

func (c ErrCode) String() string {
	switch c {
	case ErrCodeNone:
		return "none"
	case ErrCodeUnsupportedCmd:
		return "unsupported_cmd"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeTableFull:
		return "table_full"
	case ErrCodeBadState:
		return "bad_state"
	case ErrCodeFileIOError:
		return "file_io_error"
	case ErrCodeIllegalArg:
		return "illegal_arg"
	}
	return fmt.Sprintf("err(%d)", uint8(c))
}
