// Package command 构造发往设备的命令载荷（未加帧头）。
package command

import "fmt"

// SupportedCompanionProtocolVersion DeviceQuery 声明的协议版本
const SupportedCompanionProtocolVersion = 1

// Code 命令码
type Code uint8

const (
	AppStart          Code = 1
	SendTxtMsg        Code = 2
	SendChannelTxtMsg Code = 3
	GetContacts       Code = 4
	GetDeviceTime     Code = 5
	SetDeviceTime     Code = 6
	SendSelfAdvert    Code = 7
	SetAdvertName     Code = 8
	AddUpdateContact  Code = 9
	SyncNextMessage   Code = 10
	SetRadioParams    Code = 11
	SetTxPower        Code = 12
	ResetPath         Code = 13
	SetAdvertLatLon   Code = 14
	RemoveContact     Code = 15
	ShareContact      Code = 16
	ExportContact     Code = 17
	ImportContact     Code = 18
	Reboot            Code = 19
	GetBatteryVoltage Code = 20
	DeviceQuery       Code = 22
	ExportPrivateKey  Code = 23
	ImportPrivateKey  Code = 24
	SendRawData       Code = 25
	SendLogin         Code = 26
	SendStatusReq     Code = 27
	GetChannel        Code = 31
	SetChannel        Code = 32
	SignStart         Code = 33
	SignData          Code = 34
	SignFinish        Code = 35
	SendTracePath     Code = 36
	SetOtherParams    Code = 38
	SendTelemetryReq  Code = 39
	SendBinaryReq     Code = 50
)

var codeNames = map[Code]string{
	AppStart:          "app_start",
	SendTxtMsg:        "send_txt_msg",
	SendChannelTxtMsg: "send_channel_txt_msg",
	GetContacts:       "get_contacts",
	GetDeviceTime:     "get_device_time",
	SetDeviceTime:     "set_device_time",
	SendSelfAdvert:    "send_self_advert",
	SetAdvertName:     "set_advert_name",
	AddUpdateContact:  "add_update_contact",
	SyncNextMessage:   "sync_next_message",
	SetRadioParams:    "set_radio_params",
	SetTxPower:        "set_tx_power",
	ResetPath:         "reset_path",
	SetAdvertLatLon:   "set_advert_lat_lon",
	RemoveContact:     "remove_contact",
	ShareContact:      "share_contact",
	ExportContact:     "export_contact",
	ImportContact:     "import_contact",
	Reboot:            "reboot",
	GetBatteryVoltage: "get_battery_voltage",
	DeviceQuery:       "device_query",
	ExportPrivateKey:  "export_private_key",
	ImportPrivateKey:  "import_private_key",
	SendRawData:       "send_raw_data",
	SendLogin:         "send_login",
	SendStatusReq:     "send_status_req",
	GetChannel:        "get_channel",
	SetChannel:        "set_channel",
	SignStart:         "sign_start",
	SignData:          "sign_data",
	SignFinish:        "sign_finish",
	SendTracePath:     "send_trace_path",
	SetOtherParams:    "set_other_params",
	SendTelemetryReq:  "send_telemetry_req",
	SendBinaryReq:     "send_binary_req",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("cmd(%d)", uint8(c))
}

// SelfAdvertType 自身广播方式
type SelfAdvertType uint8

const (
	SelfAdvertZeroHop SelfAdvertType = 0
	SelfAdvertFlood   SelfAdvertType = 1
)

// TxtType 文本消息类型
type TxtType uint8

const (
	TxtPlain       TxtType = 0
	TxtCliData     TxtType = 1
	TxtSignedPlain TxtType = 2
)

// BinaryRequestType SendBinaryReq 的请求码（请求字节的首字节）
type BinaryRequestType uint8

const (
	BinaryGetTelemetryData BinaryRequestType = 0x03
	BinaryGetAvgMinMax     BinaryRequestType = 0x04
	BinaryGetAccessList    BinaryRequestType = 0x05
	BinaryGetNeighbours    BinaryRequestType = 0x06
)
