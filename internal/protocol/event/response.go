package event

import (
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/advert"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

type Ok struct{}

// Err 设备拒绝命令；Code 为 ErrCodeNone 表示响应未携带错误码
type Err struct {
	Code ErrCode `json:"err_code" yaml:"err_code"`
}

type ContactsStart struct {
	Count uint32 `json:"count" yaml:"count"`
}

// Contact 联系人记录（NewAdvert 推送复用同一布局）
type Contact struct {
	PublicKey  buffer.Hex  `json:"public_key" yaml:"public_key"`
	Type       advert.Type `json:"type" yaml:"type"`
	Flags      uint8       `json:"flags" yaml:"flags"`
	OutPathLen int8        `json:"out_path_len" yaml:"out_path_len"`
	OutPath    buffer.Hex  `json:"out_path" yaml:"out_path"`
	AdvName    string      `json:"adv_name" yaml:"adv_name"`
	LastAdvert uint32      `json:"last_advert" yaml:"last_advert"`
	AdvLat     int32       `json:"adv_lat" yaml:"adv_lat"`
	AdvLon     int32       `json:"adv_lon" yaml:"adv_lon"`
	LastMod    uint32      `json:"last_mod" yaml:"last_mod"`
}

// Path 返回有效出站路径；OutPathLen<0 表示未知路径（泛洪）
func (c *Contact) Path() []byte {
	if c.OutPathLen < 0 || int(c.OutPathLen) > len(c.OutPath) {
		return nil
	}
	return c.OutPath[:c.OutPathLen]
}

type EndOfContacts struct {
	MostRecentLastMod uint32 `json:"most_recent_lastmod" yaml:"most_recent_lastmod"`
}

type SelfInfo struct {
	Type              advert.Type `json:"type" yaml:"type"`
	TxPower           uint8       `json:"tx_power" yaml:"tx_power"`
	MaxTxPower        uint8       `json:"max_tx_power" yaml:"max_tx_power"`
	PublicKey         buffer.Hex  `json:"public_key" yaml:"public_key"`
	AdvLat            int32       `json:"adv_lat" yaml:"adv_lat"`
	AdvLon            int32       `json:"adv_lon" yaml:"adv_lon"`
	Reserved          buffer.Hex  `json:"-" yaml:"-"`
	ManualAddContacts uint8       `json:"manual_add_contacts" yaml:"manual_add_contacts"`
	RadioFreq         uint32      `json:"radio_freq" yaml:"radio_freq"`
	RadioBw           uint32      `json:"radio_bw" yaml:"radio_bw"`
	RadioSf           uint8       `json:"radio_sf" yaml:"radio_sf"`
	RadioCr           uint8       `json:"radio_cr" yaml:"radio_cr"`
	Name              string      `json:"name" yaml:"name"`
}

type Sent struct {
	Result         int8   `json:"result" yaml:"result"`
	ExpectedAckCRC uint32 `json:"expected_ack_crc" yaml:"expected_ack_crc"`
	EstTimeout     uint32 `json:"est_timeout" yaml:"est_timeout"`
}

type ContactMsgRecv struct {
	PubKeyPrefix    buffer.Hex `json:"pub_key_prefix" yaml:"pub_key_prefix"`
	PathLen         uint8      `json:"path_len" yaml:"path_len"`
	TxtType         uint8      `json:"txt_type" yaml:"txt_type"`
	SenderTimestamp uint32     `json:"sender_timestamp" yaml:"sender_timestamp"`
	Text            string     `json:"text" yaml:"text"`
}

type ChannelMsgRecv struct {
	ChannelIdx      int8   `json:"channel_idx" yaml:"channel_idx"`
	PathLen         uint8  `json:"path_len" yaml:"path_len"`
	TxtType         uint8  `json:"txt_type" yaml:"txt_type"`
	SenderTimestamp uint32 `json:"sender_timestamp" yaml:"sender_timestamp"`
	Text            string `json:"text" yaml:"text"`
}

type CurrTime struct {
	EpochSecs uint32 `json:"epoch_secs" yaml:"epoch_secs"`
}

type NoMoreMessages struct{}

type ExportContact struct {
	AdvertPacket buffer.Hex `json:"advert_packet" yaml:"advert_packet"`
}

type BatteryVoltage struct {
	MilliVolts uint16 `json:"battery_millivolts" yaml:"battery_millivolts"`
}

type DeviceInfo struct {
	FirmwareVer       int8       `json:"firmware_ver" yaml:"firmware_ver"`
	Reserved          buffer.Hex `json:"-" yaml:"-"`
	FirmwareBuildDate string     `json:"firmware_build_date" yaml:"firmware_build_date"`
	ManufacturerModel string     `json:"manufacturer_model" yaml:"manufacturer_model"`
}

type PrivateKey struct {
	PrivateKey buffer.Hex `json:"private_key" yaml:"private_key"`
}

type Disabled struct{}

// ChannelInfo 频道配置；仅当名称后恰好剩余 16 字节时才会产生
type ChannelInfo struct {
	ChannelIdx uint8      `json:"channel_idx" yaml:"channel_idx"`
	Name       string     `json:"name" yaml:"name"`
	Secret     buffer.Hex `json:"secret" yaml:"secret"`
}

type SignStart struct {
	Reserved       uint8  `json:"-" yaml:"-"`
	MaxSignDataLen uint32 `json:"max_sign_data_len" yaml:"max_sign_data_len"`
}

type Signature struct {
	Signature buffer.Hex `json:"signature" yaml:"signature"`
}

func (Ok) Kind() Kind              { return KindOk }
func (Err) Kind() Kind             { return KindErr }
func (ContactsStart) Kind() Kind   { return KindContactsStart }
func (Contact) Kind() Kind         { return KindContact }
func (EndOfContacts) Kind() Kind   { return KindEndOfContacts }
func (SelfInfo) Kind() Kind        { return KindSelfInfo }
func (Sent) Kind() Kind            { return KindSent }
func (ContactMsgRecv) Kind() Kind  { return KindContactMsgRecv }
func (ChannelMsgRecv) Kind() Kind  { return KindChannelMsgRecv }
func (CurrTime) Kind() Kind        { return KindCurrTime }
func (NoMoreMessages) Kind() Kind  { return KindNoMoreMessages }
func (ExportContact) Kind() Kind   { return KindExportContact }
func (BatteryVoltage) Kind() Kind  { return KindBatteryVoltage }
func (DeviceInfo) Kind() Kind      { return KindDeviceInfo }
func (PrivateKey) Kind() Kind      { return KindPrivateKey }
func (Disabled) Kind() Kind        { return KindDisabled }
func (ChannelInfo) Kind() Kind     { return KindChannelInfo }
func (SignStart) Kind() Kind       { return KindSignStart }
func (Signature) Kind() Kind       { return KindSignature }
