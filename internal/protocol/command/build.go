package command

import (
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

// 定长字段宽度
const (
	PublicKeySize     = 32
	PubKeyPrefixSize  = 6
	OutPathSize       = 64
	AdvertNameSize    = 32
	ChannelNameSize   = 32
	DefaultAppVersion = 1
)

func newCmd(code Code, capacity int) *buffer.Writer {
	return buffer.NewWriter(1 + capacity).Uint8(uint8(code))
}

// BuildAppStart appVer(1) | reserved(6) | appName
func BuildAppStart(appVersion uint8, appName string) []byte {
	return newCmd(AppStart, 7+len(appName)).Uint8(appVersion).Zeros(6).String(appName).Bytes()
}

// BuildSendTxtMsg txtType | attempt | ts(u32) | pubKeyPrefix(6) | text
func BuildSendTxtMsg(txtType TxtType, attempt uint8, senderTimestamp uint32, pubKeyPrefix []byte, text string) []byte {
	return newCmd(SendTxtMsg, 12+len(text)).
		Uint8(uint8(txtType)).
		Uint8(attempt).
		Uint32(senderTimestamp).
		Fixed(pubKeyPrefix, PubKeyPrefixSize).
		String(text).
		Bytes()
}

// BuildSendChannelTxtMsg txtType | channelIdx | ts(u32) | text
func BuildSendChannelTxtMsg(txtType TxtType, channelIdx uint8, senderTimestamp uint32, text string) []byte {
	return newCmd(SendChannelTxtMsg, 6+len(text)).
		Uint8(uint8(txtType)).
		Uint8(channelIdx).
		Uint32(senderTimestamp).
		String(text).
		Bytes()
}

// BuildGetContacts since 为 nil 时不携带增量时间戳
func BuildGetContacts(since *uint32) []byte {
	w := newCmd(GetContacts, 4)
	if since != nil {
		w.Uint32(*since)
	}
	return w.Bytes()
}

func BuildGetDeviceTime() []byte { return []byte{byte(GetDeviceTime)} }

func BuildSetDeviceTime(epochSecs uint32) []byte {
	return newCmd(SetDeviceTime, 4).Uint32(epochSecs).Bytes()
}

func BuildSendSelfAdvert(t SelfAdvertType) []byte {
	return newCmd(SendSelfAdvert, 1).Uint8(uint8(t)).Bytes()
}

func BuildSetAdvertName(name string) []byte {
	return newCmd(SetAdvertName, len(name)).String(name).Bytes()
}

// Contact AddUpdateContact 的字段
type Contact struct {
	PublicKey  []byte
	Type       uint8
	Flags      uint8
	OutPathLen int8
	OutPath    []byte
	AdvName    string
	LastAdvert uint32
	AdvLat     int32
	AdvLon     int32
}

// BuildAddUpdateContact pubKey(32) | type | flags | outPathLen | outPath(64) | name(32) | lastAdvert | lat | lon
func BuildAddUpdateContact(c Contact) []byte {
	return newCmd(AddUpdateContact, 147).
		Fixed(c.PublicKey, PublicKeySize).
		Uint8(c.Type).
		Uint8(c.Flags).
		Int8(c.OutPathLen).
		Fixed(c.OutPath, OutPathSize).
		CString(c.AdvName, AdvertNameSize).
		Uint32(c.LastAdvert).
		Int32(c.AdvLat).
		Int32(c.AdvLon).
		Bytes()
}

func BuildSyncNextMessage() []byte { return []byte{byte(SyncNextMessage)} }

// BuildSetRadioParams freq(u32, kHz) | bw(u32, Hz) | sf | cr
func BuildSetRadioParams(freq, bw uint32, sf, cr uint8) []byte {
	return newCmd(SetRadioParams, 10).Uint32(freq).Uint32(bw).Uint8(sf).Uint8(cr).Bytes()
}

func BuildSetTxPower(dbm uint8) []byte { return newCmd(SetTxPower, 1).Uint8(dbm).Bytes() }

func BuildResetPath(publicKey []byte) []byte { return withPublicKey(ResetPath, publicKey) }

// BuildSetAdvertLatLon 坐标单位 1e-6 度
func BuildSetAdvertLatLon(lat, lon int32) []byte {
	return newCmd(SetAdvertLatLon, 8).Int32(lat).Int32(lon).Bytes()
}

func BuildRemoveContact(publicKey []byte) []byte { return withPublicKey(RemoveContact, publicKey) }

func BuildShareContact(publicKey []byte) []byte { return withPublicKey(ShareContact, publicKey) }

// BuildExportContact publicKey 为空时导出自身
func BuildExportContact(publicKey []byte) []byte {
	if len(publicKey) == 0 {
		return []byte{byte(ExportContact)}
	}
	return withPublicKey(ExportContact, publicKey)
}

func BuildImportContact(advertPacket []byte) []byte {
	return newCmd(ImportContact, len(advertPacket)).Write(advertPacket).Bytes()
}

func BuildReboot() []byte { return newCmd(Reboot, 6).String("reboot").Bytes() }

func BuildGetBatteryVoltage() []byte { return []byte{byte(GetBatteryVoltage)} }

func BuildDeviceQuery(appTargetVer uint8) []byte {
	return newCmd(DeviceQuery, 1).Uint8(appTargetVer).Bytes()
}

func BuildExportPrivateKey() []byte { return []byte{byte(ExportPrivateKey)} }

func BuildImportPrivateKey(privateKey []byte) []byte {
	return newCmd(ImportPrivateKey, len(privateKey)).Write(privateKey).Bytes()
}

// BuildSendRawData pathLen | path | data
func BuildSendRawData(path, data []byte) []byte {
	return newCmd(SendRawData, 1+len(path)+len(data)).
		Uint8(uint8(len(path))).
		Write(path).
		Write(data).
		Bytes()
}

// BuildSendLogin pubKey(32) | password
func BuildSendLogin(publicKey []byte, password string) []byte {
	return newCmd(SendLogin, PublicKeySize+len(password)).
		Fixed(publicKey, PublicKeySize).
		String(password).
		Bytes()
}

func BuildSendStatusReq(publicKey []byte) []byte { return withPublicKey(SendStatusReq, publicKey) }

func BuildGetChannel(idx uint8) []byte { return newCmd(GetChannel, 1).Uint8(idx).Bytes() }

// BuildSetChannel idx | name(32) | secret
func BuildSetChannel(idx uint8, name string, secret []byte) []byte {
	return newCmd(SetChannel, 1+ChannelNameSize+len(secret)).
		Uint8(idx).
		CString(name, ChannelNameSize).
		Write(secret).
		Bytes()
}

func BuildSignStart() []byte { return []byte{byte(SignStart)} }

func BuildSignData(data []byte) []byte {
	return newCmd(SignData, len(data)).Write(data).Bytes()
}

func BuildSignFinish() []byte { return []byte{byte(SignFinish)} }

// BuildSendTracePath tag(u32) | auth(u32) | flags(0) | path
func BuildSendTracePath(tag, auth uint32, path []byte) []byte {
	return newCmd(SendTracePath, 9+len(path)).
		Uint32(tag).
		Uint32(auth).
		Uint8(0).
		Write(path).
		Bytes()
}

func BuildSetOtherParams(manualAddContacts bool) []byte {
	var v uint8
	if manualAddContacts {
		v = 1
	}
	return newCmd(SetOtherParams, 1).Uint8(v).Bytes()
}

// BuildSendTelemetryReq reserved(3) | pubKey(32)
func BuildSendTelemetryReq(publicKey []byte) []byte {
	return newCmd(SendTelemetryReq, 3+PublicKeySize).Zeros(3).Fixed(publicKey, PublicKeySize).Bytes()
}

// BuildSendBinaryReq pubKey(32) | request（首字节为 BinaryRequestType）
func BuildSendBinaryReq(publicKey []byte, request []byte) []byte {
	return newCmd(SendBinaryReq, PublicKeySize+len(request)).
		Fixed(publicKey, PublicKeySize).
		Write(request).
		Bytes()
}

func withPublicKey(code Code, publicKey []byte) []byte {
	return newCmd(code, PublicKeySize).Fixed(publicKey, PublicKeySize).Bytes()
}
