package companion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

// simple 发送只以 Ok 完成的命令
func (c *Client) simple(ctx context.Context, cmd command.Code, payload []byte) error {
	_, err := c.call(ctx, cmd, payload, event.KindOk)
	return err
}

// ---------------- 设备与自身 ----------------

// AppStart 声明应用身份，返回设备自身信息
func (c *Client) AppStart(ctx context.Context) (*event.SelfInfo, error) {
	ev, err := c.call(ctx, command.AppStart,
		command.BuildAppStart(command.DefaultAppVersion, c.appName), event.KindSelfInfo)
	if err != nil {
		return nil, err
	}
	info, err := expect[*event.SelfInfo](ev)
	if err != nil {
		return nil, err
	}
	c.infoMu.Lock()
	c.selfInfo = info
	c.infoMu.Unlock()
	return info, nil
}

// DeviceQuery 查询固件信息
func (c *Client) DeviceQuery(ctx context.Context, appTargetVer uint8) (*event.DeviceInfo, error) {
	ev, err := c.call(ctx, command.DeviceQuery, command.BuildDeviceQuery(appTargetVer), event.KindDeviceInfo)
	if err != nil {
		return nil, err
	}
	info, err := expect[*event.DeviceInfo](ev)
	if err != nil {
		return nil, err
	}
	c.infoMu.Lock()
	c.deviceInfo = info
	c.infoMu.Unlock()
	return info, nil
}

func (c *Client) GetDeviceTime(ctx context.Context) (time.Time, error) {
	ev, err := c.call(ctx, command.GetDeviceTime, command.BuildGetDeviceTime(), event.KindCurrTime)
	if err != nil {
		return time.Time{}, err
	}
	t, err := expect[*event.CurrTime](ev)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(t.EpochSecs), 0), nil
}

// SetDeviceTime 设置设备时钟；零值表示使用本地时钟
func (c *Client) SetDeviceTime(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		t = c.now()
	}
	return c.simple(ctx, command.SetDeviceTime, command.BuildSetDeviceTime(uint32(t.Unix())))
}

// GetBatteryVoltage 电池电压（mV）
func (c *Client) GetBatteryVoltage(ctx context.Context) (uint16, error) {
	ev, err := c.call(ctx, command.GetBatteryVoltage, command.BuildGetBatteryVoltage(), event.KindBatteryVoltage)
	if err != nil {
		return 0, err
	}
	v, err := expect[*event.BatteryVoltage](ev)
	if err != nil {
		return 0, err
	}
	return v.MilliVolts, nil
}

func (c *Client) SendSelfAdvert(ctx context.Context, t command.SelfAdvertType) error {
	return c.simple(ctx, command.SendSelfAdvert, command.BuildSendSelfAdvert(t))
}

func (c *Client) SetAdvertName(ctx context.Context, name string) error {
	return c.simple(ctx, command.SetAdvertName, command.BuildSetAdvertName(name))
}

// SetAdvertLatLon 坐标为度 × 1e6
func (c *Client) SetAdvertLatLon(ctx context.Context, lat, lon int32) error {
	return c.simple(ctx, command.SetAdvertLatLon, command.BuildSetAdvertLatLon(lat, lon))
}

func (c *Client) SetTxPower(ctx context.Context, dbm uint8) error {
	return c.simple(ctx, command.SetTxPower, command.BuildSetTxPower(dbm))
}

// SetRadioParams freq 单位 kHz，bw 单位 Hz
func (c *Client) SetRadioParams(ctx context.Context, freq, bw uint32, sf, cr uint8) error {
	return c.simple(ctx, command.SetRadioParams, command.BuildSetRadioParams(freq, bw, sf, cr))
}

func (c *Client) SetOtherParams(ctx context.Context, manualAddContacts bool) error {
	return c.simple(ctx, command.SetOtherParams, command.BuildSetOtherParams(manualAddContacts))
}

func (c *Client) Reboot(ctx context.Context) error {
	return c.simple(ctx, command.Reboot, command.BuildReboot())
}

// ExportPrivateKey 设备禁用导出时返回 ErrDisabled
func (c *Client) ExportPrivateKey(ctx context.Context) ([]byte, error) {
	ev, err := c.call(ctx, command.ExportPrivateKey, command.BuildExportPrivateKey(),
		event.KindPrivateKey, event.KindDisabled)
	if err != nil {
		return nil, err
	}
	k, err := expect[*event.PrivateKey](ev)
	if err != nil {
		return nil, err
	}
	return k.PrivateKey, nil
}

func (c *Client) ImportPrivateKey(ctx context.Context, key []byte) error {
	_, err := c.call(ctx, command.ImportPrivateKey, command.BuildImportPrivateKey(key),
		event.KindOk, event.KindDisabled)
	return err
}

// ---------------- 频道 ----------------

func (c *Client) GetChannel(ctx context.Context, idx uint8) (*event.ChannelInfo, error) {
	ev, err := c.call(ctx, command.GetChannel, command.BuildGetChannel(idx), event.KindChannelInfo)
	if err != nil {
		return nil, err
	}
	return expect[*event.ChannelInfo](ev)
}

// SetChannel secret 固定 16 字节，不足补零
func (c *Client) SetChannel(ctx context.Context, idx uint8, name string, secret []byte) error {
	return c.simple(ctx, command.SetChannel, command.BuildSetChannel(idx, name, secret))
}

// ---------------- 联系人 ----------------

// GetContacts 拉取联系人列表；since 非空时只返回该时间之后修改过的联系人。
// 返回的 lastMod 可作为下一次增量同步的 since。
func (c *Client) GetContacts(ctx context.Context, since *uint32) (contacts []*event.Contact, lastMod uint32, err error) {
	var mu sync.Mutex
	collect := func() func() {
		return c.bus.Subscribe(func(ev event.Event) {
			if ct, ok := ev.(*event.Contact); ok {
				mu.Lock()
				contacts = append(contacts, ct)
				mu.Unlock()
			}
		}, event.KindContact)
	}

	ev, err := c.collectCall(ctx, command.GetContacts, command.BuildGetContacts(since), collect, event.KindEndOfContacts)
	if err != nil {
		return nil, 0, err
	}
	end, err := expect[*event.EndOfContacts](ev)
	if err != nil {
		return nil, 0, err
	}
	mu.Lock()
	defer mu.Unlock()
	return contacts, end.MostRecentLastMod, nil
}

func (c *Client) AddUpdateContact(ctx context.Context, ct command.Contact) error {
	return c.simple(ctx, command.AddUpdateContact, command.BuildAddUpdateContact(ct))
}

func (c *Client) RemoveContact(ctx context.Context, publicKey []byte) error {
	return c.simple(ctx, command.RemoveContact, command.BuildRemoveContact(publicKey))
}

func (c *Client) ShareContact(ctx context.Context, publicKey []byte) error {
	return c.simple(ctx, command.ShareContact, command.BuildShareContact(publicKey))
}

func (c *Client) ResetPath(ctx context.Context, publicKey []byte) error {
	return c.simple(ctx, command.ResetPath, command.BuildResetPath(publicKey))
}

// ExportContact 导出联系人广播包；publicKey 为空时导出自身
func (c *Client) ExportContact(ctx context.Context, publicKey []byte) ([]byte, error) {
	ev, err := c.call(ctx, command.ExportContact, command.BuildExportContact(publicKey), event.KindExportContact)
	if err != nil {
		return nil, err
	}
	x, err := expect[*event.ExportContact](ev)
	if err != nil {
		return nil, err
	}
	return x.AdvertPacket, nil
}

func (c *Client) ImportContact(ctx context.Context, advertPacket []byte) error {
	return c.simple(ctx, command.ImportContact, command.BuildImportContact(advertPacket))
}

// ---------------- 消息 ----------------

// TextMessage 私聊文本消息
type TextMessage struct {
	Type      command.TxtType
	Attempt   uint8
	Timestamp time.Time // 零值表示当前时间
	Recipient []byte    // 公钥或至少 6 字节的前缀
	Text      string
}

// ChannelMessage 频道文本消息
type ChannelMessage struct {
	Type      command.TxtType
	Channel   uint8
	Timestamp time.Time
	Text      string
}

func (c *Client) stamp(t time.Time) uint32 {
	if t.IsZero() {
		t = c.now()
	}
	return uint32(t.Unix())
}

func (c *Client) sent(ctx context.Context, cmd command.Code, payload []byte) (*event.Sent, error) {
	ev, err := c.call(ctx, cmd, payload, event.KindSent)
	if err != nil {
		return nil, err
	}
	return expect[*event.Sent](ev)
}

// SendTxtMsg 发送私聊消息；返回的 Sent.ExpectedAckCRC 与后续 SendConfirmed.AckCode 对应
func (c *Client) SendTxtMsg(ctx context.Context, m TextMessage) (*event.Sent, error) {
	if len(m.Recipient) < command.PubKeyPrefixSize {
		return nil, fmt.Errorf("%w: recipient must carry at least %d bytes, got %d", ErrInvalidArgument, command.PubKeyPrefixSize, len(m.Recipient))
	}
	return c.sent(ctx, command.SendTxtMsg,
		command.BuildSendTxtMsg(m.Type, m.Attempt, c.stamp(m.Timestamp), m.Recipient, m.Text))
}

func (c *Client) SendChannelTxtMsg(ctx context.Context, m ChannelMessage) (*event.Sent, error) {
	return c.sent(ctx, command.SendChannelTxtMsg,
		command.BuildSendChannelTxtMsg(m.Type, m.Channel, c.stamp(m.Timestamp), m.Text))
}

func (c *Client) SendRawData(ctx context.Context, path, data []byte) (*event.Sent, error) {
	return c.sent(ctx, command.SendRawData, command.BuildSendRawData(path, data))
}

// SyncNextMessage 取出下一条排队消息；队列为空时返回 nil, nil。
// 非空时结果为 *event.ContactMsgRecv 或 *event.ChannelMsgRecv。
func (c *Client) SyncNextMessage(ctx context.Context) (event.Event, error) {
	ev, err := c.call(ctx, command.SyncNextMessage, command.BuildSyncNextMessage(),
		event.KindNoMoreMessages, event.KindContactMsgRecv, event.KindChannelMsgRecv)
	if err != nil {
		return nil, err
	}
	if ev.Kind() == event.KindNoMoreMessages {
		return nil, nil
	}
	return ev, nil
}

// SyncAllMessages 循环拉取直到队列为空。出错时返回已取出的消息与错误。
func (c *Client) SyncAllMessages(ctx context.Context) ([]event.Event, error) {
	var msgs []event.Event
	for {
		msg, err := c.SyncNextMessage(ctx)
		if err != nil {
			return msgs, err
		}
		if msg == nil {
			return msgs, nil
		}
		msgs = append(msgs, msg)
	}
}

// ---------------- 签名 ----------------

// SignStart 开始签名会话，返回单次 SignData 的最大长度
func (c *Client) SignStart(ctx context.Context) (uint32, error) {
	ev, err := c.call(ctx, command.SignStart, command.BuildSignStart(), event.KindSignStart)
	if err != nil {
		return 0, err
	}
	s, err := expect[*event.SignStart](ev)
	if err != nil {
		return 0, err
	}
	return s.MaxSignDataLen, nil
}

// SignData 追加待签名数据；固件可能以 Ok 或 Signature 完成
func (c *Client) SignData(ctx context.Context, chunk []byte) error {
	_, err := c.call(ctx, command.SignData, command.BuildSignData(chunk), event.KindOk, event.KindSignature)
	return err
}

// SignFinish 结束会话并取回签名
func (c *Client) SignFinish(ctx context.Context) ([]byte, error) {
	ev, err := c.call(ctx, command.SignFinish, command.BuildSignFinish(), event.KindSignature, event.KindOk)
	if err != nil {
		return nil, err
	}
	s, err := expect[*event.Signature](ev)
	if err != nil {
		return nil, err
	}
	return s.Signature, nil
}

// Sign 用设备私钥签名 data，按设备允许的最大长度分块发送
func (c *Client) Sign(ctx context.Context, data []byte) ([]byte, error) {
	limit, err := c.SignStart(ctx)
	if err != nil {
		return nil, err
	}
	chunk := int(limit)
	if chunk <= 0 {
		chunk = len(data)
	}
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		if err := c.SignData(ctx, data[off:end]); err != nil {
			return nil, err
		}
	}
	return c.SignFinish(ctx)
}

// ---------------- 远程节点请求（以推送完成） ----------------

// Login 登录房间/中继节点；密码错误时返回 false, nil
func (c *Client) Login(ctx context.Context, publicKey []byte, password string) (bool, error) {
	ev, err := c.call(ctx, command.SendLogin, command.BuildSendLogin(publicKey, password),
		event.KindLoginSuccess, event.KindLoginFail)
	if err != nil {
		return false, err
	}
	return ev.Kind() == event.KindLoginSuccess, nil
}

func (c *Client) StatusReq(ctx context.Context, publicKey []byte) (*event.StatusResponse, error) {
	ev, err := c.call(ctx, command.SendStatusReq, command.BuildSendStatusReq(publicKey), event.KindStatusResponse)
	if err != nil {
		return nil, err
	}
	return expect[*event.StatusResponse](ev)
}

// TelemetryReq 请求远端遥测，结果可用 Records() 解码
func (c *Client) TelemetryReq(ctx context.Context, publicKey []byte) (*event.TelemetryResponse, error) {
	ev, err := c.call(ctx, command.SendTelemetryReq, command.BuildSendTelemetryReq(publicKey), event.KindTelemetryResponse)
	if err != nil {
		return nil, err
	}
	return expect[*event.TelemetryResponse](ev)
}

func (c *Client) BinaryReq(ctx context.Context, publicKey, request []byte) (*event.BinaryResponse, error) {
	ev, err := c.call(ctx, command.SendBinaryReq, command.BuildSendBinaryReq(publicKey, request), event.KindBinaryResponse)
	if err != nil {
		return nil, err
	}
	return expect[*event.BinaryResponse](ev)
}

// SendTracePath 发起路径追踪，结果以 TraceData 推送到达
func (c *Client) SendTracePath(ctx context.Context, tag, auth uint32, path []byte) error {
	return c.simple(ctx, command.SendTracePath, command.BuildSendTracePath(tag, auth, path))
}
