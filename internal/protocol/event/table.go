package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/advert"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
)

var (
	// ErrUnknownCode 未登记的响应/推送码
	ErrUnknownCode = errors.New("unknown frame code")
	// ErrMalformed 字段齐全但不符合约定（如 ChannelInfo 密钥长度）
	ErrMalformed = errors.New("malformed frame")
	// ErrEmpty 空载荷
	ErrEmpty = errors.New("empty frame payload")
)

const channelSecretSize = 16

// Decoder 单个码的解码函数；调用方负责在返回后检查 r.Err()
type Decoder func(r *buffer.Reader) (Event, error)

// Table 码 -> 解码器路由表
type Table struct {
	mu       sync.RWMutex
	decoders map[uint8]Decoder
}

// NewTable 创建空路由表
func NewTable() *Table { return &Table{decoders: make(map[uint8]Decoder)} }

// DefaultTable 登记全部响应与推送解码器
func DefaultTable() *Table {
	t := NewTable()
	registerResponses(t)
	registerPushes(t)
	return t
}

func (t *Table) Register(code uint8, d Decoder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decoders[code] = d
}

// Known 是否登记了该码
func (t *Table) Known(code uint8) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.decoders[code]
	return ok
}

// Decode 读取首字节码并路由到对应解码器。
// 未知码返回 ErrUnknownCode，截断返回 buffer.ErrTruncated（均已包装）。
func (t *Table) Decode(payload []byte) (Event, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	code := payload[0]
	t.mu.RLock()
	d := t.decoders[code]
	t.mu.RUnlock()
	if d == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCode, code)
	}
	r := buffer.NewReader(payload[1:])
	ev, err := d(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", Kind(code), err)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Kind(code), err)
	}
	return ev, nil
}

var defaultTable = DefaultTable()

// Decode 使用默认路由表解码
func Decode(payload []byte) (Event, error) { return defaultTable.Decode(payload) }

func readContact(r *buffer.Reader) Contact {
	return Contact{
		PublicKey:  r.Bytes(32),
		Type:       advert.Type(r.Uint8()),
		Flags:      r.Uint8(),
		OutPathLen: r.Int8(),
		OutPath:    r.Bytes(64),
		AdvName:    r.CString(32),
		LastAdvert: r.Uint32(),
		AdvLat:     r.Int32(),
		AdvLon:     r.Int32(),
		LastMod:    r.Uint32(),
	}
}

func snr(r *buffer.Reader) float64 { return float64(r.Int8()) / 4 }

func registerResponses(t *Table) {
	t.Register(uint8(KindOk), func(r *buffer.Reader) (Event, error) { return &Ok{}, nil })
	t.Register(uint8(KindErr), func(r *buffer.Reader) (Event, error) {
		e := &Err{}
		if r.Remaining() > 0 {
			e.Code = ErrCode(r.Uint8())
		}
		return e, nil
	})
	t.Register(uint8(KindContactsStart), func(r *buffer.Reader) (Event, error) {
		return &ContactsStart{Count: r.Uint32()}, nil
	})
	t.Register(uint8(KindContact), func(r *buffer.Reader) (Event, error) {
		c := readContact(r)
		return &c, nil
	})
	t.Register(uint8(KindEndOfContacts), func(r *buffer.Reader) (Event, error) {
		return &EndOfContacts{MostRecentLastMod: r.Uint32()}, nil
	})
	t.Register(uint8(KindSelfInfo), func(r *buffer.Reader) (Event, error) {
		return &SelfInfo{
			Type:              advert.Type(r.Uint8()),
			TxPower:           r.Uint8(),
			MaxTxPower:        r.Uint8(),
			PublicKey:         r.Bytes(32),
			AdvLat:            r.Int32(),
			AdvLon:            r.Int32(),
			Reserved:          r.Bytes(3),
			ManualAddContacts: r.Uint8(),
			RadioFreq:         r.Uint32(),
			RadioBw:           r.Uint32(),
			RadioSf:           r.Uint8(),
			RadioCr:           r.Uint8(),
			Name:              r.Text(),
		}, nil
	})
	t.Register(uint8(KindSent), func(r *buffer.Reader) (Event, error) {
		return &Sent{Result: r.Int8(), ExpectedAckCRC: r.Uint32(), EstTimeout: r.Uint32()}, nil
	})
	t.Register(uint8(KindContactMsgRecv), func(r *buffer.Reader) (Event, error) {
		return &ContactMsgRecv{
			PubKeyPrefix:    r.Bytes(6),
			PathLen:         r.Uint8(),
			TxtType:         r.Uint8(),
			SenderTimestamp: r.Uint32(),
			Text:            r.Text(),
		}, nil
	})
	t.Register(uint8(KindChannelMsgRecv), func(r *buffer.Reader) (Event, error) {
		return &ChannelMsgRecv{
			ChannelIdx:      r.Int8(),
			PathLen:         r.Uint8(),
			TxtType:         r.Uint8(),
			SenderTimestamp: r.Uint32(),
			Text:            r.Text(),
		}, nil
	})
	t.Register(uint8(KindCurrTime), func(r *buffer.Reader) (Event, error) {
		return &CurrTime{EpochSecs: r.Uint32()}, nil
	})
	t.Register(uint8(KindNoMoreMessages), func(r *buffer.Reader) (Event, error) { return &NoMoreMessages{}, nil })
	t.Register(uint8(KindExportContact), func(r *buffer.Reader) (Event, error) {
		return &ExportContact{AdvertPacket: r.Rest()}, nil
	})
	t.Register(uint8(KindBatteryVoltage), func(r *buffer.Reader) (Event, error) {
		return &BatteryVoltage{MilliVolts: r.Uint16()}, nil
	})
	t.Register(uint8(KindDeviceInfo), func(r *buffer.Reader) (Event, error) {
		return &DeviceInfo{
			FirmwareVer:       r.Int8(),
			Reserved:          r.Bytes(6),
			FirmwareBuildDate: r.CString(12),
			ManufacturerModel: r.Text(),
		}, nil
	})
	t.Register(uint8(KindPrivateKey), func(r *buffer.Reader) (Event, error) {
		return &PrivateKey{PrivateKey: r.Bytes(64)}, nil
	})
	t.Register(uint8(KindDisabled), func(r *buffer.Reader) (Event, error) { return &Disabled{}, nil })
	t.Register(uint8(KindChannelInfo), func(r *buffer.Reader) (Event, error) {
		e := &ChannelInfo{ChannelIdx: r.Uint8(), Name: r.CString(32)}
		if r.Err() != nil {
			return nil, r.Err()
		}
		if n := r.Remaining(); n != channelSecretSize {
			return nil, fmt.Errorf("%w: channel secret is %d bytes, want %d", ErrMalformed, n, channelSecretSize)
		}
		e.Secret = r.Bytes(channelSecretSize)
		return e, nil
	})
	t.Register(uint8(KindSignStart), func(r *buffer.Reader) (Event, error) {
		return &SignStart{Reserved: r.Uint8(), MaxSignDataLen: r.Uint32()}, nil
	})
	t.Register(uint8(KindSignature), func(r *buffer.Reader) (Event, error) {
		return &Signature{Signature: r.Bytes(64)}, nil
	})
}

func registerPushes(t *Table) {
	t.Register(uint8(KindAdvert), func(r *buffer.Reader) (Event, error) {
		return &Advert{PublicKey: r.Bytes(32)}, nil
	})
	t.Register(uint8(KindPathUpdated), func(r *buffer.Reader) (Event, error) {
		return &PathUpdated{PublicKey: r.Bytes(32)}, nil
	})
	t.Register(uint8(KindSendConfirmed), func(r *buffer.Reader) (Event, error) {
		return &SendConfirmed{AckCode: r.Uint32(), RoundTrip: r.Uint32()}, nil
	})
	t.Register(uint8(KindMsgWaiting), func(r *buffer.Reader) (Event, error) { return &MsgWaiting{}, nil })
	t.Register(uint8(KindRawData), func(r *buffer.Reader) (Event, error) {
		return &RawData{LastSNR: snr(r), LastRSSI: r.Int8(), Reserved: r.Uint8(), Payload: r.Rest()}, nil
	})
	t.Register(uint8(KindLoginSuccess), func(r *buffer.Reader) (Event, error) {
		return &LoginSuccess{Reserved: r.Uint8(), PubKeyPrefix: r.Bytes(6)}, nil
	})
	t.Register(uint8(KindLoginFail), func(r *buffer.Reader) (Event, error) {
		return &LoginFail{Reserved: r.Uint8(), PubKeyPrefix: r.Bytes(6)}, nil
	})
	t.Register(uint8(KindStatusResponse), func(r *buffer.Reader) (Event, error) {
		return &StatusResponse{Reserved: r.Uint8(), PubKeyPrefix: r.Bytes(6), StatusData: r.Rest()}, nil
	})
	t.Register(uint8(KindLogRxData), func(r *buffer.Reader) (Event, error) {
		return &LogRxData{LastSNR: snr(r), LastRSSI: r.Int8(), Raw: r.Rest()}, nil
	})
	t.Register(uint8(KindTraceData), func(r *buffer.Reader) (Event, error) {
		e := &TraceData{Reserved: r.Uint8(), PathLen: r.Uint8()}
		e.Flags = r.Uint8()
		e.Tag = r.Uint32()
		e.AuthCode = r.Uint32()
		e.PathHashes = r.Bytes(int(e.PathLen))
		e.PathSNRs = r.Bytes(int(e.PathLen))
		e.LastSNR = snr(r)
		return e, nil
	})
	t.Register(uint8(KindNewAdvert), func(r *buffer.Reader) (Event, error) {
		return &NewAdvert{Contact: readContact(r)}, nil
	})
	t.Register(uint8(KindTelemetryResponse), func(r *buffer.Reader) (Event, error) {
		return &TelemetryResponse{Reserved: r.Uint8(), PubKeyPrefix: r.Bytes(6), LPPSensorData: r.Rest()}, nil
	})
	t.Register(uint8(KindBinaryResponse), func(r *buffer.Reader) (Event, error) {
		return &BinaryResponse{Reserved: r.Uint8(), Tag: r.Uint32(), ResponseData: r.Rest()}, nil
	})
}
