package event

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/advert"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/lpp"
)

func contactBody(code byte) []byte {
	w := buffer.NewWriter(0).Uint8(code)
	w.Fixed(bytes.Repeat([]byte{0x11}, 32), 32)
	w.Uint8(uint8(advert.TypeRepeater)).Uint8(0x01).Int8(2)
	w.Fixed([]byte{0xA1, 0xB2}, 64)
	w.CString("hilltop", 32)
	w.Uint32(1700000000).Int32(-33868800).Int32(151209300).Uint32(1700000100)
	return w.Bytes()
}

func TestDecodeContact(t *testing.T) {
	ev, err := Decode(contactBody(byte(KindContact)))
	require.NoError(t, err)
	c, ok := ev.(*Contact)
	require.True(t, ok)
	assert.Equal(t, KindContact, c.Kind())
	assert.Equal(t, advert.TypeRepeater, c.Type)
	assert.Equal(t, "hilltop", c.AdvName)
	assert.Equal(t, []byte{0xA1, 0xB2}, c.Path())
	assert.Equal(t, int32(-33868800), c.AdvLat)
	assert.Equal(t, uint32(1700000100), c.LastMod)

	ev, err = Decode(contactBody(byte(KindNewAdvert)))
	require.NoError(t, err)
	na, ok := ev.(*NewAdvert)
	require.True(t, ok)
	assert.Equal(t, KindNewAdvert, na.Kind())
	assert.Equal(t, "hilltop", na.AdvName)
}

func TestDecodeErr(t *testing.T) {
	ev, err := Decode([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, &Err{Code: ErrCodeNotFound}, ev)

	ev, err = Decode([]byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, &Err{Code: ErrCodeNone}, ev)
}

func TestDecodeSelfInfo(t *testing.T) {
	w := buffer.NewWriter(0).Uint8(byte(KindSelfInfo))
	w.Uint8(1).Uint8(20).Uint8(22).Fixed([]byte{0xCC}, 32).Int32(-1).Int32(1).Zeros(3).Uint8(0)
	w.Uint32(915000).Uint32(250000).Uint8(10).Uint8(5).String("base")

	ev, err := Decode(w.Bytes())
	require.NoError(t, err)
	s := ev.(*SelfInfo)
	assert.Equal(t, advert.TypeChat, s.Type)
	assert.Equal(t, uint8(22), s.MaxTxPower)
	assert.Equal(t, int32(-1), s.AdvLat)
	assert.Equal(t, uint32(915000), s.RadioFreq)
	assert.Equal(t, uint8(5), s.RadioCr)
	assert.Equal(t, "base", s.Name)
}

func TestDecodeMessages(t *testing.T) {
	w := buffer.NewWriter(0).Uint8(byte(KindContactMsgRecv))
	w.Write([]byte{1, 2, 3, 4, 5, 6}).Uint8(3).Uint8(0).Uint32(100).String("hello")
	ev, err := Decode(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, &ContactMsgRecv{
		PubKeyPrefix:    buffer.Hex{1, 2, 3, 4, 5, 6},
		PathLen:         3,
		SenderTimestamp: 100,
		Text:            "hello",
	}, ev)

	w = buffer.NewWriter(0).Uint8(byte(KindChannelMsgRecv))
	w.Int8(-1).Uint8(0xFF).Uint8(0).Uint32(5).String("all")
	ev, err = Decode(w.Bytes())
	require.NoError(t, err)
	cm := ev.(*ChannelMsgRecv)
	assert.Equal(t, int8(-1), cm.ChannelIdx)
	assert.Equal(t, "all", cm.Text)
}

func TestDecodeChannelInfo(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 16)
	w := buffer.NewWriter(0).Uint8(byte(KindChannelInfo)).Uint8(0).CString("Public", 32).Write(secret)
	ev, err := Decode(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, &ChannelInfo{ChannelIdx: 0, Name: "Public", Secret: secret}, ev)

	w = buffer.NewWriter(0).Uint8(byte(KindChannelInfo)).Uint8(0).CString("Public", 32).Write(secret[:8])
	_, err = Decode(w.Bytes())
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeDeviceInfo(t *testing.T) {
	w := buffer.NewWriter(0).Uint8(byte(KindDeviceInfo)).Int8(3).Zeros(6).CString("19 Feb 2025", 12).String("Heltec V3")
	ev, err := Decode(w.Bytes())
	require.NoError(t, err)
	d := ev.(*DeviceInfo)
	assert.Equal(t, int8(3), d.FirmwareVer)
	assert.Equal(t, "19 Feb 2025", d.FirmwareBuildDate)
	assert.Equal(t, "Heltec V3", d.ManufacturerModel)
}

func TestDecodeTraceData(t *testing.T) {
	w := buffer.NewWriter(0).Uint8(byte(KindTraceData))
	w.Uint8(0).Uint8(2).Uint8(0).Uint32(0xAABBCCDD).Uint32(7)
	w.Write([]byte{0x10, 0x20}).Write([]byte{0x28, 0xF8}).Int8(-12)
	ev, err := Decode(w.Bytes())
	require.NoError(t, err)
	td := ev.(*TraceData)
	assert.Equal(t, uint8(2), td.PathLen)
	assert.Equal(t, uint32(0xAABBCCDD), td.Tag)
	assert.Equal(t, buffer.Hex{0x10, 0x20}, td.PathHashes)
	assert.Equal(t, []float64{10, -2}, td.SNRs())
	assert.Equal(t, -3.0, td.LastSNR)

	// 数组长度与 pathLen 不符
	_, err = Decode(w.Bytes()[:14])
	assert.True(t, errors.Is(err, buffer.ErrTruncated))
}

func TestDecodePushes(t *testing.T) {
	ev, err := Decode([]byte{0x84, 0x28, 0xB0, 0x00, 0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, &RawData{LastSNR: 10, LastRSSI: -80, Payload: buffer.Hex{0xDE, 0xAD}}, ev)

	ev, err = Decode([]byte{0x82, 1, 0, 0, 0, 0xE8, 0x03, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, &SendConfirmed{AckCode: 1, RoundTrip: 1000}, ev)

	ev, err = Decode([]byte{0x83})
	require.NoError(t, err)
	assert.Equal(t, KindMsgWaiting, ev.Kind())

	ev, err = Decode([]byte{0x86, 0, 1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, &LoginFail{PubKeyPrefix: buffer.Hex{1, 2, 3, 4, 5, 6}}, ev)

	ev, err = Decode([]byte{0x8B, 0, 1, 2, 3, 4, 5, 6, 1, 103, 0x00, 0xFA})
	require.NoError(t, err)
	tr := ev.(*TelemetryResponse)
	recs := tr.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, lpp.TypeTemperature, recs[0].Type)
	assert.Equal(t, 25.0, recs[0].Value)

	ev, err = Decode([]byte{0x8C, 0, 0x78, 0x56, 0x34, 0x12, 0x09})
	require.NoError(t, err)
	assert.Equal(t, &BinaryResponse{Tag: 0x12345678, ResponseData: buffer.Hex{0x09}}, ev)
}

func TestDecodeLogRxDataPacket(t *testing.T) {
	ev, err := Decode([]byte{0x88, 0x14, 0xC4, 0x09, 0x01, 0xAA, 0x03})
	require.NoError(t, err)
	lr := ev.(*LogRxData)
	assert.Equal(t, 5.0, lr.LastSNR)
	assert.Equal(t, int8(-60), lr.LastRSSI)
	p, err := lr.Packet()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, p.Path)
	assert.Equal(t, []byte{0x03}, p.Payload)
}

func TestDecodeUnknownAndTruncated(t *testing.T) {
	_, err := Decode([]byte{0x7F, 0x00})
	assert.True(t, errors.Is(err, ErrUnknownCode))

	_, err = Decode([]byte{0x10})
	assert.True(t, errors.Is(err, ErrUnknownCode))

	_, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = Decode([]byte{byte(KindCurrTime), 0x01, 0x02})
	assert.True(t, errors.Is(err, buffer.ErrTruncated))
}

func TestKindClassification(t *testing.T) {
	assert.True(t, KindBinaryResponse.IsPush())
	assert.False(t, KindSignature.IsPush())
	assert.True(t, KindSignature.IsResponse())
	assert.False(t, KindTx.IsPush())
	assert.Equal(t, "telemetry_response", KindTelemetryResponse.String())
	assert.Equal(t, "kind(0x7F)", Kind(0x7F).String())
}
