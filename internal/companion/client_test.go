package companion

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/frame"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

// fakeLink 内存链路：记录发出的命令载荷，并按 respond 回放上行帧
type fakeLink struct {
	mu       sync.Mutex
	onRead   func([]byte)
	commands [][]byte
	respond  func(cmd []byte) [][]byte

	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newFakeLink(respond func(cmd []byte) [][]byte) *fakeLink {
	return &fakeLink{
		respond: respond,
		inbound: make(chan []byte, 256),
		done:    make(chan struct{}),
	}
}

func (l *fakeLink) SetOnRead(h func([]byte)) { l.onRead = h }

func (l *fakeLink) Start() {
	go func() {
		for {
			select {
			case b := <-l.inbound:
				l.onRead(b)
			case <-l.done:
				return
			}
		}
	}()
}

func (l *fakeLink) Write(b []byte) error {
	select {
	case <-l.done:
		return transport.ErrClosed
	default:
	}
	payload := append([]byte(nil), b[frame.HeaderLen:]...)
	l.mu.Lock()
	l.commands = append(l.commands, payload)
	respond := l.respond
	l.mu.Unlock()
	if respond != nil {
		for _, p := range respond(payload) {
			l.push(p)
		}
	}
	return nil
}

// push 以设备方向帧投递一个上行载荷
func (l *fakeLink) push(payload []byte) {
	raw, _ := frame.Encode(frame.KindIncoming, payload)
	l.inbound <- raw
}

func (l *fakeLink) Done() <-chan struct{} { return l.done }
func (l *fakeLink) Err() error            { return l.err }

func (l *fakeLink) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *fakeLink) sentCodes() []command.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]command.Code, 0, len(l.commands))
	for _, c := range l.commands {
		out = append(out, command.Code(c[0]))
	}
	return out
}

func deviceInfoPayload() []byte {
	return buffer.NewWriter(32).
		Uint8(uint8(event.KindDeviceInfo)).
		Int8(3).
		Zeros(6).
		CString("19 Feb 2025", 12).
		String("Heltec V3").
		Bytes()
}

// withDeviceQuery 自动应答启动时的 DeviceQuery，其余命令交给 next
func withDeviceQuery(next func(cmd []byte) [][]byte) func(cmd []byte) [][]byte {
	return func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) == command.DeviceQuery {
			return [][]byte{deviceInfoPayload()}
		}
		if next == nil {
			return nil
		}
		return next(cmd)
	}
}

func startClient(t *testing.T, respond func(cmd []byte) [][]byte, opts ...Option) (*Client, *fakeLink) {
	t.Helper()
	link := newFakeLink(withDeviceQuery(respond))
	opts = append([]Option{WithTimeout(time.Second)}, opts...)
	c := New(link, opts...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, link
}

func ok() []byte { return []byte{uint8(event.KindOk)} }

type recordingObserver struct {
	nopObserver
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveCall(cmd, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, cmd+":"+result)
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

func TestStartQueriesDeviceAndPublishesConnected(t *testing.T) {
	link := newFakeLink(withDeviceQuery(nil))
	c := New(link, WithTimeout(time.Second))
	defer c.Close()

	connected := make(chan *event.Connected, 1)
	c.Subscribe(func(ev event.Event) { connected <- ev.(*event.Connected) }, event.KindConnected)

	require.NoError(t, c.Start(context.Background()))

	got := <-connected
	require.NotNil(t, got.DeviceInfo)
	assert.Equal(t, int8(3), got.DeviceInfo.FirmwareVer)
	assert.Equal(t, "19 Feb 2025", got.DeviceInfo.FirmwareBuildDate)
	assert.Equal(t, "Heltec V3", got.DeviceInfo.ManufacturerModel)
	assert.Same(t, got.DeviceInfo, c.DeviceInfo())

	assert.Equal(t, []byte{byte(command.DeviceQuery), command.SupportedCompanionProtocolVersion}, link.commands[0])
}

func TestStartToleratesSilentDevice(t *testing.T) {
	link := newFakeLink(nil)
	c := New(link, WithTimeout(20*time.Millisecond))
	defer c.Close()

	var connected []*event.Connected
	c.Subscribe(func(ev event.Event) { connected = append(connected, ev.(*event.Connected)) }, event.KindConnected)

	require.NoError(t, c.Start(context.Background()))
	require.Len(t, connected, 1)
	assert.Nil(t, connected[0].DeviceInfo)
	assert.Nil(t, c.DeviceInfo())
}

func TestCallBeforeStart(t *testing.T) {
	c := New(newFakeLink(nil))
	_, err := c.GetBatteryVoltage(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, c.Close())
}

func TestDataCompletedCall(t *testing.T) {
	c, link := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) == command.GetBatteryVoltage {
			return [][]byte{buffer.NewWriter(3).Uint8(uint8(event.KindBatteryVoltage)).Uint16(4120).Bytes()}
		}
		return nil
	})

	mv, err := c.GetBatteryVoltage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(4120), mv)
	assert.Equal(t, []command.Code{command.DeviceQuery, command.GetBatteryVoltage}, link.sentCodes())
}

func TestErrResponseBecomesCommandFailed(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		return [][]byte{{uint8(event.KindErr), uint8(event.ErrCodeIllegalArg)}}
	}, WithObserver(obs))

	err := c.SetTxPower(context.Background(), 40)
	require.Error(t, err)

	var failed *CommandFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, command.SetTxPower, failed.Command)
	assert.Equal(t, event.ErrCodeIllegalArg, failed.Code)
	assert.Contains(t, obs.snapshot(), "set_tx_power:failed")
}

func TestCallTimeoutDeregistersWaiters(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := startClient(t, nil, WithTimeout(50*time.Millisecond), WithObserver(obs))

	begin := time.Now()
	_, err := c.GetDeviceTime(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)

	assert.Zero(t, c.Bus().Pending(event.KindCurrTime))
	assert.Zero(t, c.Bus().Pending(event.KindErr))
	assert.Contains(t, obs.snapshot(), "get_device_time:timeout")
}

func TestContextCancelDeregistersWaiters(t *testing.T) {
	c, _ := startClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.SetAdvertName(ctx, "node")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.Bus().Pending(event.KindOk))
}

func TestPushDoesNotCompleteCall(t *testing.T) {
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) == command.GetDeviceTime {
			return [][]byte{
				{uint8(event.KindMsgWaiting)},
				{0x55, 0x01}, // 未知码
				buffer.NewWriter(5).Uint8(uint8(event.KindCurrTime)).Uint32(1700000000).Bytes(),
			}
		}
		return nil
	})

	waiting := make(chan struct{}, 1)
	c.Subscribe(func(event.Event) { waiting <- struct{}{} }, event.KindMsgWaiting)

	ts, err := c.GetDeviceTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())

	select {
	case <-waiting:
	case <-time.After(time.Second):
		t.Fatal("push not delivered to listener")
	}
}

func TestTxEventPerCommand(t *testing.T) {
	c, _ := startClient(t, func(cmd []byte) [][]byte { return [][]byte{ok()} })

	var mu sync.Mutex
	var tx [][]byte
	c.Subscribe(func(ev event.Event) {
		mu.Lock()
		tx = append(tx, ev.(*event.Tx).Payload)
		mu.Unlock()
	}, event.KindTx)

	require.NoError(t, c.SendSelfAdvert(context.Background(), command.SelfAdvertFlood))
	require.NoError(t, c.Reboot(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, tx, 2)
	assert.Equal(t, []byte{byte(command.SendSelfAdvert), 1}, tx[0])
	assert.Equal(t, byte(command.Reboot), tx[1][0])
}

func contactPayload(key byte, name string, lastMod uint32) []byte {
	return buffer.NewWriter(148).
		Uint8(uint8(event.KindContact)).
		Write(bytes.Repeat([]byte{key}, 32)).
		Uint8(1).
		Uint8(0).
		Int8(-1).
		Zeros(64).
		CString(name, 32).
		Uint32(1700000000).
		Int32(51500000).
		Int32(-120000).
		Uint32(lastMod).
		Bytes()
}

func TestGetContactsCollectsUntilEnd(t *testing.T) {
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) != command.GetContacts {
			return nil
		}
		return [][]byte{
			buffer.NewWriter(5).Uint8(uint8(event.KindContactsStart)).Uint32(2).Bytes(),
			contactPayload(0xAA, "alice", 10),
			{uint8(event.KindAdvert)},
			contactPayload(0xBB, "bob", 20),
			buffer.NewWriter(5).Uint8(uint8(event.KindEndOfContacts)).Uint32(20).Bytes(),
		}
	})

	contacts, lastMod, err := c.GetContacts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "alice", contacts[0].AdvName)
	assert.Equal(t, "bob", contacts[1].AdvName)
	assert.Nil(t, contacts[0].Path())
	assert.Equal(t, int32(-120000), contacts[1].AdvLon)
	assert.Equal(t, uint32(20), lastMod)
}

func TestConcurrentGetContactsKeepTheirOwnContacts(t *testing.T) {
	var (
		mu    sync.Mutex
		round byte
		link  *fakeLink
	)
	c, link := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) != command.GetContacts {
			return nil
		}
		mu.Lock()
		round++
		key := round
		mu.Unlock()
		go func() {
			// 第二个调用在此期间排队等待串行锁
			time.Sleep(20 * time.Millisecond)
			link.push(contactPayload(key, "a", 1))
			link.push(contactPayload(key, "b", 2))
			link.push(buffer.NewWriter(5).Uint8(uint8(event.KindEndOfContacts)).Uint32(2).Bytes())
		}()
		return nil
	})

	results := make(chan []*event.Contact, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contacts, _, err := c.GetContacts(context.Background(), nil)
			assert.NoError(t, err)
			results <- contacts
		}()
	}
	wg.Wait()
	close(results)

	for contacts := range results {
		require.Len(t, contacts, 2)
		assert.Equal(t, contacts[0].PublicKey[0], contacts[1].PublicKey[0])
	}
}

func TestSyncAllMessagesDrainsQueue(t *testing.T) {
	queue := [][]byte{
		buffer.NewWriter(16).Uint8(uint8(event.KindContactMsgRecv)).
			Write([]byte{1, 2, 3, 4, 5, 6}).Uint8(0xFF).Uint8(0).Uint32(1).String("hi").Bytes(),
		buffer.NewWriter(16).Uint8(uint8(event.KindChannelMsgRecv)).
			Int8(0).Uint8(2).Uint8(0).Uint32(2).String("bob: hello").Bytes(),
	}
	c, link := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) != command.SyncNextMessage {
			return nil
		}
		if len(queue) == 0 {
			return [][]byte{{uint8(event.KindNoMoreMessages)}}
		}
		next := queue[0]
		queue = queue[1:]
		return [][]byte{next}
	})

	msgs, err := c.SyncAllMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].(*event.ContactMsgRecv).Text)
	assert.Equal(t, "bob: hello", msgs[1].(*event.ChannelMsgRecv).Text)
	assert.Len(t, link.sentCodes(), 4)
}

func TestSignChunksData(t *testing.T) {
	sig := bytes.Repeat([]byte{0x5A}, 64)
	var chunks [][]byte
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		switch command.Code(cmd[0]) {
		case command.SignStart:
			return [][]byte{buffer.NewWriter(6).Uint8(uint8(event.KindSignStart)).Uint8(0).Uint32(4).Bytes()}
		case command.SignData:
			chunks = append(chunks, cmd[1:])
			return [][]byte{ok()}
		case command.SignFinish:
			return [][]byte{append([]byte{uint8(event.KindSignature)}, sig...)}
		}
		return nil
	})

	got, err := c.Sign(context.Background(), []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, sig, got)
	assert.Equal(t, [][]byte{[]byte("0123"), []byte("4567"), []byte("89")}, chunks)
}

func TestLoginOutcome(t *testing.T) {
	success := false
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) != command.SendLogin {
			return nil
		}
		code := event.KindLoginFail
		if success {
			code = event.KindLoginSuccess
		}
		sent := buffer.NewWriter(10).Uint8(uint8(event.KindSent)).Int8(0).Uint32(7).Uint32(3000).Bytes()
		return [][]byte{sent, {uint8(code), 0, 1, 2, 3, 4, 5, 6}}
	})

	key := bytes.Repeat([]byte{0x11}, 32)
	okLogin, err := c.Login(context.Background(), key, "wrong")
	require.NoError(t, err)
	assert.False(t, okLogin)

	success = true
	okLogin, err = c.Login(context.Background(), key, "hunter2")
	require.NoError(t, err)
	assert.True(t, okLogin)
}

func TestExportPrivateKeyDisabled(t *testing.T) {
	c, _ := startClient(t, func(cmd []byte) [][]byte {
		return [][]byte{{uint8(event.KindDisabled)}}
	})
	_, err := c.ExportPrivateKey(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSendTxtMsgRejectsShortRecipient(t *testing.T) {
	c, link := startClient(t, nil)
	_, err := c.SendTxtMsg(context.Background(), TextMessage{Recipient: []byte{1, 2}, Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, []command.Code{command.DeviceQuery}, link.sentCodes())
}

func TestSendTxtMsgUsesClock(t *testing.T) {
	fixed := time.Unix(1700000123, 0)
	c, link := startClient(t, func(cmd []byte) [][]byte {
		if command.Code(cmd[0]) == command.SendTxtMsg {
			return [][]byte{buffer.NewWriter(10).Uint8(uint8(event.KindSent)).Int8(1).Uint32(0xCAFE).Uint32(5000).Bytes()}
		}
		return nil
	}, WithClock(func() time.Time { return fixed }))

	sent, err := c.SendTxtMsg(context.Background(), TextMessage{Recipient: bytes.Repeat([]byte{9}, 32), Text: "ping"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFE), sent.ExpectedAckCRC)

	cmd := link.commands[len(link.commands)-1]
	r := buffer.NewReader(cmd[3:7])
	assert.Equal(t, uint32(1700000123), r.Uint32())
}

func TestCloseFailsPendingCallAndPublishesDisconnected(t *testing.T) {
	c, link := startClient(t, nil, WithTimeout(5*time.Second))

	disconnected := make(chan *event.Disconnected, 1)
	c.Subscribe(func(ev event.Event) { disconnected <- ev.(*event.Disconnected) }, event.KindDisconnected)

	errC := make(chan error, 1)
	go func() {
		_, err := c.GetBatteryVoltage(context.Background())
		errC <- err
	}()
	require.Eventually(t, func() bool { return c.Bus().Pending(event.KindBatteryVoltage) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Close())
	select {
	case err := <-errC:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call not released on disconnect")
	}
	assert.Equal(t, "closed", (<-disconnected).Reason)
	<-c.Done()

	_, err := c.GetBatteryVoltage(context.Background())
	assert.Error(t, err)
}

func TestCallsAreSerialized(t *testing.T) {
	var (
		mu          sync.Mutex
		inFlight    int
		maxInFlight int
		link        *fakeLink
	)
	c, link := startClient(t, func(cmd []byte) [][]byte {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()
		go func() {
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			link.push(ok())
		}()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.SetTxPower(context.Background(), 20))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, link.sentCodes(), 9)
}

func TestTxPublishedBeforeResponse(t *testing.T) {
	c, _ := startClient(t, func(cmd []byte) [][]byte { return [][]byte{ok()} })

	var (
		mu      sync.Mutex
		kinds   []event.Kind
		active  int
		overlap bool
	)
	c.Subscribe(func(ev event.Event) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		kinds = append(kinds, ev.Kind())
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}, event.KindTx, event.KindOk)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.SetTxPower(context.Background(), 20))
	}
	// 等待者先于监听器完成，最后一个 Ok 可能仍在投递
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 10
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < len(kinds); i += 2 {
		assert.Equal(t, event.KindTx, kinds[i])
		assert.Equal(t, event.KindOk, kinds[i+1])
	}
	assert.False(t, overlap)
}

func TestListenerClosesClientAsynchronously(t *testing.T) {
	c, link := startClient(t, nil)

	c.Subscribe(func(event.Event) { go func() { _ = c.Close() }() }, event.KindMsgWaiting)
	link.push([]byte{uint8(event.KindMsgWaiting)})

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed from listener")
	}
}
