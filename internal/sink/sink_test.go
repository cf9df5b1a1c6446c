package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meshcore-bridge/internal/correlation"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/storage"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memSink struct {
	name string
	err  error

	mu   sync.Mutex
	got  []*Envelope
	shut bool
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Deliver(_ context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env)
	return s.err
}

func (s *memSink) Close() error {
	s.mu.Lock()
	s.shut = true
	s.mu.Unlock()
	return nil
}

func (s *memSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, e := range s.got {
		out = append(out, e.Kind)
	}
	return out
}

type countingObserver struct {
	mu        sync.Mutex
	delivered map[string]int
	overflow  int
}

func (o *countingObserver) ObserveDelivery(sink, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered == nil {
		o.delivered = map[string]int{}
	}
	o.delivered[sink+"/"+result]++
}

func (o *countingObserver) ObserveOverflow() {
	o.mu.Lock()
	o.overflow++
	o.mu.Unlock()
}

// busSource 以 correlation.Bus 充当连接
type busSource struct {
	bus *correlation.Bus
}

func (b busSource) ID() string { return "conn-1" }

func (b busSource) Subscribe(fn correlation.Listener, kinds ...event.Kind) func() {
	return b.bus.Subscribe(fn, kinds...)
}

func TestEnvelopeJSON(t *testing.T) {
	env := NewEnvelope("c1", &event.ChannelMsgRecv{ChannelIdx: 2, Text: "hi"}, fixedTime)
	raw, err := env.Marshal()
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "c1", out["conn_id"])
	assert.Equal(t, "channel_msg_recv", out["kind"])
	assert.Equal(t, float64(event.KindChannelMsgRecv), out["code"])
	assert.Equal(t, "2026-03-01T12:00:00Z", out["time"])
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "hi", data["text"])
	assert.NotEmpty(t, out["id"])
}

func TestPumpDeliversToAllSinks(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b", err: errors.New("down")}
	obs := &countingObserver{}
	p := NewPump([]Sink{a, b}, WithPumpObserver(obs))

	bus := correlation.NewBus()
	unsub := p.Attach(busSource{bus: bus})
	defer unsub()

	p.Start(context.Background())
	bus.Publish(&event.MsgWaiting{})
	bus.Publish(&event.Tx{Payload: []byte{1}})
	bus.Publish(&event.SendConfirmed{AckCode: 7})
	require.NoError(t, p.Close())

	assert.Equal(t, []string{"msg_waiting", "send_confirmed"}, a.kinds())
	assert.Equal(t, []string{"msg_waiting", "send_confirmed"}, b.kinds())
	assert.True(t, a.shut)
	assert.Equal(t, 2, obs.delivered["a/ok"])
	assert.Equal(t, 2, obs.delivered["b/error"])
}

func TestPumpDropsWhenFull(t *testing.T) {
	obs := &countingObserver{}
	p := NewPump(nil, WithQueueSize(1), WithPumpObserver(obs))

	assert.True(t, p.Offer(NewEnvelope("c", &event.Ok{}, fixedTime)))
	assert.False(t, p.Offer(NewEnvelope("c", &event.Ok{}, fixedTime)))
	assert.Equal(t, 1, obs.overflow)
	assert.Equal(t, 1, p.Len())

	require.NoError(t, p.Close())
	assert.False(t, p.Offer(NewEnvelope("c", &event.Ok{}, fixedTime)))
}

func TestOnlyKindsFilters(t *testing.T) {
	inner := &memSink{name: "m"}
	s := OnlyKinds(inner, "advert")
	require.NoError(t, s.Deliver(context.Background(), NewEnvelope("c", &event.Advert{}, fixedTime)))
	require.NoError(t, s.Deliver(context.Background(), NewEnvelope("c", &event.Ok{}, fixedTime)))
	assert.Equal(t, []string{"advert"}, inner.kinds())
	assert.Same(t, inner, OnlyKinds(inner))
}

type fakePublisher struct {
	kind, id string
	payload  []byte
}

func (f *fakePublisher) Publish(_ context.Context, kind, id string, payload []byte) error {
	f.kind, f.id, f.payload = kind, id, payload
	return nil
}

func TestRedisSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	env := NewEnvelope("c", &event.SendConfirmed{AckCode: 1}, fixedTime)
	require.NoError(t, NewRedisSink(pub).Deliver(context.Background(), env))
	assert.Equal(t, "send_confirmed", pub.kind)
	assert.Equal(t, env.ID, pub.id)
	assert.Contains(t, string(pub.payload), `"ack_code":1`)
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, finished bool) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	if finished {
		close(t.done)
	}
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakeMQTT struct {
	topics []string
	tok    mqtt.Token
	closed bool
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	return f.tok
}

func (f *fakeMQTT) Disconnect(uint) { f.closed = true }

func TestMQTTSinkTopicAndAck(t *testing.T) {
	m := &fakeMQTT{tok: newToken(nil, true)}
	s := newMQTTSink(m, "mesh", 1, false, nil)
	env := NewEnvelope("c9", &event.Advert{}, fixedTime)

	require.NoError(t, s.Deliver(context.Background(), env))
	assert.Equal(t, []string{"mesh/c9/advert"}, m.topics)

	m.tok = newToken(errors.New("not authorized"), true)
	assert.EqualError(t, s.Deliver(context.Background(), env), "not authorized")

	require.NoError(t, s.Close())
	assert.True(t, m.closed)
}

func TestMQTTSinkTimesOutOnPendingAck(t *testing.T) {
	m := &fakeMQTT{tok: newToken(nil, false)}
	s := newMQTTSink(m, "mesh", 1, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Deliver(ctx, NewEnvelope("c", &event.Ok{}, fixedTime))
	assert.ErrorIs(t, err, ErrMQTTTimeout)

	s.qos = 0
	assert.NoError(t, s.Deliver(ctx, NewEnvelope("c", &event.Ok{}, fixedTime)))
}

type memArchive struct {
	messages  []models.Message
	contacts  []models.Contact
	telemetry []models.Telemetry
}

func (m *memArchive) WithTx(_ context.Context, fn func(storage.Archive) error) error { return fn(m) }

func (m *memArchive) SaveMessage(_ context.Context, msg *models.Message) error {
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memArchive) ListMessages(context.Context, storage.MessageQuery) ([]models.Message, error) {
	return m.messages, nil
}

func (m *memArchive) UpsertContact(_ context.Context, c *models.Contact) error {
	m.contacts = append(m.contacts, *c)
	return nil
}

func (m *memArchive) ListContacts(context.Context) ([]models.Contact, error) { return m.contacts, nil }

func (m *memArchive) GetContactByPrefix(context.Context, string) (*models.Contact, error) {
	return nil, nil
}

func (m *memArchive) SaveTelemetry(_ context.Context, rows []models.Telemetry) error {
	m.telemetry = append(m.telemetry, rows...)
	return nil
}

func TestArchiveSinkMapsEvents(t *testing.T) {
	repo := &memArchive{}
	s := NewArchiveSink(repo)
	ctx := context.Background()

	dm := NewEnvelope("c", &event.ContactMsgRecv{
		PubKeyPrefix: []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		TxtType:      0,
		Text:         "hello",
	}, fixedTime)
	require.NoError(t, s.Deliver(ctx, dm))
	require.NoError(t, s.Deliver(ctx, NewEnvelope("c", &event.ChannelMsgRecv{ChannelIdx: 1, Text: "bob: yo"}, fixedTime)))
	require.NoError(t, s.Deliver(ctx, NewEnvelope("c", &event.NewAdvert{Contact: event.Contact{
		PublicKey:  []byte{0x01, 0x02},
		OutPathLen: 2,
		OutPath:    []byte{0x0A, 0x0B, 0x00, 0x00},
		AdvName:    "relay",
	}}, fixedTime)))
	require.NoError(t, s.Deliver(ctx, NewEnvelope("c", &event.TelemetryResponse{
		PubKeyPrefix:  []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		LPPSensorData: []byte{0x01, 0x67, 0x01, 0x10, 0x02, 0x74, 0x01, 0x9A},
	}, fixedTime)))
	require.NoError(t, s.Deliver(ctx, NewEnvelope("c", &event.Ok{}, fixedTime)))

	require.Len(t, repo.messages, 2)
	assert.Equal(t, dm.ID, repo.messages[0].EventID)
	require.NotNil(t, repo.messages[0].PubKeyPrefix)
	assert.Equal(t, "aabbccddeeff", *repo.messages[0].PubKeyPrefix)
	assert.Nil(t, repo.messages[0].ChannelIdx)
	require.NotNil(t, repo.messages[1].ChannelIdx)
	assert.Equal(t, int16(1), *repo.messages[1].ChannelIdx)

	require.Len(t, repo.contacts, 1)
	assert.Equal(t, "0102", repo.contacts[0].PublicKey)
	require.NotNil(t, repo.contacts[0].OutPath)
	assert.Equal(t, "0a0b", *repo.contacts[0].OutPath)

	require.Len(t, repo.telemetry, 2)
	assert.Equal(t, "temperature", repo.telemetry[0].SensorType)
	assert.InDelta(t, 27.2, *repo.telemetry[0].Value, 1e-9)
	assert.Equal(t, "voltage", repo.telemetry[1].SensorType)
	assert.InDelta(t, 4.1, *repo.telemetry[1].Value, 1e-9)
}

func TestContactModelUnknownPath(t *testing.T) {
	m := ContactModel(&event.Contact{PublicKey: []byte{1}, OutPathLen: -1})
	assert.Nil(t, m.OutPath)
	assert.Equal(t, int16(-1), m.OutPathLen)
}
