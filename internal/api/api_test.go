package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/api/middleware"
	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/storage"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
	redisstorage "github.com/taoyao-code/meshcore-bridge/internal/storage/redis"
)

type fakeDevice struct {
	err       error
	setTime   time.Time
	advert    command.SelfAdvertType
	since     *uint32
	lastText  companion.TextMessage
	lastChan  companion.ChannelMessage
	telemetry *event.TelemetryResponse
}

func (f *fakeDevice) DeviceInfo() *event.DeviceInfo {
	return &event.DeviceInfo{FirmwareVer: 3, ManufacturerModel: "Heltec V3"}
}

func (f *fakeDevice) SelfInfo() *event.SelfInfo { return &event.SelfInfo{Name: "base"} }

func (f *fakeDevice) GetBatteryVoltage(context.Context) (uint16, error) { return 4012, f.err }

func (f *fakeDevice) GetDeviceTime(context.Context) (time.Time, error) {
	return time.Unix(1700000000, 0), f.err
}

func (f *fakeDevice) SetDeviceTime(_ context.Context, t time.Time) error {
	f.setTime = t
	return f.err
}

func (f *fakeDevice) SendSelfAdvert(_ context.Context, t command.SelfAdvertType) error {
	f.advert = t
	return f.err
}

func (f *fakeDevice) GetContacts(_ context.Context, since *uint32) ([]*event.Contact, uint32, error) {
	f.since = since
	return []*event.Contact{{AdvName: "alice"}, {AdvName: "bob"}}, 99, f.err
}

func (f *fakeDevice) GetChannel(_ context.Context, idx uint8) (*event.ChannelInfo, error) {
	return &event.ChannelInfo{ChannelIdx: idx, Name: "Public"}, f.err
}

func (f *fakeDevice) SendTxtMsg(_ context.Context, m companion.TextMessage) (*event.Sent, error) {
	f.lastText = m
	if f.err != nil {
		return nil, f.err
	}
	return &event.Sent{Result: 1, ExpectedAckCRC: 0xCAFE, EstTimeout: 5000}, nil
}

func (f *fakeDevice) SendChannelTxtMsg(_ context.Context, m companion.ChannelMessage) (*event.Sent, error) {
	f.lastChan = m
	return &event.Sent{}, f.err
}

func (f *fakeDevice) StatusReq(context.Context, []byte) (*event.StatusResponse, error) {
	return &event.StatusResponse{StatusData: []byte{1, 2}}, f.err
}

func (f *fakeDevice) TelemetryReq(context.Context, []byte) (*event.TelemetryResponse, error) {
	return f.telemetry, f.err
}

type fakeOutbox struct {
	msgs []*redisstorage.OutboxMessage
}

func (f *fakeOutbox) Enqueue(_ context.Context, msg *redisstorage.OutboxMessage) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeOutbox) PendingCount(context.Context) (int64, error) { return int64(len(f.msgs)), nil }
func (f *fakeOutbox) DeadCount(context.Context) (int64, error)    { return 2, nil }

type fakeArchive struct {
	storage.Archive
	query storage.MessageQuery
}

func (f *fakeArchive) ListMessages(_ context.Context, q storage.MessageQuery) ([]models.Message, error) {
	f.query = q
	return []models.Message{{Text: "hi"}}, nil
}

func (f *fakeArchive) ListContacts(context.Context) ([]models.Contact, error) {
	return []models.Contact{{PublicKey: "ab", AdvName: "alice"}}, nil
}

var pubKeyHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func newTestEngine(deps Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps.Logger = zap.NewNop()
	RegisterRoutes(r, deps)
	return r
}

func withDevice(d *fakeDevice) Deps {
	return Deps{Device: func() Device { return d }}
}

func request(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestDeviceInfo(t *testing.T) {
	r := newTestEngine(withDevice(&fakeDevice{}))
	w := request(r, http.MethodGet, "/api/device/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Heltec V3", body["device_info"].(map[string]interface{})["manufacturer_model"])
	assert.Equal(t, "base", body["self_info"].(map[string]interface{})["name"])
}

func TestDisconnectedDeviceIs503(t *testing.T) {
	r := newTestEngine(Deps{Device: func() Device { return nil }})
	w := request(r, http.MethodGet, "/api/device/battery", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBatteryAndTime(t *testing.T) {
	d := &fakeDevice{}
	r := newTestEngine(withDevice(d))

	w := request(r, http.MethodGet, "/api/device/battery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4012), decode(t, w)["battery_millivolts"])

	w = request(r, http.MethodGet, "/api/device/time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1700000000), decode(t, w)["epoch_secs"])

	w = request(r, http.MethodPost, "/api/device/time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, d.setTime.IsZero())

	w = request(r, http.MethodPost, "/api/device/time", map[string]int64{"epoch_secs": 1710000000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1710000000), d.setTime.Unix())
}

func TestSendAdvertFlood(t *testing.T) {
	d := &fakeDevice{}
	r := newTestEngine(withDevice(d))
	w := request(r, http.MethodPost, "/api/device/advert", map[string]bool{"flood": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, command.SelfAdvertFlood, d.advert)
}

func TestListContactsSince(t *testing.T) {
	d := &fakeDevice{}
	r := newTestEngine(withDevice(d))

	w := request(r, http.MethodGet, "/api/contacts?since=42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.since)
	assert.Equal(t, uint32(42), *d.since)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(99), body["last_mod"])

	w = request(r, http.MethodGet, "/api/contacts?since=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChannelRoutes(t *testing.T) {
	d := &fakeDevice{}
	r := newTestEngine(withDevice(d))

	w := request(r, http.MethodGet, "/api/channels/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Public", decode(t, w)["name"])

	w = request(r, http.MethodGet, "/api/channels/300", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/api/channels/1/messages", map[string]string{"text": "hello all"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint8(1), d.lastChan.Channel)
	assert.Equal(t, "hello all", d.lastChan.Text)
}

func TestSendMessage(t *testing.T) {
	d := &fakeDevice{}
	r := newTestEngine(withDevice(d))

	w := request(r, http.MethodPost, "/api/messages", map[string]interface{}{"recipient": "aabbccddeeff", "text": "ping"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0xCAFE), decode(t, w)["expected_ack_crc"])
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, d.lastText.Recipient)

	w = request(r, http.MethodPost, "/api/messages", map[string]interface{}{"recipient": "zz", "text": "ping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/api/messages", map[string]interface{}{"recipient": "aabb"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get_battery: %w", companion.ErrTimeout), http.StatusGatewayTimeout, "timeout"},
		{&companion.CommandFailedError{Command: command.GetBatteryVoltage}, http.StatusBadGateway, "command_failed"},
		{companion.ErrDisabled, http.StatusForbidden, "disabled"},
		{companion.ErrClosed, http.StatusServiceUnavailable, "disconnected"},
		{fmt.Errorf("%w: short", companion.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		r := newTestEngine(withDevice(&fakeDevice{err: tc.err}))
		w := request(r, http.MethodGet, "/api/device/battery", nil)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.code, decode(t, w)["error"])
	}
}

func TestTelemetryDecodesLPP(t *testing.T) {
	d := &fakeDevice{telemetry: &event.TelemetryResponse{
		PubKeyPrefix:  []byte{1, 2, 3, 4, 5, 6},
		LPPSensorData: []byte{0x01, 0x67, 0x00, 0xFA},
	}}
	r := newTestEngine(withDevice(d))

	w := request(r, http.MethodGet, "/api/contacts/"+pubKeyHex+"/telemetry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "010203040506", body["pub_key_prefix"])
	records := body["records"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, 25.0, records[0].(map[string]interface{})["value"])

	w = request(r, http.MethodGet, "/api/contacts/abcd/telemetry", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/api/contacts/"+pubKeyHex+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0102", decode(t, w)["status_data"])
}

func TestOutboxRoutes(t *testing.T) {
	ob := &fakeOutbox{}
	r := newTestEngine(Deps{Outbox: ob})

	w := request(r, http.MethodPost, "/api/outbox", map[string]interface{}{
		"kind": "direct", "recipient": "AABBCCDDEEFF", "text": "later", "priority": 7,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, ob.msgs, 1)
	assert.Equal(t, "aabbccddeeff", ob.msgs[0].Recipient)
	assert.Equal(t, 7, ob.msgs[0].Priority)
	assert.Equal(t, defaultOutboxRetries, ob.msgs[0].MaxRetry)
	assert.Equal(t, ob.msgs[0].ID, decode(t, w)["id"])

	w = request(r, http.MethodPost, "/api/outbox", map[string]interface{}{"kind": "channel", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/api/outbox", map[string]interface{}{"kind": "channel", "channel": 0, "text": "x"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = request(r, http.MethodPost, "/api/outbox", map[string]interface{}{"kind": "broadcast", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/api/outbox/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["pending"])
	assert.Equal(t, float64(2), body["dead"])
}

func TestArchiveRoutes(t *testing.T) {
	repo := &fakeArchive{}
	r := newTestEngine(Deps{Archive: repo})

	w := request(r, http.MethodGet, "/api/archive/messages?channel=3&limit=5000&since=2026-01-02T03:04:05Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.query.Channel)
	assert.Equal(t, int16(3), *repo.query.Channel)
	assert.Equal(t, maxArchiveLimit, repo.query.Limit)
	assert.Equal(t, 2026, repo.query.Since.Year())

	w = request(r, http.MethodGet, "/api/archive/messages?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/api/archive/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestRoutesRequireAPIKey(t *testing.T) {
	deps := withDevice(&fakeDevice{})
	deps.Auth = middleware.AuthConfig{Enabled: true, APIKeys: []string{"k-0123456789"}}
	r := newTestEngine(deps)

	w := request(r, http.MethodGet, "/api/device/info", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/device/info", nil)
	req.Header.Set("X-API-Key", "k-0123456789")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
