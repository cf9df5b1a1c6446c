// Package api 设备命令、消息收发、待发队列与归档查询的 HTTP 接口
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/lpp"
)

// Device 路由依赖的设备操作（*companion.Client 满足该接口）
type Device interface {
	DeviceInfo() *event.DeviceInfo
	SelfInfo() *event.SelfInfo
	GetBatteryVoltage(ctx context.Context) (uint16, error)
	GetDeviceTime(ctx context.Context) (time.Time, error)
	SetDeviceTime(ctx context.Context, t time.Time) error
	SendSelfAdvert(ctx context.Context, t command.SelfAdvertType) error
	GetContacts(ctx context.Context, since *uint32) ([]*event.Contact, uint32, error)
	GetChannel(ctx context.Context, idx uint8) (*event.ChannelInfo, error)
	SendTxtMsg(ctx context.Context, m companion.TextMessage) (*event.Sent, error)
	SendChannelTxtMsg(ctx context.Context, m companion.ChannelMessage) (*event.Sent, error)
	StatusReq(ctx context.Context, publicKey []byte) (*event.StatusResponse, error)
	TelemetryReq(ctx context.Context, publicKey []byte) (*event.TelemetryResponse, error)
}

// DeviceProvider 返回当前连接；链路断开时返回 nil
type DeviceProvider func() Device

// DeviceHandler 设备命令API处理器
type DeviceHandler struct {
	device DeviceProvider
	logger *zap.Logger
}

// NewDeviceHandler 创建设备 Handler
func NewDeviceHandler(device DeviceProvider, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{device: device, logger: logger}
}

// current 取当前连接，断开时直接写 503
func (h *DeviceHandler) current(c *gin.Context) (Device, bool) {
	d := h.device()
	if d == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device not connected"})
		return nil, false
	}
	return d, true
}

// GetInfo 设备与自身节点信息（连接时缓存，不访问设备）
// @Router /api/device/info [get]
func (h *DeviceHandler) GetInfo(c *gin.Context) {
	d, ok := h.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_info": d.DeviceInfo(), "self_info": d.SelfInfo()})
}

// GetBattery 电池电压
// @Router /api/device/battery [get]
func (h *DeviceHandler) GetBattery(c *gin.Context) {
	d, ok := h.current(c)
	if !ok {
		return
	}
	mv, err := d.GetBatteryVoltage(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"battery_millivolts": mv})
}

// GetTime 设备时钟
// @Router /api/device/time [get]
func (h *DeviceHandler) GetTime(c *gin.Context) {
	d, ok := h.current(c)
	if !ok {
		return
	}
	t, err := d.GetDeviceTime(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epoch_secs": t.Unix(), "time": t.UTC()})
}

// SetTimeRequest 设备校时请求；epoch_secs 为空时使用服务器时间
type SetTimeRequest struct {
	EpochSecs *int64 `json:"epoch_secs"`
}

// SetTime 设备校时
// @Router /api/device/time [post]
func (h *DeviceHandler) SetTime(c *gin.Context) {
	var req SetTimeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	var t time.Time
	if req.EpochSecs != nil {
		t = time.Unix(*req.EpochSecs, 0)
	}
	if err := d.SetDeviceTime(c.Request.Context(), t); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}

// AdvertRequest 广播请求
type AdvertRequest struct {
	Flood bool `json:"flood"`
}

// SendAdvert 发送自身广播
// @Router /api/device/advert [post]
func (h *DeviceHandler) SendAdvert(c *gin.Context) {
	var req AdvertRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	mode := command.SelfAdvertZeroHop
	if req.Flood {
		mode = command.SelfAdvertFlood
	}
	if err := d.SendSelfAdvert(c.Request.Context(), mode); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success", "flood": req.Flood})
}

// ListContacts 设备联系人列表；since 为 lastmod 增量同步起点
// @Router /api/contacts [get]
func (h *DeviceHandler) ListContacts(c *gin.Context) {
	var since *uint32
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		u := uint32(v)
		since = &u
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	contacts, lastMod, err := d.GetContacts(c.Request.Context(), since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "count": len(contacts), "last_mod": lastMod})
}

// GetChannel 频道配置
// @Router /api/channels/{idx} [get]
func (h *DeviceHandler) GetChannel(c *gin.Context) {
	idx, ok := channelParam(c)
	if !ok {
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	info, err := d.GetChannel(c.Request.Context(), idx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func publicKeyParam(c *gin.Context) ([]byte, bool) {
	key, err := buffer.FromHex(c.Param("key"))
	if err != nil || len(key) != command.PublicKeySize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid public key"})
		return nil, false
	}
	return key, true
}

// GetStatus 请求远端节点状态
// @Router /api/contacts/{key}/status [get]
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	key, ok := publicKeyParam(c)
	if !ok {
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	resp, err := d.StatusReq(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTelemetry 请求远端遥测并解码 CayenneLPP
// @Router /api/contacts/{key}/telemetry [get]
func (h *DeviceHandler) GetTelemetry(c *gin.Context) {
	key, ok := publicKeyParam(c)
	if !ok {
		return
	}
	d, ok := h.current(c)
	if !ok {
		return
	}
	resp, err := d.TelemetryReq(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	records := resp.Records()
	if records == nil {
		records = []lpp.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"pub_key_prefix": resp.PubKeyPrefix, "records": records})
}

// writeError 设备调用错误映射为 HTTP 状态码
func (h *DeviceHandler) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("device call failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code, "detail": err.Error()})
}

func classify(err error) (int, string) {
	var failed *companion.CommandFailedError
	switch {
	case errors.As(err, &failed):
		return http.StatusBadGateway, "command_failed"
	case errors.Is(err, companion.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, companion.ErrDisabled):
		return http.StatusForbidden, "disabled"
	case errors.Is(err, companion.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, companion.ErrClosed), errors.Is(err, companion.ErrNotStarted):
		return http.StatusServiceUnavailable, "disconnected"
	}
	return http.StatusInternalServerError, "internal"
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}

func channelParam(c *gin.Context) (uint8, bool) {
	v, err := strconv.ParseUint(c.Param("idx"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel index"})
		return 0, false
	}
	return uint8(v), true
}
