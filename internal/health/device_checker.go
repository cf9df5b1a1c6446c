package health

import (
	"context"
	"time"
)

// LinkStatus 设备链路快照
type LinkStatus struct {
	Connected    bool
	Since        time.Time // 最近一次连接/断开的时间
	LastEventAt  time.Time
	Reconnects   int64
	BreakerState string
	Firmware     string
}

// DeviceChecker 设备链路健康检查器
type DeviceChecker struct {
	status   func() LinkStatus
	idleWarn time.Duration
	now      func() time.Time
}

// NewDeviceChecker status 提供当前链路快照；idleWarn>0 时，长时间无上行事件视为降级
func NewDeviceChecker(status func() LinkStatus, idleWarn time.Duration) *DeviceChecker {
	return &DeviceChecker{status: status, idleWarn: idleWarn, now: time.Now}
}

func (c *DeviceChecker) Name() string { return "device" }

func (c *DeviceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	s := c.status()

	details := map[string]interface{}{
		"connected":  s.Connected,
		"reconnects": s.Reconnects,
	}
	if !s.Since.IsZero() {
		details["since"] = s.Since
	}
	if !s.LastEventAt.IsZero() {
		details["last_event_at"] = s.LastEventAt
	}
	if s.BreakerState != "" {
		details["breaker_state"] = s.BreakerState
	}
	if s.Firmware != "" {
		details["firmware"] = s.Firmware
	}

	result := CheckResult{Status: StatusHealthy, Message: "ok", Details: details}
	switch {
	case !s.Connected:
		result.Status, result.Message = StatusUnhealthy, "device link down"
	case c.idleWarn > 0 && !s.LastEventAt.IsZero() && c.now().Sub(s.LastEventAt) > c.idleWarn:
		result.Status, result.Message = StatusDegraded, "no device events recently"
	}
	result.Latency = time.Since(start)
	return result
}
