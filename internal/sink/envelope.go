// Package sink 将设备事件封装为信封并异步投递到外部系统（Redis、MQTT、Webhook、归档库）。
package sink

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

// Envelope 外发事件信封
type Envelope struct {
	ID     string      `json:"id"`
	ConnID string      `json:"conn_id"`
	Kind   string      `json:"kind"`
	Code   uint16      `json:"code"`
	Time   time.Time   `json:"time"`
	Event  event.Event `json:"data"`
}

// NewEnvelope 为事件分配唯一 ID
func NewEnvelope(connID string, ev event.Event, at time.Time) *Envelope {
	return &Envelope{
		ID:     uuid.NewString(),
		ConnID: connID,
		Kind:   ev.Kind().String(),
		Code:   uint16(ev.Kind()),
		Time:   at.UTC(),
		Event:  ev,
	}
}

// Marshal JSON 编码
func (e *Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }
