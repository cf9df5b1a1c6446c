package sink

import (
	"context"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/lpp"
	"github.com/taoyao-code/meshcore-bridge/internal/storage"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
)

// ArchiveSink 将消息、联系人与遥测写入数据库；其他事件忽略
type ArchiveSink struct {
	repo storage.Archive
}

func NewArchiveSink(repo storage.Archive) *ArchiveSink { return &ArchiveSink{repo: repo} }

func (s *ArchiveSink) Name() string { return "archive" }

func (s *ArchiveSink) Deliver(ctx context.Context, env *Envelope) error {
	switch ev := env.Event.(type) {
	case *event.ContactMsgRecv:
		prefix := ev.PubKeyPrefix.String()
		return s.repo.SaveMessage(ctx, &models.Message{
			EventID:         env.ID,
			ConnID:          env.ConnID,
			Kind:            env.Kind,
			PubKeyPrefix:    &prefix,
			PathLen:         int16(ev.PathLen),
			TxtType:         int16(ev.TxtType),
			SenderTimestamp: int64(ev.SenderTimestamp),
			Text:            ev.Text,
			ReceivedAt:      env.Time,
		})
	case *event.ChannelMsgRecv:
		ch := int16(ev.ChannelIdx)
		return s.repo.SaveMessage(ctx, &models.Message{
			EventID:         env.ID,
			ConnID:          env.ConnID,
			Kind:            env.Kind,
			ChannelIdx:      &ch,
			PathLen:         int16(ev.PathLen),
			TxtType:         int16(ev.TxtType),
			SenderTimestamp: int64(ev.SenderTimestamp),
			Text:            ev.Text,
			ReceivedAt:      env.Time,
		})
	case *event.Contact:
		return s.repo.UpsertContact(ctx, ContactModel(ev))
	case *event.NewAdvert:
		return s.repo.UpsertContact(ctx, ContactModel(&ev.Contact))
	case *event.TelemetryResponse:
		return s.repo.SaveTelemetry(ctx, TelemetryRows(env, ev))
	}
	return nil
}

func (s *ArchiveSink) Close() error { return nil }

// ContactModel 联系人事件转为表记录
func ContactModel(c *event.Contact) *models.Contact {
	m := &models.Contact{
		PublicKey:  c.PublicKey.String(),
		Type:       int16(c.Type),
		Flags:      int16(c.Flags),
		OutPathLen: int16(c.OutPathLen),
		AdvName:    c.AdvName,
		LastAdvert: int64(c.LastAdvert),
		AdvLat:     c.AdvLat,
		AdvLon:     c.AdvLon,
		LastMod:    int64(c.LastMod),
	}
	if c.OutPathLen > 0 {
		n := int(c.OutPathLen)
		if n > len(c.OutPath) {
			n = len(c.OutPath)
		}
		p := c.OutPath[:n].String()
		m.OutPath = &p
	}
	return m
}

// TelemetryRows 每条 LPP 记录一行
func TelemetryRows(env *Envelope, ev *event.TelemetryResponse) []models.Telemetry {
	records := ev.Records()
	rows := make([]models.Telemetry, 0, len(records))
	prefix := ev.PubKeyPrefix.String()
	for _, r := range records {
		row := models.Telemetry{
			EventID:      env.ID,
			PubKeyPrefix: prefix,
			Channel:      int16(r.Channel),
			SensorType:   r.Type.String(),
			ReceivedAt:   env.Time,
		}
		if r.Type == lpp.TypeGPS && r.GPS != nil {
			lat, lon, alt := r.GPS.Latitude, r.GPS.Longitude, r.GPS.Altitude
			row.Latitude, row.Longitude, row.Altitude = &lat, &lon, &alt
		} else {
			v := r.Value
			row.Value = &v
		}
		rows = append(rows, row)
	}
	return rows
}
