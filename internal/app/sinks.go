package app

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
	"github.com/taoyao-code/meshcore-bridge/internal/sink"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/gormrepo"
	redisstorage "github.com/taoyao-code/meshcore-bridge/internal/storage/redis"
)

// archivedKinds 归档 sink 关心的事件
var archivedKinds = []string{
	"contact_msg_recv",
	"channel_msg_recv",
	"contact",
	"new_advert",
	"telemetry_response",
}

// NewSinks 按配置组装外发目标；redisClient 与 db 为空时跳过对应 sink
func NewSinks(cfg *cfgpkg.Config, instanceID string, redisClient *redisstorage.Client, db *gorm.DB, log *zap.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink
	if redisClient != nil {
		sinks = append(sinks, sink.NewRedisSink(redisstorage.NewPublisher(redisClient, cfg.Redis.ChannelPrefix)))
	}
	if cfg.MQTT.Enabled {
		mcfg := cfg.MQTT
		if mcfg.ClientID == "" {
			mcfg.ClientID = instanceID
		}
		m, err := sink.DialMQTT(mcfg, log.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if cfg.Webhook.Enabled {
		w, err := sink.NewWebhookSink(sink.WebhookConfig{
			URL:     cfg.Webhook.URL,
			APIKey:  cfg.Webhook.APIKey,
			Secret:  cfg.Webhook.Secret,
			Retries: cfg.Webhook.Retries,
			Client:  &http.Client{Timeout: cfg.Webhook.Timeout},
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink.OnlyKinds(w, cfg.Webhook.Kinds...))
	}
	if db != nil {
		sinks = append(sinks, sink.OnlyKinds(sink.NewArchiveSink(gormrepo.New(db)), archivedKinds...))
	}
	return sinks, nil
}
