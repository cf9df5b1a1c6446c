package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
)

// ErrMQTTTimeout broker 未在期限内确认
var ErrMQTTTimeout = errors.New("mqtt publish timeout")

// mqttPublisher mqtt.Client 中 MQTTSink 用到的部分
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink 发布到 <prefix>/<conn_id>/<kind>，连接状态发布到 <prefix>/<client_id>/status（遗嘱消息）
type MQTTSink struct {
	m      mqttPublisher
	prefix string
	qos    byte
	retain bool
	log    *zap.Logger
}

// DialMQTT 连接 broker，启用自动重连
func DialMQTT(cfg cfgpkg.MQTTConfig, log *zap.Logger) (*MQTTSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "meshcore"
	}
	statusTopic := fmt.Sprintf("%s/%s/status", prefix, cfg.ClientID)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetBinaryWill(statusTopic, []byte("offline"), 1, true).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info("mqtt connected", zap.String("broker", cfg.Broker))
			c.Publish(statusTopic, 1, true, []byte("online"))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		log.Warn("mqtt connect pending, retrying in background", zap.String("broker", cfg.Broker))
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTSink(c, prefix, cfg.QoS, cfg.Retain, log), nil
}

func newMQTTSink(m mqttPublisher, prefix string, qos byte, retain bool, log *zap.Logger) *MQTTSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTTSink{m: m, prefix: prefix, qos: qos, retain: retain, log: log}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic 事件主题
func (s *MQTTSink) Topic(env *Envelope) string {
	return s.prefix + "/" + env.ConnID + "/" + env.Kind
}

func (s *MQTTSink) Deliver(ctx context.Context, env *Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	tok := s.m.Publish(s.Topic(env), s.qos, s.retain, payload)
	if s.qos == 0 {
		return nil
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrMQTTTimeout, ctx.Err())
	}
}

func (s *MQTTSink) Close() error {
	s.m.Disconnect(uint((250 * time.Millisecond).Milliseconds()))
	return nil
}
