package sink

import (
	"context"
)

// StreamPublisher redis.Publisher 的投递接口
type StreamPublisher interface {
	Publish(ctx context.Context, kind, id string, payload []byte) error
}

// RedisSink 发布到 <prefix>:<kind> 频道并追加到留存流
type RedisSink struct {
	pub StreamPublisher
}

func NewRedisSink(pub StreamPublisher) *RedisSink { return &RedisSink{pub: pub} }

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, env *Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, env.Kind, env.ID, payload)
}

// Close 连接由调用方持有
func (s *RedisSink) Close() error { return nil }
