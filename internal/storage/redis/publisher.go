package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 10000

// Publisher 事件发布：Pub/Sub 实时推送 + Stream 留存最近事件
type Publisher struct {
	client       *Client
	prefix       string
	streamMaxLen int64
}

// NewPublisher 创建发布器；prefix 为空时使用 "meshcore"
func NewPublisher(client *Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "meshcore"
	}
	return &Publisher{client: client, prefix: prefix, streamMaxLen: defaultStreamMaxLen}
}

// Channel 事件类型对应的 Pub/Sub 频道：<prefix>:<kind>
func (p *Publisher) Channel(kind string) string { return p.prefix + ":" + kind }

// Stream 事件留存流：<prefix>:events
func (p *Publisher) Stream() string { return p.prefix + ":events" }

// Publish 同一管道内发布到频道并追加到留存流
func (p *Publisher) Publish(ctx context.Context, kind, id string, payload []byte) error {
	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.Channel(kind), payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream(),
		MaxLen: p.streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"id": id, "kind": kind, "data": payload},
	})
	_, err := pipe.Exec(ctx)
	return err
}

// Recent 读取留存流中最近 n 条事件（新在前）
func (p *Publisher) Recent(ctx context.Context, n int64) ([]redis.XMessage, error) {
	return p.client.XRevRangeN(ctx, p.Stream(), "+", "-", n).Result()
}
