package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OutboxKind 待发消息类型
type OutboxKind string

const (
	OutboxDirect  OutboxKind = "direct"
	OutboxChannel OutboxKind = "channel"
)

// OutboxMessage 外部系统投递、由网桥发往网状网络的文本消息
type OutboxMessage struct {
	ID        string     `json:"id"`
	Kind      OutboxKind `json:"kind"`
	Recipient string     `json:"recipient,omitempty"` // 私聊：公钥（hex，至少 6 字节前缀）
	Channel   uint8      `json:"channel,omitempty"`
	Text      string     `json:"text"`
	Priority  int        `json:"priority"` // 0-9，9 最高
	Retries   int        `json:"retries"`
	MaxRetry  int        `json:"max_retry"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Outbox Redis 待发队列：Sorted Set 按优先级与入队时间排序，超过重试次数进入死信 List
type Outbox struct {
	client  *Client
	queue   string
	deadKey string
}

// NewOutbox 创建待发队列；键为 <prefix>:outbox 与 <prefix>:outbox:dead
func NewOutbox(client *Client, prefix string) *Outbox {
	if prefix == "" {
		prefix = "meshcore"
	}
	return &Outbox{client: client, queue: prefix + ":outbox", deadKey: prefix + ":outbox:dead"}
}

// score 优先级高的排前面，同优先级先进先出
func score(msg *OutboxMessage) float64 {
	return float64(9-msg.Priority)*1e12 + float64(msg.CreatedAt.UnixMilli())
}

// Enqueue 入队
func (q *Outbox) Enqueue(ctx context.Context, msg *OutboxMessage) error {
	if msg.ID == "" {
		return errors.New("outbox message id is empty")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.Priority = min(max(msg.Priority, 0), 9)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.client.ZAdd(ctx, q.queue, redis.Z{
		Score:  score(msg),
		Member: msg.ID + ":" + string(data),
	}).Err()
}

// Dequeue 取出一条消息；队列为空返回 nil, nil
func (q *Outbox) Dequeue(ctx context.Context) (*OutboxMessage, error) {
	result, err := q.client.ZPopMin(ctx, q.queue, 1).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	member, ok := result[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", result[0].Member)
	}
	return parseMember(member)
}

// MarkFailed 未超过重试次数则重新入队，否则进入死信队列
func (q *Outbox) MarkFailed(ctx context.Context, msg *OutboxMessage, cause error) error {
	msg.Retries++
	msg.UpdatedAt = time.Now()
	if msg.Retries < msg.MaxRetry {
		return q.Enqueue(ctx, msg)
	}
	dead := map[string]interface{}{
		"message":   msg,
		"error":     cause.Error(),
		"failed_at": msg.UpdatedAt,
	}
	data, err := json.Marshal(dead)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.deadKey, data).Err()
}

// PendingCount 待发数量
func (q *Outbox) PendingCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queue).Result()
}

// DeadCount 死信数量
func (q *Outbox) DeadCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey).Result()
}

// TrimDead 死信只保留最新的 keep 条，返回删除数量
func (q *Outbox) TrimDead(ctx context.Context, keep int64) (int64, error) {
	n, err := q.client.LLen(ctx, q.deadKey).Result()
	if err != nil {
		return 0, err
	}
	if n <= keep {
		return 0, nil
	}
	if err := q.client.LTrim(ctx, q.deadKey, 0, keep-1).Err(); err != nil {
		return 0, err
	}
	return n - keep, nil
}

// parseMember 格式 "ID:JSON"
func parseMember(member string) (*OutboxMessage, error) {
	_, data, ok := strings.Cut(member, ":")
	if !ok {
		return nil, fmt.Errorf("invalid outbox member")
	}
	var msg OutboxMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
