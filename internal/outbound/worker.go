// Package outbound 待发队列消费：从 Redis Outbox 取出消息并通过当前设备连接发送。
package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
	redisstorage "github.com/taoyao-code/meshcore-bridge/internal/storage/redis"
)

const defaultInterval = 500 * time.Millisecond

// Queue 待发队列（redis.Outbox 满足该接口）
type Queue interface {
	Dequeue(ctx context.Context) (*redisstorage.OutboxMessage, error)
	MarkFailed(ctx context.Context, msg *redisstorage.OutboxMessage, cause error) error
}

// Sender 发送消息的设备连接（*companion.Client 满足该接口）
type Sender interface {
	SendTxtMsg(ctx context.Context, m companion.TextMessage) (*event.Sent, error)
	SendChannelTxtMsg(ctx context.Context, m companion.ChannelMessage) (*event.Sent, error)
}

// Worker Outbox 消费者。链路断开时不出队，消息留在队列中等待重连。
type Worker struct {
	queue    Queue
	logger   *zap.Logger
	interval time.Duration
	stopC    chan struct{}
	sender   func() Sender

	// 统计
	sent    atomic.Int64
	failed  atomic.Int64
	retried atomic.Int64
	dead    atomic.Int64
}

// NewWorker 创建 Worker；interval 为两次出队的最小间隔
func NewWorker(queue Queue, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		interval: interval,
		logger:   logger,
		stopC:    make(chan struct{}),
	}
}

// SetSender 设置获取当前连接的函数；返回 nil 表示链路断开
func (w *Worker) SetSender(fn func() Sender) {
	w.sender = fn
}

// Start 阻塞运行直到 ctx 取消或 Stop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopping")
			return
		case <-w.stopC:
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.processOne(ctx)
		}
	}
}

// Stop 停止Worker
func (w *Worker) Stop() {
	close(w.stopC)
}

// processOne 处理一条消息，返回是否取出了消息
func (w *Worker) processOne(ctx context.Context) bool {
	if w.sender == nil {
		return false
	}
	s := w.sender()
	if s == nil {
		return false
	}

	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.logger.Error("dequeue failed", zap.Error(err))
		return false
	}
	if msg == nil {
		return false
	}

	sent, err := w.send(ctx, s, msg)
	if err != nil {
		w.markFailed(ctx, msg, err)
		return true
	}

	w.sent.Add(1)
	fields := []zap.Field{
		zap.String("msg_id", msg.ID),
		zap.String("kind", string(msg.Kind)),
	}
	if sent != nil {
		fields = append(fields, zap.Uint32("expected_ack", sent.ExpectedAckCRC))
	}
	w.logger.Info("outbox message sent", fields...)
	return true
}

func (w *Worker) send(ctx context.Context, s Sender, msg *redisstorage.OutboxMessage) (*event.Sent, error) {
	switch msg.Kind {
	case redisstorage.OutboxDirect:
		recipient, err := buffer.FromHex(msg.Recipient)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient: %v", companion.ErrInvalidArgument, err)
		}
		return s.SendTxtMsg(ctx, companion.TextMessage{
			Type:      command.TxtPlain,
			Attempt:   uint8(min(msg.Retries, 3)),
			Recipient: recipient,
			Text:      msg.Text,
		})
	case redisstorage.OutboxChannel:
		return s.SendChannelTxtMsg(ctx, companion.ChannelMessage{
			Type:    command.TxtPlain,
			Channel: msg.Channel,
			Text:    msg.Text,
		})
	}
	return nil, fmt.Errorf("%w: unknown outbox kind %q", companion.ErrInvalidArgument, msg.Kind)
}

// markFailed 参数错误直接进入死信，其他错误按重试次数重新入队
func (w *Worker) markFailed(ctx context.Context, msg *redisstorage.OutboxMessage, cause error) {
	w.failed.Add(1)
	if errors.Is(cause, companion.ErrInvalidArgument) {
		msg.Retries = msg.MaxRetry
	}
	if err := w.queue.MarkFailed(ctx, msg, cause); err != nil {
		w.logger.Error("mark failed error",
			zap.String("msg_id", msg.ID),
			zap.Error(err))
		return
	}

	// MarkFailed 已递增 Retries
	if msg.Retries >= msg.MaxRetry {
		w.dead.Add(1)
		w.logger.Warn("message moved to dead queue",
			zap.String("msg_id", msg.ID),
			zap.Error(cause))
		return
	}
	w.retried.Add(1)
	w.logger.Debug("message retrying",
		zap.String("msg_id", msg.ID),
		zap.Int("retry", msg.Retries),
		zap.Error(cause))
}

// Stats 获取统计信息
func (w *Worker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sent":       w.sent.Load(),
		"failed":     w.failed.Load(),
		"retried":    w.retried.Load(),
		"dead_count": w.dead.Load(),
	}
}
