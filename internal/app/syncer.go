package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/event"
)

// MessageSyncer 收到 MsgWaiting 后拉取设备排队消息。
// 拉取到的消息作为事件经总线发布，由外发 Pump 投递；这里只负责触发与统计。
type MessageSyncer struct {
	logger       *zap.Logger
	pollInterval time.Duration // 兜底轮询，0 表示只靠 MsgWaiting

	// 统计
	statsRuns     atomic.Int64
	statsMessages atomic.Int64
}

// NewMessageSyncer 创建消息同步器
func NewMessageSyncer(logger *zap.Logger, pollInterval time.Duration) *MessageSyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageSyncer{logger: logger, pollInterval: pollInterval}
}

// Hook 作为 Supervisor 连接钩子：立即同步一次，之后在独立协程中按通知同步，连接断开时退出
func (s *MessageSyncer) Hook(ctx context.Context, c *companion.Client) {
	// 缓冲 1：同步进行中到达的多次通知合并为一次
	wake := make(chan struct{}, 1)
	c.Subscribe(func(event.Event) {
		select {
		case wake <- struct{}{}:
		default:
		}
	}, event.KindMsgWaiting)

	s.syncOnce(ctx, c)
	go s.loop(ctx, c, wake)
}

func (s *MessageSyncer) loop(ctx context.Context, c *companion.Client, wake <-chan struct{}) {
	var tick <-chan time.Time
	if s.pollInterval > 0 {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			s.logger.Debug("message syncer stopped",
				zap.String("conn_id", c.ID()),
				zap.Int64("runs", s.statsRuns.Load()),
				zap.Int64("messages", s.statsMessages.Load()))
			return
		case <-wake:
			s.syncOnce(ctx, c)
		case <-tick:
			s.syncOnce(ctx, c)
		}
	}
}

// syncOnce 拉取直到设备返回 NoMoreMessages
func (s *MessageSyncer) syncOnce(ctx context.Context, c *companion.Client) {
	s.statsRuns.Add(1)
	msgs, err := c.SyncAllMessages(ctx)
	s.statsMessages.Add(int64(len(msgs)))
	if err != nil {
		s.logger.Warn("message sync failed",
			zap.String("conn_id", c.ID()),
			zap.Int("fetched", len(msgs)),
			zap.Error(err))
		return
	}
	if len(msgs) > 0 {
		s.logger.Info("messages synced", zap.String("conn_id", c.ID()), zap.Int("count", len(msgs)))
	}
}
