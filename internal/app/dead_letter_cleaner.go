package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DeadTrimmer 死信裁剪（redis.Outbox 满足该接口）
type DeadTrimmer interface {
	TrimDead(ctx context.Context, keep int64) (int64, error)
}

// DeadLetterCleaner 定期裁剪 Outbox 死信，只保留最新的 keep 条
type DeadLetterCleaner struct {
	queue         DeadTrimmer
	logger        *zap.Logger
	checkInterval time.Duration
	keep          int64

	// 统计
	statsCleaned int64
}

// NewDeadLetterCleaner 创建死信清理器
func NewDeadLetterCleaner(queue DeadTrimmer, logger *zap.Logger) *DeadLetterCleaner {
	return &DeadLetterCleaner{
		queue:         queue,
		logger:        logger,
		checkInterval: time.Hour,
		keep:          1000,
	}
}

// Start 阻塞运行直到 ctx 取消
func (c *DeadLetterCleaner) Start(ctx context.Context) {
	c.logger.Info("dead letter cleaner started",
		zap.Duration("check_interval", c.checkInterval),
		zap.Int64("keep", c.keep))

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("dead letter cleaner stopped",
				zap.Int64("total_cleaned", c.statsCleaned))
			return
		case <-ticker.C:
			c.clean(ctx)
		}
	}
}

func (c *DeadLetterCleaner) clean(ctx context.Context) {
	cleaned, err := c.queue.TrimDead(ctx, c.keep)
	if err != nil {
		c.logger.Error("failed to trim dead letters", zap.Error(err))
		return
	}
	if cleaned > 0 {
		c.statsCleaned += cleaned
		c.logger.Info("trimmed dead letters",
			zap.Int64("cleaned", cleaned),
			zap.Int64("total_cleaned", c.statsCleaned))
	}
}

// Stats 获取统计信息
func (c *DeadLetterCleaner) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_cleaned": c.statsCleaned,
	}
}
