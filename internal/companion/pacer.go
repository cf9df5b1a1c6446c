package companion

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Pacer 基于令牌桶的命令发送节流，避免压垮设备的串口缓冲
type Pacer struct {
	limiter      *rate.Limiter
	perSec       float64
	burst        int
	allowedCount atomic.Int64
	waitedCount  atomic.Int64
}

// NewPacer 创建节流器
// perSec<=0 表示不限速
func NewPacer(perSec float64, burst int) *Pacer {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		perSec:  perSec,
		burst:   burst,
	}
}

// Wait 阻塞直到可以发送下一条命令
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.limiter.Allow() {
		p.waitedCount.Add(1)
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	p.allowedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		PerSecond:    p.perSec,
		Burst:        p.burst,
		AllowedTotal: p.allowedCount.Load(),
		WaitedTotal:  p.waitedCount.Load(),
	}
}

// PacerStats 节流统计
type PacerStats struct {
	PerSecond    float64 `json:"per_second"`
	Burst        int     `json:"burst"`
	AllowedTotal int64   `json:"allowed_total"`
	WaitedTotal  int64   `json:"waited_total"`
}
