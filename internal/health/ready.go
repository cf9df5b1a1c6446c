package health

import "sync/atomic"

// Readiness 就绪状态聚合：设备链路必须在线，归档库仅在启用时参与
type Readiness struct {
	linkReady atomic.Bool
	dbReady   atomic.Bool
}

// New 创建就绪状态；归档库默认视为就绪（未启用）
func New() *Readiness {
	r := &Readiness{}
	r.dbReady.Store(true)
	return r
}

func (r *Readiness) SetLinkReady(v bool) { r.linkReady.Store(v) }
func (r *Readiness) SetDBReady(v bool)   { r.dbReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.linkReady.Load() && r.dbReady.Load()
}
