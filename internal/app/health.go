package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/meshcore-bridge/internal/health"
)

// deviceIdleWarn 超过该时长无任何上行事件视为降级
const deviceIdleWarn = 10 * time.Minute

// NewHealthAggregator 创建健康检查聚合器；设备链路检查始终存在，数据库可选
func NewHealthAggregator(sup *Supervisor, dbpool *pgxpool.Pool) *health.Aggregator {
	agg := health.NewAggregator(health.NewDeviceChecker(sup.Status, deviceIdleWarn))
	if dbpool != nil {
		agg.AddChecker(health.NewDatabaseChecker(dbpool))
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
