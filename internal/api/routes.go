package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/api/middleware"
	"github.com/taoyao-code/meshcore-bridge/internal/storage"
)

// Deps 路由依赖；Outbox 与 Archive 为空时不注册对应路由
type Deps struct {
	Device    DeviceProvider
	Outbox    Outbox
	Archive   storage.Archive
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	Logger    *zap.Logger
}

// RegisterRoutes 注册 /api 路由
func RegisterRoutes(r *gin.Engine, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := r.Group("/api")
	g.Use(middleware.RateLimit(deps.RateLimit), middleware.APIKeyAuth(deps.Auth, logger))

	endpoints := 0
	if deps.Device != nil {
		h := NewDeviceHandler(deps.Device, logger)
		g.GET("/device/info", h.GetInfo)
		g.GET("/device/battery", h.GetBattery)
		g.GET("/device/time", h.GetTime)
		g.POST("/device/time", h.SetTime)
		g.POST("/device/advert", h.SendAdvert)
		g.GET("/contacts", h.ListContacts)
		g.GET("/contacts/:key/status", h.GetStatus)
		g.GET("/contacts/:key/telemetry", h.GetTelemetry)
		g.GET("/channels/:idx", h.GetChannel)
		g.POST("/channels/:idx/messages", h.SendChannelMessage)
		g.POST("/messages", h.SendMessage)
		endpoints += 11
	}
	if deps.Outbox != nil {
		h := NewOutboxHandler(deps.Outbox, logger)
		g.POST("/outbox", h.Enqueue)
		g.GET("/outbox/stats", h.Stats)
		endpoints += 2
	}
	if deps.Archive != nil {
		h := NewArchiveHandler(deps.Archive, logger)
		g.GET("/archive/messages", h.ListMessages)
		g.GET("/archive/contacts", h.ListContacts)
		endpoints += 2
	}

	logger.Info("api routes registered", zap.Int("endpoints", endpoints))
}
