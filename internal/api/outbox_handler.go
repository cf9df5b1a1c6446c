package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/protocol/buffer"
	"github.com/taoyao-code/meshcore-bridge/internal/protocol/command"
	redisstorage "github.com/taoyao-code/meshcore-bridge/internal/storage/redis"
)

const defaultOutboxRetries = 3

// Outbox 待发队列（redis.Outbox 满足该接口）
type Outbox interface {
	Enqueue(ctx context.Context, msg *redisstorage.OutboxMessage) error
	PendingCount(ctx context.Context) (int64, error)
	DeadCount(ctx context.Context) (int64, error)
}

// OutboxHandler 待发队列API处理器
type OutboxHandler struct {
	outbox Outbox
	logger *zap.Logger
	now    func() time.Time
}

func NewOutboxHandler(outbox Outbox, logger *zap.Logger) *OutboxHandler {
	return &OutboxHandler{outbox: outbox, logger: logger, now: time.Now}
}

// EnqueueRequest 入队请求；kind=direct 需 recipient，kind=channel 需 channel
type EnqueueRequest struct {
	Kind      string `json:"kind" binding:"required,oneof=direct channel"`
	Recipient string `json:"recipient"`
	Channel   *uint8 `json:"channel"`
	Text      string `json:"text" binding:"required"`
	Priority  int    `json:"priority" binding:"min=0,max=9"`
	MaxRetry  *int   `json:"max_retry"`
}

// Enqueue 消息入队，链路恢复后由后台发送
// @Router /api/outbox [post]
func (h *OutboxHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	now := h.now()
	msg := &redisstorage.OutboxMessage{
		ID:        uuid.NewString(),
		Kind:      redisstorage.OutboxKind(req.Kind),
		Text:      req.Text,
		Priority:  req.Priority,
		MaxRetry:  defaultOutboxRetries,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.MaxRetry != nil {
		msg.MaxRetry = *req.MaxRetry
	}
	switch msg.Kind {
	case redisstorage.OutboxDirect:
		key, err := buffer.FromHex(req.Recipient)
		if err != nil || len(key) < command.PubKeyPrefixSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient"})
			return
		}
		msg.Recipient = buffer.ToHex(key)
	case redisstorage.OutboxChannel:
		if req.Channel == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel required"})
			return
		}
		msg.Channel = *req.Channel
	}

	if err := h.outbox.Enqueue(c.Request.Context(), msg); err != nil {
		h.logger.Error("outbox enqueue failed", zap.String("id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "kind": msg.Kind, "priority": msg.Priority})
}

// Stats 队列长度
// @Router /api/outbox/stats [get]
func (h *OutboxHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	pending, err := h.outbox.PendingCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query outbox"})
		return
	}
	dead, err := h.outbox.DeadCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query outbox"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "dead": dead})
}
