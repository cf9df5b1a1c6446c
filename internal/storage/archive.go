package storage

import (
	"context"
	"time"

	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
)

// Archive 消息、联系人与遥测的持久化接口
type Archive interface {
	// WithTx 在事务中执行 fn；已处于事务时直接复用
	WithTx(ctx context.Context, fn func(Archive) error) error

	// SaveMessage 按 EventID 幂等写入
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error)

	// UpsertContact 以公钥为键插入或更新
	UpsertContact(ctx context.Context, c *models.Contact) error
	ListContacts(ctx context.Context) ([]models.Contact, error)
	GetContactByPrefix(ctx context.Context, prefixHex string) (*models.Contact, error)

	SaveTelemetry(ctx context.Context, rows []models.Telemetry) error
}

// MessageQuery 消息查询条件
type MessageQuery struct {
	Channel *int16
	Since   time.Time
	Limit   int
}
