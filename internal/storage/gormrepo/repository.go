package gormrepo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/meshcore-bridge/internal/storage"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
)

const defaultListLimit = 100

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Repository 基于 GORM 的 Archive 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 Archive 实例。
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ storage.Archive = (*Repository)(nil)

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.Archive) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// SaveMessage 按 event_id 去重，重复投递不报错。
func (r *Repository) SaveMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(msg).Error
}

// ListMessages 按接收时间倒序。
func (r *Repository) ListMessages(ctx context.Context, q storage.MessageQuery) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	tx := r.db.WithContext(ctx).Model(&models.Message{})
	if q.Channel != nil {
		tx = tx.Where("channel_idx = ?", *q.Channel)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("received_at >= ?", q.Since)
	}
	var out []models.Message
	err := tx.Order("received_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// UpsertContact 以 public_key 为键，冲突时刷新可变字段。
func (r *Repository) UpsertContact(ctx context.Context, c *models.Contact) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "public_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"type":         gorm.Expr("excluded.type"),
				"flags":        gorm.Expr("excluded.flags"),
				"out_path_len": gorm.Expr("excluded.out_path_len"),
				"out_path":     gorm.Expr("excluded.out_path"),
				"adv_name":     gorm.Expr("excluded.adv_name"),
				"last_advert":  gorm.Expr("GREATEST(contacts.last_advert, excluded.last_advert)"),
				"adv_lat":      gorm.Expr("excluded.adv_lat"),
				"adv_lon":      gorm.Expr("excluded.adv_lon"),
				"last_mod":     gorm.Expr("GREATEST(contacts.last_mod, excluded.last_mod)"),
				"updated_at":   gorm.Expr("NOW()"),
			}),
		}).
		Create(c).Error
}

// ListContacts 按名称排序。
func (r *Repository) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var out []models.Contact
	err := r.db.WithContext(ctx).Order("adv_name").Find(&out).Error
	return out, err
}

// GetContactByPrefix 按公钥 hex 前缀查找联系人（消息只携带 6 字节前缀）。
func (r *Repository) GetContactByPrefix(ctx context.Context, prefixHex string) (*models.Contact, error) {
	var c models.Contact
	err := r.db.WithContext(ctx).
		Where("public_key LIKE ?", strings.ToLower(prefixHex)+"%").
		Order("last_advert DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveTelemetry 批量写入，(event_id, channel, sensor_type) 冲突时忽略。
func (r *Repository) SaveTelemetry(ctx context.Context, rows []models.Telemetry) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 100).Error
}
