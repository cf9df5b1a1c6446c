package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
	"github.com/taoyao-code/meshcore-bridge/internal/migrate"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/migrations"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接，按需执行内置迁移，并在同一连接池上打开 GORM
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, *gorm.DB, error) {
	dbpool, err := pg.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err = (migrate.Runner{FS: migrations.FS, Logger: log}).Up(ctx, dbpool); err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, nil, err
		}
		log.Info("db migrations applied")
	}
	db, err := pg.OpenGorm(dbpool, log)
	if err != nil {
		dbpool.Close()
		return nil, nil, err
	}
	return dbpool, db, nil
}
