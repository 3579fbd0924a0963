package db

import (
	"context"
	"fmt"

	"github.com/quailyquaily/threadbot/db/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to SQLite, applies pool settings and, when enabled, migrates the
// canvas tables.
func Open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite dsn: %w", err)
	}
	gdb, err := gorm.Open(sqlite.Open(withPragmas(dsn, cfg.SQLite)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	}
	if cfg.AutoMigrate {
		if err := gdb.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return gdb, nil
}
