package database

import (
	"fmt"
	"time"

	"invoicing/internal/config"
	"invoicing/internal/logger"
	"invoicing/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenMySQL 初始化 MySQL 连接
// 时间统一按 UTC 存取，footprint 依赖读回的时间与写入时一致
func OpenMySQL(cfg *config.MySQLConfig, log *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), GormConfig(log, cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("MySQL 连接成功", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return db, nil
}

// GormConfig 公共 gorm 配置
func GormConfig(log *zap.Logger, level string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLogger(log, logger.GormLevel(level)),
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Second)
		},
	}
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Coupon{},
		&model.Setting{},
		&model.Account{},
		&model.WalletTransaction{},
		&model.Reservation{},
		&model.UserTraining{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}
