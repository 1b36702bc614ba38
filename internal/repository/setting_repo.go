package repository

import (
	"context"
	"errors"

	"invoicing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get 返回设置值，第二个返回值表示是否存在
func (r *SettingRepository) Get(ctx context.Context, name string) (string, bool, error) {
	var setting model.Setting
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

// Set 按 name 插入或覆盖
func (r *SettingRepository) Set(ctx context.Context, name, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model.Setting{Name: name, Value: value}).Error
}
