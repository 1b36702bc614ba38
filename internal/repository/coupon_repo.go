package repository

import (
	"context"
	"errors"

	"invoicing/internal/model"

	"gorm.io/gorm"
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	if err := coupon.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(coupon).Error
}

// GetByID 不存在时返回 nil, nil
func (r *CouponRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Coupon, error) {
	if tx == nil {
		tx = r.db
	}
	var coupon model.Coupon
	err := tx.WithContext(ctx).Where("id = ?", id).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}
