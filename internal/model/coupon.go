package model

import (
	"fmt"
	"time"

	"invoicing/internal/domain/errs"
)

// CouponType 优惠券类型，只有两种
type CouponType uint8

const (
	CouponPercentOff CouponType = iota + 1
	CouponAmountOff
)

func (t CouponType) String() string {
	switch t {
	case CouponPercentOff:
		return "percent_off"
	case CouponAmountOff:
		return "amount_off"
	}
	return "unknown"
}

// ParseCouponType 把库里存的字符串转成枚举
func ParseCouponType(s string) (CouponType, error) {
	switch s {
	case "percent_off":
		return CouponPercentOff, nil
	case "amount_off":
		return CouponAmountOff, nil
	}
	return 0, fmt.Errorf("%w: %q", errs.ErrInvalidCouponType, s)
}

type Coupon struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type       string    `gorm:"type:varchar(16);not null" json:"type"`
	PercentOff int64     `gorm:"not null;default:0" json:"percent_off"` // 0-100
	AmountOff  int64     `gorm:"not null;default:0" json:"amount_off"`  // 最小货币单位
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

func (c *Coupon) Kind() (CouponType, error) {
	return ParseCouponType(c.Type)
}

// Validate 百分比必须在 0-100 之间，固定金额不能为负
func (c *Coupon) Validate() error {
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	switch {
	case kind == CouponPercentOff && (c.PercentOff < 0 || c.PercentOff > 100):
		return fmt.Errorf("%w: percent_off=%d", errs.ErrInvalidCoupon, c.PercentOff)
	case kind == CouponAmountOff && c.AmountOff < 0:
		return fmt.Errorf("%w: amount_off=%d", errs.ErrInvalidCoupon, c.AmountOff)
	}
	return nil
}
