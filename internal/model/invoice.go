package model

import (
	"time"
)

// InvoiceKind 区分普通发票和退款单（avoir），两者共用同一张表
type InvoiceKind string

const (
	InvoiceKindInvoice InvoiceKind = "invoice"
	InvoiceKindAvoir   InvoiceKind = "avoir"
)

const (
	InvoicedTypeReservation  = "Reservation"
	InvoicedTypeSubscription = "Subscription"
	InvoicedTypeOrder        = "Order"
)

// AvoirMode 退款方式
type AvoirMode string

const (
	AvoirModeNone     AvoirMode = "none"
	AvoirModeCash     AvoirMode = "cash"
	AvoirModeCheque   AvoirMode = "cheque"
	AvoirModeTransfer AvoirMode = "transfer"
	AvoirModeCard     AvoirMode = "card"
	AvoirModeWallet   AvoirMode = "wallet"
)

func (m AvoirMode) IsValid() bool {
	switch m {
	case AvoirModeNone, AvoirModeCash, AvoirModeCheque, AvoirModeTransfer, AvoirModeCard, AvoirModeWallet:
		return true
	}
	return false
}

// Invoice 发票表
//
// 【重要】发票是财务凭证：
// 1. 只追加，不删除
// 2. Reference 和 Footprint 创建时写入一次，之后永不修改
// 3. Footprint 覆盖除 footprint、updated_at 以外的全部字段，并串联上一张发票的 footprint
type Invoice struct {
	ID                int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind              InvoiceKind `gorm:"type:varchar(16);index;not null" json:"kind"`
	OriginalInvoiceID *int64      `gorm:"index" json:"original_invoice_id,omitempty"` // 退款单指向原发票
	UserID            int64       `gorm:"index;not null" json:"user_id"`
	Reference         *string     `gorm:"type:varchar(64);index" json:"reference"` // 退款单为空；模板可能循环计数，不要求唯一
	Total             int64       `gorm:"not null" json:"total"`                          // 最小货币单位
	WalletAmount      *int64      `json:"wallet_amount,omitempty"`
	CouponID          *int64      `gorm:"index" json:"coupon_id,omitempty"`
	PaymentIntentID   string      `gorm:"type:varchar(128);not null;default:''" json:"payment_intent_id,omitempty"` // 线上支付流水号
	InvoicedType      string      `gorm:"type:varchar(32);not null;default:''" json:"invoiced_type"`
	InvoicedID        *int64      `json:"invoiced_id,omitempty"`
	AvoirMode         AvoirMode   `gorm:"type:varchar(16);not null;default:''" json:"avoir_mode,omitempty"`
	Description       string      `gorm:"type:varchar(512);not null;default:''" json:"description"`
	Footprint         string      `gorm:"type:varchar(128);not null;default:''" json:"footprint"`
	CreatedAt         time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

func (Invoice) TableName() string {
	return "invoice"
}

func (i *Invoice) IsAvoir() bool {
	return i.Kind == InvoiceKindAvoir
}

// IsOnlinePayment 是否通过线上支付
func (i *Invoice) IsOnlinePayment() bool {
	return i.PaymentIntentID != ""
}

// InvoiceItem 发票明细
type InvoiceItem struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID      int64     `gorm:"index;not null" json:"invoice_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Description    string    `gorm:"type:varchar(512);not null;default:''" json:"description"`
	SubscriptionID *int64    `json:"subscription_id,omitempty"`
	RefundedItemID *int64    `gorm:"uniqueIndex" json:"refunded_item_id,omitempty"` // 唯一索引保证一条明细最多被退一次
	Footprint      string    `gorm:"type:varchar(128);not null;default:''" json:"footprint"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InvoiceItem) TableName() string {
	return "invoice_item"
}
