package model

import (
	"time"
)

const (
	WalletTransactionCredit = "CREDIT" // 入账（退款到钱包）
	WalletTransactionDebit  = "DEBIT"  // 出账（发票使用钱包支付）
)

// WalletTransaction 钱包流水表
//
// 【重要】流水只追加，不修改，不删除
// 每笔流水必须关联发票或退款单，并记录变动前后余额
type WalletTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	InvoiceID     int64     `gorm:"index;not null" json:"invoice_id"` // 关联的发票或退款单
	Amount        int64     `gorm:"not null" json:"amount"`           // 正数入账，负数出账
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
