package repository

import (
	"context"

	"invoicing/internal/model"

	"gorm.io/gorm"
)

// WalletTransactionRepository 钱包流水，只追加
type WalletTransactionRepository struct {
	db *gorm.DB
}

func NewWalletTransactionRepository(db *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: db}
}

func (r *WalletTransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *WalletTransactionRepository) ListByInvoiceID(ctx context.Context, invoiceID int64) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *WalletTransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error
	return transactions, total, err
}
