package service

import (
	"context"
	"errors"

	"invoicing/internal/model"
	"invoicing/internal/repository"

	"gorm.io/gorm"
)

// WalletService 钱包查询。余额只会因开票扣款或退款入账而变化
type WalletService struct {
	accountRepo *repository.AccountRepository
	transRepo   *repository.WalletTransactionRepository
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		accountRepo: repository.NewAccountRepository(db),
		transRepo:   repository.NewWalletTransactionRepository(db),
	}
}

func (s *WalletService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.transRepo.ListByUserID(ctx, userID, page, pageSize)
}

// InvoiceTransactions 某张发票或退款单引起的钱包流水
func (s *WalletService) InvoiceTransactions(ctx context.Context, invoiceID int64) ([]*model.WalletTransaction, error) {
	return s.transRepo.ListByInvoiceID(ctx, invoiceID)
}
