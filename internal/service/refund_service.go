package service

import (
	"context"
	"fmt"
	"time"

	"invoicing/internal/clock"
	"invoicing/internal/config"
	"invoicing/internal/domain/footprint"
	"invoicing/internal/domain/refund"
	"invoicing/internal/infrastructure/lock"
	"invoicing/internal/model"
	"invoicing/internal/repository"
	"invoicing/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefundService 开具退款单
//
// 同一张发票的退款串行（退款锁），退款单也是链上的一张发票，所以写入时还要持有链锁。
// 加锁顺序固定为 退款锁 -> 链锁。
// 校验在事务内重新读取，明细上的唯一索引兜底同一明细只能被退一次。
type RefundService struct {
	db              *gorm.DB
	locker          lock.Locker
	clock           clock.Clock
	hasher          *footprint.Hasher
	dispatcher      *Dispatcher
	invoiceRepo     *repository.InvoiceRepository
	accountRepo     *repository.AccountRepository
	couponRepo      *repository.CouponRepository
	reservationRepo *repository.ReservationRepository
	walletRepo      *repository.WalletTransactionRepository
	log             *zap.Logger
}

func NewRefundService(db *gorm.DB, locker lock.Locker, clk clock.Clock, cfg *config.Config, log *zap.Logger) *RefundService {
	return &RefundService{
		db:              db,
		locker:          locker,
		clock:           clk,
		hasher:          footprint.NewHasher(cfg.Invoicing.FootprintSecret),
		dispatcher:      NewDispatcher(db, cfg.Kafka.Topic.InvoiceDocument),
		invoiceRepo:     repository.NewInvoiceRepository(db),
		accountRepo:     repository.NewAccountRepository(db),
		couponRepo:      repository.NewCouponRepository(db),
		reservationRepo: repository.NewReservationRepository(db),
		walletRepo:      repository.NewWalletTransactionRepository(db),
		log:             log.Named("refund"),
	}
}

type RefundRequest struct {
	InvoiceID   int64           `json:"invoice_id" binding:"required"`
	ItemIDs     []int64         `json:"item_ids" binding:"required,min=1"`
	AvoirDate   *time.Time      `json:"avoir_date"` // 为空时取当前时间
	AvoirMode   model.AvoirMode `json:"avoir_mode" binding:"required"`
	Description string          `json:"description"`
}

type RefundResponse struct {
	Avoir        *model.Invoice `json:"avoir"`
	RefundStatus string         `json:"refund_status"` // 原发票退款后的状态
}

func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	unlockRefund, err := s.locker.Lock(ctx, lock.RefundLockKey(req.InvoiceID))
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlockRefund(ctx)

	unlockChain, err := s.locker.Lock(ctx, lock.ChainLockKey)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlockChain(ctx)

	avoirDate := s.clock.Now()
	if req.AvoirDate != nil {
		avoirDate = *req.AvoirDate
	}

	var resp RefundResponse
	err = s.db.Transaction(func(tx *gorm.DB) error {
		invoiceRepo := s.invoiceRepo.WithTx(tx)

		inv, err := invoiceRepo.GetByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		refunded, err := invoiceRepo.RefundedItemIDs(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("查询退款明细失败: %w", err)
		}

		buildReq := refund.Request{
			Invoice:         inv,
			ItemIDs:         req.ItemIDs,
			RefundedItemIDs: refunded,
			AvoirDate:       avoirDate,
			Mode:            req.AvoirMode,
			Description:     req.Description,
		}
		if err := s.loadContext(ctx, tx, inv, &buildReq); err != nil {
			return err
		}

		avoir, err := refund.Build(buildReq)
		if err != nil {
			return err
		}

		if err := invoiceRepo.Create(ctx, avoir); err != nil {
			return fmt.Errorf("写入退款单失败: %w", err)
		}
		if err := seal(ctx, invoiceRepo, s.hasher, avoir); err != nil {
			return fmt.Errorf("计算 footprint 失败: %w", err)
		}

		if avoir.AvoirMode == model.AvoirModeWallet && avoir.Total > 0 {
			if err := s.creditWallet(ctx, tx, avoir); err != nil {
				return err
			}
		}

		if err := s.dispatcher.Enqueue(ctx, tx, avoir, map[string]string{
			"original_invoice_id": formatID(inv.ID),
			"avoir_mode":          string(avoir.AvoirMode),
		}); err != nil {
			return err
		}

		for _, it := range avoir.Items {
			refunded[*it.RefundedItemID] = true
		}
		resp.Avoir = avoir
		resp.RefundStatus = refund.StatusOf(inv.Items, refunded).String()
		return nil
	})
	if err != nil {
		s.log.Warn("退款失败", zap.Int64("invoice_id", req.InvoiceID), zap.Error(err))
		return nil, err
	}

	s.log.Info("退款成功",
		zap.Int64("invoice_id", req.InvoiceID),
		zap.Int64("avoir_id", resp.Avoir.ID),
		zap.Int64("total", resp.Avoir.Total),
		zap.String("refund_status", resp.RefundStatus),
	)
	return &resp, nil
}

// loadContext 读取退款校验需要的外部数据：优惠券、用户、培训完成情况
func (s *RefundService) loadContext(ctx context.Context, tx *gorm.DB, inv *model.Invoice, req *refund.Request) error {
	if inv.CouponID != nil {
		coupon, err := s.couponRepo.GetByID(ctx, tx, *inv.CouponID)
		if err != nil {
			return fmt.Errorf("查询优惠券失败: %w", err)
		}
		req.Coupon = coupon
	}

	exists, err := s.accountRepo.Exists(ctx, tx, inv.UserID)
	if err != nil {
		return fmt.Errorf("查询账户失败: %w", err)
	}
	req.OwnerExists = exists

	if inv.InvoicedType != model.InvoicedTypeReservation || inv.InvoicedID == nil {
		return nil
	}
	reservation, err := s.reservationRepo.GetByID(ctx, tx, *inv.InvoicedID)
	if err != nil {
		return fmt.Errorf("查询预约失败: %w", err)
	}
	if reservation == nil || reservation.ReservableType != model.ReservableTypeTraining {
		return nil
	}
	req.TrainingValidated, err = s.reservationRepo.TrainingValidated(ctx, tx, reservation.UserID, reservation.ReservableID)
	if err != nil {
		return fmt.Errorf("查询培训记录失败: %w", err)
	}
	return nil
}

// creditWallet 退款到钱包
func (s *RefundService) creditWallet(ctx context.Context, tx *gorm.DB, avoir *model.Invoice) error {
	account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, avoir.UserID)
	if err != nil {
		return fmt.Errorf("查询账户失败: %w", err)
	}
	if err := s.accountRepo.Increase(ctx, tx, avoir.UserID, avoir.Total); err != nil {
		return fmt.Errorf("退款到钱包失败: %w", err)
	}

	return s.walletRepo.Create(ctx, tx, &model.WalletTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        avoir.UserID,
		InvoiceID:     avoir.ID,
		Amount:        avoir.Total,
		Type:          model.WalletTransactionCredit,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + avoir.Total,
		Remark:        fmt.Sprintf("退款单 %d", avoir.ID),
	})
}
