package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"invoicing/internal/clock"
	"invoicing/internal/config"
	"invoicing/internal/domain/footprint"
	"invoicing/internal/domain/numbering"
	"invoicing/internal/domain/pattern"
	"invoicing/internal/domain/refund"
	"invoicing/internal/infrastructure/lock"
	"invoicing/internal/model"
	"invoicing/internal/repository"
	"invoicing/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound     = errors.New("优惠券不存在")
	ErrInvalidAmount      = errors.New("金额无效")
	ErrWalletExceedsTotal = errors.New("钱包支付金额超过发票金额")
)

// InvoiceService 开票
//
// 开票流程（全局串行）：
//  1. 获取链锁
//  2. 事务内：计数并生成 reference -> 写入发票和明细 -> 计算明细和发票的 footprint
//     -> 钱包扣款 -> 写入通知消息
//  3. 提交后释放链锁
//
// reference 或 footprint 任何一步失败，整个事务回滚，不会留下缺字段的发票
type InvoiceService struct {
	db          *gorm.DB
	locker      lock.Locker
	clock       clock.Clock
	loc         *time.Location
	renderer    *pattern.Renderer
	hasher      *footprint.Hasher
	settings    *SettingsService
	dispatcher  *Dispatcher
	invoiceRepo *repository.InvoiceRepository
	accountRepo *repository.AccountRepository
	couponRepo  *repository.CouponRepository
	walletRepo  *repository.WalletTransactionRepository
	log         *zap.Logger
}

func NewInvoiceService(db *gorm.DB, locker lock.Locker, clk clock.Clock, cfg *config.Config, log *zap.Logger) (*InvoiceService, error) {
	loc, err := cfg.Invoicing.Location()
	if err != nil {
		return nil, err
	}
	renderer := pattern.NewRenderer(
		pattern.WithLocale(cfg.Invoicing.Locale),
		pattern.WithLogger(log.Named("pattern")),
	)

	return &InvoiceService{
		db:          db,
		locker:      locker,
		clock:       clk,
		loc:         loc,
		renderer:    renderer,
		hasher:      footprint.NewHasher(cfg.Invoicing.FootprintSecret),
		settings:    NewSettingsService(db, renderer, &cfg.Invoicing, log),
		dispatcher:  NewDispatcher(db, cfg.Kafka.Topic.InvoiceDocument),
		invoiceRepo: repository.NewInvoiceRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		couponRepo:  repository.NewCouponRepository(db),
		walletRepo:  repository.NewWalletTransactionRepository(db),
		log:         log.Named("invoice"),
	}, nil
}

func (s *InvoiceService) Settings() *SettingsService {
	return s.settings
}

type CreateItemRequest struct {
	Amount         int64  `json:"amount" binding:"gte=0"`
	Description    string `json:"description"`
	SubscriptionID *int64 `json:"subscription_id"`
}

type CreateInvoiceRequest struct {
	UserID          int64               `json:"user_id" binding:"required"`
	Items           []CreateItemRequest `json:"items" binding:"required,min=1,dive"`
	CouponID        *int64              `json:"coupon_id"`
	WalletAmount    int64               `json:"wallet_amount" binding:"gte=0"`
	PaymentIntentID string              `json:"payment_intent_id"`
	InvoicedType    string              `json:"invoiced_type"`
	InvoicedID      *int64              `json:"invoiced_id"`
	Description     string              `json:"description"`
}

// CreateInvoice 开具发票
func (s *InvoiceService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*model.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: 至少需要一条明细", ErrInvalidAmount)
	}

	inv := &model.Invoice{
		Kind:            model.InvoiceKindInvoice,
		UserID:          req.UserID,
		CouponID:        req.CouponID,
		PaymentIntentID: req.PaymentIntentID,
		InvoicedType:    req.InvoicedType,
		InvoicedID:      req.InvoicedID,
		Description:     req.Description,
	}
	var paidItems int64
	for _, it := range req.Items {
		if it.Amount < 0 {
			return nil, fmt.Errorf("%w: 明细金额不能为负", ErrInvalidAmount)
		}
		if it.Amount != 0 {
			paidItems++
		}
		inv.Items = append(inv.Items, model.InvoiceItem{
			Amount:         it.Amount,
			Description:    it.Description,
			SubscriptionID: it.SubscriptionID,
		})
		inv.Total += it.Amount
	}

	// 以下读取在事务外完成
	if req.CouponID != nil {
		coupon, err := s.couponRepo.GetByID(ctx, nil, *req.CouponID)
		if err != nil {
			return nil, fmt.Errorf("查询优惠券失败: %w", err)
		}
		if coupon == nil {
			return nil, ErrCouponNotFound
		}
		discount, err := refund.Discount(coupon, inv.Total, paidItems, paidItems)
		if err != nil {
			return nil, err
		}
		inv.Total -= discount
	}
	if req.WalletAmount > inv.Total {
		return nil, ErrWalletExceedsTotal
	}
	if req.WalletAmount > 0 {
		walletAmount := req.WalletAmount
		inv.WalletAmount = &walletAmount
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}
	tpl, err := s.settings.Pattern(ctx, model.SettingInvoiceReference)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.ChainLockKey)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock(ctx)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		invoiceRepo := s.invoiceRepo.WithTx(tx)

		createdAt := footprint.Normalize(s.clock.Now())
		inv.CreatedAt = createdAt
		for i := range inv.Items {
			inv.Items[i].CreatedAt = createdAt
		}

		gen := numbering.NewGenerator(numbering.NewCounter(invoiceRepo, s.loc), s.renderer, s.clock)
		ref, err := gen.ReferenceAt(ctx, inv, tpl, createdAt)
		if err != nil {
			return err
		}
		inv.Reference = &ref

		if err := invoiceRepo.Create(ctx, inv); err != nil {
			return fmt.Errorf("写入发票失败: %w", err)
		}
		if err := seal(ctx, invoiceRepo, s.hasher, inv); err != nil {
			return fmt.Errorf("计算 footprint 失败: %w", err)
		}

		if inv.WalletAmount != nil {
			if err := s.debitWallet(ctx, tx, inv); err != nil {
				return err
			}
		}

		return s.dispatcher.Enqueue(ctx, tx, inv, map[string]string{"reference": ref})
	})
	if err != nil {
		s.log.Error("开票失败", zap.Int64("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	s.log.Info("开票成功",
		zap.Int64("invoice_id", inv.ID),
		zap.String("reference", *inv.Reference),
		zap.Int64("total", inv.Total),
	)
	return inv, nil
}

func (s *InvoiceService) debitWallet(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error {
	amount := *inv.WalletAmount

	account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, inv.UserID)
	if err != nil {
		return fmt.Errorf("查询账户失败: %w", err)
	}
	if err := s.accountRepo.Deduct(ctx, tx, inv.UserID, amount, account.Version); err != nil {
		return fmt.Errorf("钱包扣款失败: %w", err)
	}

	return s.walletRepo.Create(ctx, tx, &model.WalletTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        inv.UserID,
		InvoiceID:     inv.ID,
		Amount:        -amount,
		Type:          model.WalletTransactionDebit,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance - amount,
		Remark:        "发票 " + *inv.Reference,
	})
}

// OrderNumber 计算订单号，使用发票自身的创建时间，可重复调用
func (s *InvoiceService) OrderNumber(ctx context.Context, inv *model.Invoice) (string, error) {
	tpl, err := s.settings.Pattern(ctx, model.SettingInvoiceOrderNumber)
	if err != nil {
		return "", err
	}
	gen := numbering.NewGenerator(numbering.NewCounter(s.invoiceRepo, s.loc), s.renderer, s.clock)
	return gen.OrderNumber(ctx, inv, tpl)
}

// InvoiceDetail 发票详情
type InvoiceDetail struct {
	Invoice      *model.Invoice  `json:"invoice"`
	OrderNumber  string          `json:"order_number"`
	RefundStatus string          `json:"refund_status"`
	Avoirs       []model.Invoice `json:"avoirs,omitempty"`
}

func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*InvoiceDetail, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	orderNumber, err := s.OrderNumber(ctx, inv)
	if err != nil {
		return nil, err
	}

	detail := &InvoiceDetail{
		Invoice:      inv,
		OrderNumber:  orderNumber,
		RefundStatus: refund.StatusNone.String(),
	}
	if inv.IsAvoir() {
		return detail, nil
	}

	refunded, err := s.invoiceRepo.RefundedItemIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询退款明细失败: %w", err)
	}
	detail.RefundStatus = refund.StatusOf(inv.Items, refunded).String()

	if detail.Avoirs, err = s.invoiceRepo.ListAvoirs(ctx, id); err != nil {
		return nil, fmt.Errorf("查询退款单失败: %w", err)
	}
	return detail, nil
}

func (s *InvoiceService) ListInvoices(ctx context.Context, userID int64, page, pageSize int) ([]*model.Invoice, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.invoiceRepo.ListByUserID(ctx, userID, page, pageSize)
}

// RenderPreview 用当前计数预览模板效果，不写库
func (s *InvoiceService) RenderPreview(ctx context.Context, tpl string, online bool) (string, []pattern.Anomaly, error) {
	now := s.clock.Now().In(s.loc)
	counts, err := numbering.NewCounter(s.invoiceRepo, s.loc).Counts(ctx, now, 0)
	if err != nil {
		return "", nil, err
	}
	return s.renderer.Render(tpl, now, counts, online), s.renderer.Check(tpl), nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
