// Package refund 根据原发票生成退款单（avoir），并把优惠券折扣按退款明细数分摊。
package refund

import (
	"fmt"
	"time"

	"invoicing/internal/domain/errs"
	"invoicing/internal/domain/footprint"
	"invoicing/internal/model"

	"github.com/shopspring/decimal"
)

// Status 发票的退款状态
type Status uint8

const (
	StatusNone Status = iota
	StatusPartial
	StatusFull
)

func (s Status) String() string {
	switch s {
	case StatusPartial:
		return "partial"
	case StatusFull:
		return "full"
	}
	return "none"
}

// StatusOf 根据已被退款的明细判断发票退款状态
func StatusOf(items []model.InvoiceItem, refunded map[int64]bool) Status {
	if len(items) == 0 {
		return StatusNone
	}
	n := 0
	for _, it := range items {
		if refunded[it.ID] {
			n++
		}
	}
	switch {
	case n == 0:
		return StatusNone
	case n == len(items):
		return StatusFull
	}
	return StatusPartial
}

// Request 生成退款单的输入
type Request struct {
	Invoice           *model.Invoice // 需带明细
	ItemIDs           []int64        // 要退的原明细 id
	RefundedItemIDs   map[int64]bool // 之前的退款单已经退过的原明细
	Coupon            *model.Coupon  // 原发票使用的优惠券，可为空
	AvoirDate         time.Time
	Mode              model.AvoirMode
	Description       string
	OwnerExists       bool
	TrainingValidated bool // 发票对应的培训预约已被确认完成
}

const op = "refund.Build"

// Build 生成退款单，不落库
func Build(req Request) (*model.Invoice, error) {
	inv := req.Invoice
	if inv == nil {
		return nil, errs.New(op, 0, errs.ErrInvoiceNotFound, "")
	}
	if err := checkAllowed(req); err != nil {
		return nil, err
	}

	wanted := make(map[int64]bool, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		wanted[id] = true
	}
	known := make(map[int64]bool, len(inv.Items))
	for _, it := range inv.Items {
		known[it.ID] = true
		if !wanted[it.ID] {
			continue
		}
		if it.RefundedItemID != nil || req.RefundedItemIDs[it.ID] {
			return nil, errs.New(op, inv.ID, errs.ErrAlreadyRefunded, fmt.Sprintf("item=%d", it.ID))
		}
	}
	for id := range wanted {
		if !known[id] {
			return nil, errs.New(op, inv.ID, errs.ErrUnknownItem, fmt.Sprintf("item=%d", id))
		}
	}

	avoirDate := footprint.Normalize(req.AvoirDate)
	originalID := inv.ID
	avoir := &model.Invoice{
		Kind:              model.InvoiceKindAvoir,
		OriginalInvoiceID: &originalID,
		UserID:            inv.UserID,
		Reference:         nil,
		Total:             0,
		CouponID:          inv.CouponID,
		PaymentIntentID:   inv.PaymentIntentID,
		InvoicedType:      inv.InvoicedType,
		InvoicedID:        inv.InvoicedID,
		AvoirMode:         req.Mode,
		Description:       req.Description,
		CreatedAt:         avoirDate,
	}

	var paidItems, refundItems int64
	for _, it := range inv.Items {
		if it.Amount != 0 {
			paidItems++
		}
		if !wanted[it.ID] {
			continue
		}
		if it.Amount != 0 {
			refundItems++
		}
		refundedID := it.ID
		avoir.Items = append(avoir.Items, model.InvoiceItem{
			Amount:         it.Amount,
			Description:    it.Description,
			SubscriptionID: it.SubscriptionID,
			RefundedItemID: &refundedID,
			CreatedAt:      avoirDate,
		})
		avoir.Total += it.Amount
	}

	if req.Coupon != nil {
		discount, err := Discount(req.Coupon, avoir.Total, paidItems, refundItems)
		if err != nil {
			return nil, errs.New(op, inv.ID, err, "")
		}
		avoir.Total -= discount
	}

	return avoir, nil
}

// Discount 计算退款单应扣除的优惠金额
//
//	百分比券: total * percent / 100，四舍五入到最小货币单位
//	固定金额券: (amountOff / paidItems) * refundItems，整数除法
func Discount(c *model.Coupon, total, paidItems, refundItems int64) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	kind, _ := c.Kind()

	switch kind {
	case model.CouponPercentOff:
		return decimal.NewFromInt(total).
			Mul(decimal.NewFromInt(c.PercentOff)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart(), nil
	case model.CouponAmountOff:
		if paidItems == 0 {
			return 0, nil
		}
		return (c.AmountOff / paidItems) * refundItems, nil
	}
	return 0, fmt.Errorf("%w: %s", errs.ErrInvalidCouponType, kind)
}

func checkAllowed(req Request) error {
	inv := req.Invoice
	switch {
	case inv.IsAvoir():
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, "退款单不能再退款")
	case !req.OwnerExists:
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, "发票所属用户不存在")
	case req.TrainingValidated:
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, "培训已完成")
	case StatusOf(inv.Items, req.RefundedItemIDs) == StatusFull:
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, "发票已全额退款")
	case len(req.ItemIDs) == 0:
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, "未选择退款明细")
	case !req.Mode.IsValid():
		return errs.New(op, inv.ID, errs.ErrRefundNotAllowed, fmt.Sprintf("不支持的退款方式 %q", req.Mode))
	}
	return nil
}
