package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invoicing/internal/domain/errs"
	"invoicing/internal/domain/footprint"
	"invoicing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceRepository 发票存储
// 所有方法使用 r.db；在事务中通过 WithTx 取得绑定事务的实例
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	if tx == nil {
		return r
	}
	return &InvoiceRepository{db: tx}
}

// Create 写入发票及明细，id 由数据库分配
// 明细单独插入：关联保存会带 ON CONFLICT DO NOTHING，MySQL 下会吞掉 refunded_item_id 的唯一冲突
func (r *InvoiceRepository) Create(ctx context.Context, inv *model.Invoice) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(inv).Error; err != nil {
		return err
	}
	if len(inv.Items) == 0 {
		return nil
	}
	for i := range inv.Items {
		inv.Items[i].InvoiceID = inv.ID
	}
	return db.Create(&inv.Items).Error
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// PredecessorFootprint 返回 id 小于给定值的最后一张发票的 footprint，没有则为空串
// 加行锁，保证链尾在本事务提交前不被别的开票流程读走
func (r *InvoiceRepository) PredecessorFootprint(ctx context.Context, id int64) (string, error) {
	var prev model.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "footprint").
		Where("id < ?", id).
		Order("id DESC").
		Limit(1).
		Find(&prev).Error
	if err != nil {
		return "", err
	}
	return prev.Footprint, nil
}

// PredecessorItemFootprint 返回 id 小于给定值的最后一条明细的 footprint
func (r *InvoiceRepository) PredecessorItemFootprint(ctx context.Context, itemID int64) (string, error) {
	var prev model.InvoiceItem
	err := r.db.WithContext(ctx).
		Select("id", "footprint").
		Where("id < ?", itemID).
		Order("id DESC").
		Limit(1).
		Find(&prev).Error
	if err != nil {
		return "", err
	}
	return prev.Footprint, nil
}

// CountCreatedBetween 统计 [start, end) 内创建的发票，beforeID > 0 时只统计 id 更小的
func (r *InvoiceRepository) CountCreatedBetween(ctx context.Context, start, end time.Time, beforeID int64) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC())
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	err := q.Count(&n).Error
	return n, err
}

func (r *InvoiceRepository) CountAll(ctx context.Context, beforeID int64) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&model.Invoice{})
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	err := q.Count(&n).Error
	return n, err
}

// SetFootprint 写入发票 footprint，只允许写一次
func (r *InvoiceRepository) SetFootprint(ctx context.Context, id int64, fp string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("id = ? AND footprint = ?", id, "").
		UpdateColumn("footprint", fp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.New("invoice.SetFootprint", id, errs.ErrIntegrityViolation, "footprint 已存在")
	}
	return nil
}

// SetItemFootprint 写入明细 footprint，只允许写一次
func (r *InvoiceRepository) SetItemFootprint(ctx context.Context, itemID int64, fp string) error {
	result := r.db.WithContext(ctx).
		Model(&model.InvoiceItem{}).
		Where("id = ? AND footprint = ?", itemID, "").
		UpdateColumn("footprint", fp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.New("invoice.SetItemFootprint", 0, errs.ErrIntegrityViolation, fmt.Sprintf("item=%d footprint 已存在", itemID))
	}
	return nil
}

// UpdateFields 更新发票字段，受 footprint 保护的列一律拒绝
func (r *InvoiceRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	for _, col := range footprint.CoveredInvoiceColumns {
		if _, ok := fields[col]; ok {
			return errs.New("invoice.UpdateFields", id, errs.ErrIntegrityViolation, "不允许修改 "+col)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&model.Invoice{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrInvoiceNotFound
	}
	return nil
}

// ListAfter 按 id 升序读取 id > afterID 的发票（含明细）
func (r *InvoiceRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

// RefundedItemIDs 返回原发票中已经被退款单引用的明细
func (r *InvoiceRepository) RefundedItemIDs(ctx context.Context, invoiceID int64) (map[int64]bool, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.InvoiceItem{}).
		Where("refunded_item_id IN (?)",
			r.db.Model(&model.InvoiceItem{}).Select("id").Where("invoice_id = ?", invoiceID),
		).
		Pluck("refunded_item_id", &ids).Error
	if err != nil {
		return nil, err
	}

	refunded := make(map[int64]bool, len(ids))
	for _, id := range ids {
		refunded[id] = true
	}
	return refunded, nil
}

// ListAvoirs 原发票的全部退款单
func (r *InvoiceRepository) ListAvoirs(ctx context.Context, invoiceID int64) ([]model.Invoice, error) {
	var avoirs []model.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("original_invoice_id = ? AND kind = ?", invoiceID, model.InvoiceKindAvoir).
		Order("id ASC").
		Find(&avoirs).Error
	return avoirs, err
}

func (r *InvoiceRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Invoice, int64, error) {
	var invoices []*model.Invoice
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Invoice{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&invoices).Error
	return invoices, total, err
}
