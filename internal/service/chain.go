package service

import (
	"context"
	"fmt"
	"sort"

	"invoicing/internal/domain/footprint"
	"invoicing/internal/model"
	"invoicing/internal/repository"
)

// seal 在开票事务内为刚写入的发票及其明细计算并写入 footprint
// 调用方必须持有链锁，先写明细再写发票
func seal(ctx context.Context, repo *repository.InvoiceRepository, hasher *footprint.Hasher, inv *model.Invoice) error {
	sort.Slice(inv.Items, func(i, j int) bool { return inv.Items[i].ID < inv.Items[j].ID })

	for i := range inv.Items {
		item := &inv.Items[i]
		prev, err := repo.PredecessorItemFootprint(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("读取上一条明细失败: %w", err)
		}
		fp := hasher.Item(item, prev)
		if err := repo.SetItemFootprint(ctx, item.ID, fp); err != nil {
			return err
		}
		item.Footprint = fp
	}

	prev, err := repo.PredecessorFootprint(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("读取上一张发票失败: %w", err)
	}
	fp := hasher.Invoice(inv, prev)
	if err := repo.SetFootprint(ctx, inv.ID, fp); err != nil {
		return err
	}
	inv.Footprint = fp
	return nil
}
