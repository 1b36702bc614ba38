package footprint

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"invoicing/internal/model"

	"go.uber.org/zap"
)

// Store 按 id 升序分批读取发票（含明细）
type Store interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]model.Invoice, error)
}

// Report 审计结果
type Report struct {
	Checked     int     `json:"checked"`
	FirstBroken int64   `json:"first_broken,omitempty"` // 0 表示整条链完好
	Reason      string  `json:"reason,omitempty"`
	Invalidated []int64 `json:"invalidated,omitempty"` // FirstBroken 及其后所有发票
}

func (r *Report) OK() bool {
	return r.FirstBroken == 0
}

// Auditor 按链重算期望 footprint，并与库中存储的值比对
type Auditor struct {
	store     Store
	hasher    *Hasher
	batchSize int
	logger    *zap.Logger

	mu         sync.Mutex
	checkpoint checkpoint
}

// checkpoint 最近一次全量审计确认完好的链前缀，Verify 从这里继续往后校验
type checkpoint struct {
	id          int64
	checked     int
	prevInvoice string
	prevItem    string
}

func NewAuditor(store Store, hasher *Hasher, batchSize int, logger *zap.Logger) *Auditor {
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{store: store, hasher: hasher, batchSize: batchSize, logger: logger}
}

// Audit 审计 id <= untilID 的发票，untilID 为 0 时从头审计全部并刷新检查点
//
// 期望值按链重算：某张发票的期望 footprint 依赖上一张的期望值而不是库中存储值，
// 所以一旦某条记录被篡改，它和之后的所有记录都会被判为无效。
func (a *Auditor) Audit(ctx context.Context, untilID int64) (*Report, error) {
	report, tail, err := a.scan(ctx, checkpoint{}, untilID)
	if err != nil {
		return nil, err
	}
	if untilID == 0 {
		a.mu.Lock()
		if report.OK() {
			a.checkpoint = tail
		} else {
			a.checkpoint = checkpoint{}
		}
		a.mu.Unlock()
	}
	return report, nil
}

// Verify 发票 id 及其之前的整条链都完好时返回 true
//
// 检查点之前的部分信任最近一次全量审计的结论，只重算检查点之后的记录；
// 检查点之前的篡改由下一次全量审计发现。
func (a *Auditor) Verify(ctx context.Context, id int64) (bool, *Report, error) {
	a.mu.Lock()
	from := a.checkpoint
	a.mu.Unlock()
	if from.id > id {
		from = checkpoint{}
	}

	report, _, err := a.scan(ctx, from, id)
	if err != nil {
		return false, nil, err
	}
	return report.OK(), report, nil
}

// scan 从 from 之后开始按 id 递增校验，返回报告和最后一条完好记录的链尾
func (a *Auditor) scan(ctx context.Context, from checkpoint, untilID int64) (*Report, checkpoint, error) {
	report := &Report{Checked: from.checked}
	tail := from
	prevInvoice, prevItem := from.prevInvoice, from.prevItem
	afterID := from.id

	for {
		batch, err := a.store.ListAfter(ctx, afterID, a.batchSize)
		if err != nil {
			return nil, tail, fmt.Errorf("读取发票失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			inv := &batch[i]
			afterID = inv.ID
			if untilID > 0 && inv.ID > untilID {
				return report, tail, nil
			}
			report.Checked++

			if !report.OK() {
				report.Invalidated = append(report.Invalidated, inv.ID)
				continue
			}

			var reason string
			prevInvoice, prevItem, reason = a.check(inv, prevInvoice, prevItem)
			if reason != "" {
				report.FirstBroken = inv.ID
				report.Reason = reason
				report.Invalidated = append(report.Invalidated, inv.ID)
				a.logger.Error("发票链校验失败",
					zap.Int64("invoice_id", inv.ID),
					zap.String("reason", reason),
				)
				continue
			}
			tail = checkpoint{id: inv.ID, checked: report.Checked, prevInvoice: prevInvoice, prevItem: prevItem}
		}

		if len(batch) < a.batchSize {
			break
		}
	}

	return report, tail, nil
}

// check 校验一张发票及其明细，返回新的链尾期望值和失败原因
func (a *Auditor) check(inv *model.Invoice, prevInvoice, prevItem string) (string, string, string) {
	items := make([]model.InvoiceItem, len(inv.Items))
	copy(items, inv.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	for i := range items {
		want := a.hasher.Item(&items[i], prevItem)
		if items[i].Footprint != want {
			return prevInvoice, prevItem, fmt.Sprintf("明细 %d 的 footprint 不一致", items[i].ID)
		}
		prevItem = want
	}

	want := a.hasher.Invoice(inv, prevInvoice)
	if inv.Footprint != want {
		return prevInvoice, prevItem, "发票 footprint 不一致"
	}
	return want, prevItem, ""
}
