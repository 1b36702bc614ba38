package numbering

import (
	"context"
	"fmt"
	"time"

	"invoicing/internal/clock"
	"invoicing/internal/domain/pattern"
	"invoicing/internal/model"
)

type Generator struct {
	counter  *Counter
	renderer *pattern.Renderer
	clock    clock.Clock
	loc      *time.Location
}

func NewGenerator(counter *Counter, renderer *pattern.Renderer, clk clock.Clock) *Generator {
	return &Generator{
		counter:  counter,
		renderer: renderer,
		clock:    clk,
		loc:      counter.loc,
	}
}

// Reference 生成发票编号，时间取当前时钟
func (g *Generator) Reference(ctx context.Context, inv *model.Invoice, tpl string) (string, error) {
	return g.ReferenceAt(ctx, inv, tpl, g.clock.Now())
}

// ReferenceAt 按给定时刻生成发票编号
// 必须在开票事务内调用且只调用一次，当前发票尚未入库所以不计入计数
func (g *Generator) ReferenceAt(ctx context.Context, inv *model.Invoice, tpl string, now time.Time) (string, error) {
	now = now.In(g.loc)

	counts, err := g.counter.Counts(ctx, now, 0)
	if err != nil {
		return "", fmt.Errorf("生成发票编号失败: %w", err)
	}
	return g.renderer.Render(tpl, now, counts, inv.IsOnlinePayment()), nil
}

// OrderNumber 生成订单号
// 使用发票自身的创建时间，并且只统计 id 比它小的记录，对历史发票重复调用结果不变。
// 订单号不体现线上支付标记。
func (g *Generator) OrderNumber(ctx context.Context, inv *model.Invoice, tpl string) (string, error) {
	createdAt := inv.CreatedAt.In(g.loc)

	counts, err := g.counter.Counts(ctx, createdAt, inv.ID)
	if err != nil {
		return "", fmt.Errorf("生成订单号失败: %w", err)
	}
	return g.renderer.Render(tpl, createdAt, counts, false), nil
}
