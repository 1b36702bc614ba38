// Package numbering 根据计数和日期生成发票编号（reference）与订单号（order number）。
package numbering

import (
	"context"
	"fmt"
	"time"

	"invoicing/internal/domain/pattern"
)

// Scope 计数范围
type Scope uint8

const (
	ScopeDay Scope = iota + 1
	ScopeMonth
	ScopeYear
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeDay:
		return "day"
	case ScopeMonth:
		return "month"
	case ScopeYear:
		return "year"
	case ScopeGlobal:
		return "global"
	}
	return "unknown"
}

// Store 计数所需的存储能力
// beforeID > 0 时只统计 id < beforeID 的记录，用于给历史发票重算订单号
type Store interface {
	CountCreatedBetween(ctx context.Context, start, end time.Time, beforeID int64) (int64, error)
	CountAll(ctx context.Context, beforeID int64) (int64, error)
}

// Counter 统计某一时刻之前已开出的发票数量
type Counter struct {
	store Store
	loc   *time.Location
}

func NewCounter(store Store, loc *time.Location) *Counter {
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{store: store, loc: loc}
}

// Bounds 返回 asOf 所在日历区间 [start, end)，按配置时区计算
func (c *Counter) Bounds(scope Scope, asOf time.Time) (time.Time, time.Time) {
	t := asOf.In(c.loc)
	switch scope {
	case ScopeDay:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
		return start, start.AddDate(0, 0, 1)
	case ScopeMonth:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, c.loc)
		return start, start.AddDate(1, 0, 0)
	}
}

// Count 统计单个范围
func (c *Counter) Count(ctx context.Context, scope Scope, asOf time.Time, beforeID int64) (int64, error) {
	if scope == ScopeGlobal {
		n, err := c.store.CountAll(ctx, beforeID)
		if err != nil {
			return 0, fmt.Errorf("统计发票总数失败: %w", err)
		}
		return n, nil
	}

	start, end := c.Bounds(scope, asOf)
	n, err := c.store.CountCreatedBetween(ctx, start.UTC(), end.UTC(), beforeID)
	if err != nil {
		return 0, fmt.Errorf("统计%s发票数失败: %w", scope, err)
	}
	return n, nil
}

// Counts 一次取齐四个计数
func (c *Counter) Counts(ctx context.Context, asOf time.Time, beforeID int64) (pattern.Counts, error) {
	var counts pattern.Counts
	var err error

	if counts.Day, err = c.Count(ctx, ScopeDay, asOf, beforeID); err != nil {
		return counts, err
	}
	if counts.Month, err = c.Count(ctx, ScopeMonth, asOf, beforeID); err != nil {
		return counts, err
	}
	if counts.Year, err = c.Count(ctx, ScopeYear, asOf, beforeID); err != nil {
		return counts, err
	}
	if counts.Global, err = c.Count(ctx, ScopeGlobal, asOf, beforeID); err != nil {
		return counts, err
	}
	return counts, nil
}
