package job

import (
	"context"
	"time"

	"invoicing/internal/domain/errs"
	"invoicing/internal/domain/footprint"

	"go.uber.org/zap"
)

// Auditor 链审计
type Auditor interface {
	Audit(ctx context.Context) (*footprint.Report, error)
}

// ChainAuditJob 定期校验整条发票链，发现篡改只告警，不做任何修复
type ChainAuditJob struct {
	auditor  Auditor
	stopCh   chan struct{}
	interval time.Duration
	log      *zap.Logger
}

func NewChainAuditJob(auditor Auditor, interval time.Duration, log *zap.Logger) *ChainAuditJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ChainAuditJob{
		auditor:  auditor,
		stopCh:   make(chan struct{}),
		interval: interval,
		log:      log.Named("chain_audit"),
	}
}

func (j *ChainAuditJob) Start(ctx context.Context) {
	j.log.Info("发票链审计任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *ChainAuditJob) Stop() {
	close(j.stopCh)
}

// RunOnce 执行一次审计
func (j *ChainAuditJob) RunOnce(ctx context.Context) *footprint.Report {
	start := time.Now()
	report, err := j.auditor.Audit(ctx)
	if err != nil {
		j.log.Error("发票链审计失败", zap.Error(err))
		return nil
	}

	if !report.OK() {
		j.log.Error(errs.ErrIntegrityViolation.Error(),
			zap.Int64("first_broken", report.FirstBroken),
			zap.String("reason", report.Reason),
			zap.Int("invalidated", len(report.Invalidated)),
		)
		return report
	}

	j.log.Info("发票链审计通过",
		zap.Int("checked", report.Checked),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report
}
