package job

import (
	"context"
	"time"

	"invoicing/internal/config"
	"invoicing/internal/model"
	"invoicing/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher 消息投递，生产环境为 mq.Producer
type Publisher interface {
	Send(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把发票文档通知投递到 Kafka
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	publisher     Publisher
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
	log           *zap.Logger
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.OutboxConfig, log *zap.Logger) *OutboxSender {
	s := &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      time.Duration(cfg.IntervalMs) * time.Millisecond,
		batchSize:     cfg.BatchSize,
		maxRetryCount: cfg.MaxRetryCount,
		log:           log.Named("outbox_sender"),
	}
	if s.interval <= 0 {
		s.interval = 100 * time.Millisecond
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.maxRetryCount <= 0 {
		s.maxRetryCount = 5
	}
	return s
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 投递一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	fields := []zap.Field{
		zap.Int64("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.MessageKey),
	}

	err := s.publisher.Send(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
			s.log.Error("更新消息状态失败", append(fields, zap.Error(err))...)
			return false
		}
		s.log.Debug("消息发送成功", fields...)
		return true
	}

	giveUp := msg.RetryCount+1 >= s.maxRetryCount
	s.log.Warn("消息发送失败", append(fields, zap.Int("retry_count", msg.RetryCount+1), zap.Error(err))...)

	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, err.Error(), giveUp); err != nil {
		s.log.Error("记录发送失败出错", append(fields, zap.Error(err))...)
		return false
	}
	if giveUp {
		s.log.Error("消息超过最大重试次数，标记为失败", fields...)
	}
	return false
}
