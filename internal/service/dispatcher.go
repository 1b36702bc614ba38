package service

import (
	"context"
	"encoding/json"
	"fmt"

	"invoicing/internal/model"
	"invoicing/internal/repository"
	"invoicing/pkg/idgen"

	"gorm.io/gorm"
)

// Dispatcher 发票提交后通知下游生成并发送文档
// 消息与发票在同一事务写入本地消息表，由 OutboxSender 投递到 Kafka
type Dispatcher struct {
	outboxRepo *repository.OutboxRepository
	topic      string
}

func NewDispatcher(db *gorm.DB, topic string) *Dispatcher {
	return &Dispatcher{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      topic,
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, inv *model.Invoice, extra map[string]string) error {
	payload, err := json.Marshal(model.DocumentEvent{
		InvoiceID: inv.ID,
		UserID:    inv.UserID,
		Kind:      inv.Kind,
		Extra:     extra,
	})
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		MessageKey: idgen.GenerateMessageKey(string(inv.Kind)),
		Topic:      d.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := d.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
