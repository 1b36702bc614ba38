package mq

import (
	"fmt"

	"invoicing/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer 对 sarama.SyncProducer 的简单封装
type Producer struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

// NewKafkaProducer 创建 Kafka 同步生产者
func NewKafkaProducer(cfg *config.KafkaConfig, log *zap.Logger) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return NewProducer(producer, log), nil
}

// NewProducer 包装已有的生产者，测试中传入 sarama/mocks
func NewProducer(producer sarama.SyncProducer, log *zap.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

// Send 发送消息，key 相同的消息落在同一分区
func (p *Producer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.log.Debug("消息已发送",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
