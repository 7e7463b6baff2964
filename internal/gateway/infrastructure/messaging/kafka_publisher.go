// Package messaging 执行事件流：将 ExecutionResult 推送到 Kafka 供下游 dashboard 消费。
package messaging

import (
	"context"

	"github.com/finsignal/signalbridge/internal/gateway/domain"
	"github.com/finsignal/signalbridge/pkg/mq"
)

// KafkaExecutionPublisher 实现 domain.EventPublisher
type KafkaExecutionPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaExecutionPublisher 构造事件发布器
func NewKafkaExecutionPublisher(producer *mq.KafkaProducer, topic string) *KafkaExecutionPublisher {
	return &KafkaExecutionPublisher{producer: producer, topic: topic}
}

// PublishExecution 推送执行结果。以交易对为 key 保证同一交易对的时序性。
func (p *KafkaExecutionPublisher) PublishExecution(ctx context.Context, result domain.ExecutionResult) error {
	return p.producer.SendMessage(ctx, p.topic, result.Symbol, result)
}
