package message

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/gateway"
	"github.com/charging-platform/central-system/internal/logger"
)

// EventProducer 定义了向消息队列发布统一业务事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// CommandExecutor 执行运维命令，由 gateway.CommandService 实现
type CommandExecutor interface {
	Execute(ctx context.Context, cmd gateway.OperatorCommand) (*gateway.Aggregate, error)
}

// SaramaConsumerGroup sarama.ConsumerGroup 中消费者用到的部分，便于测试注入
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Close() error
}

// Forward 将事件源中的事件逐个发布，直到事件源关闭
func Forward(producer EventProducer, source <-chan events.Event, log *logger.Logger) {
	for event := range source {
		if err := producer.PublishEvent(event); err != nil {
			log.Errorf("Failed to publish %s event for %s: %v", event.GetType(), event.GetChargePointID(), err)
		}
	}
}

// LogProducer 未启用 Kafka 时使用，仅记录事件
type LogProducer struct {
	logger *logger.Logger
}

// NewLogProducer 创建日志事件生产者
func NewLogProducer(log *logger.Logger) *LogProducer {
	return &LogProducer{logger: log.Component("event-log")}
}

// PublishEvent 以 debug 级别记录事件
func (p *LogProducer) PublishEvent(event events.Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	p.logger.Debugf("%s %s", event.GetType(), data)
	return nil
}

// Close 无操作
func (p *LogProducer) Close() error {
	return nil
}
