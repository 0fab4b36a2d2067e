package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/gateway"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

const sourceKafka = "kafka"

// KafkaConsumer 从命令主题消费运维命令，结果以 command.completed 事件发布
type KafkaConsumer struct {
	consumerGroup SaramaConsumerGroup
	topic         string
	executor      CommandExecutor
	timeout       time.Duration
	logger        *logger.Logger
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaConsumer 初始化 KafkaConsumer
func NewKafkaConsumer(cfg config.KafkaConfig, executor CommandExecutor, timeout time.Duration, log *logger.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.Consumer.OffsetsInitial == "oldest" {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	saramaConfig.Consumer.Group.Session.Timeout = 10 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama consumer group: %w", err)
	}

	c := NewKafkaConsumerWithGroup(consumerGroup, cfg.CommandsTopic, executor, timeout, log)
	go func() {
		for err := range consumerGroup.Errors() {
			c.logger.Errorf("Sarama consumer group error: %v", err)
		}
	}()
	return c, nil
}

// NewKafkaConsumerWithGroup 使用已有的消费者组创建，测试时注入 mock
func NewKafkaConsumerWithGroup(group SaramaConsumerGroup, topic string, executor CommandExecutor, timeout time.Duration, log *logger.Logger) *KafkaConsumer {
	if log == nil {
		log = logger.Default()
	}
	return &KafkaConsumer{
		consumerGroup: group,
		topic:         topic,
		executor:      executor,
		timeout:       timeout,
		logger:        log.Component("kafka-consumer"),
	}
}

// Start 启动消费者组
func (c *KafkaConsumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume 在会话结束或重平衡时返回
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c); err != nil {
				c.logger.Errorf("Error from Kafka consumer group: %v", err)
			}
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer context cancelled, stopping consumption.")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.consumerGroup != nil {
		return c.consumerGroup.Close()
	}
	return nil
}

func (c *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group setup completed.")
	return nil
}

func (c *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group cleanup completed.")
	return nil
}

// ConsumeClaim 逐条执行命令；无论执行结果如何都提交位移，命令不重放
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c.logger.Infof("Consuming commands from partition %d", claim.Partition())

	for message := range claim.Messages() {
		c.handle(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *KafkaConsumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var cmd gateway.OperatorCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		c.logger.Errorf("Failed to unmarshal Kafka message: %v, message: %s", err, string(message.Value))
		return
	}
	if cmd.CorrelationID == "" && len(message.Key) > 0 {
		cmd.CorrelationID = string(message.Key)
	}
	metrics.CommandsConsumed.WithLabelValues(sourceKafka).Inc()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	agg, err := c.executor.Execute(ctx, cmd)
	if err != nil {
		c.logger.Warnf("Rejected %s command from partition %d offset %d: %v", cmd.Command, message.Partition, message.Offset, err)
		return
	}
	c.logger.Debugf("Executed %s command from partition %d offset %d on %d charge points",
		cmd.Command, message.Partition, message.Offset, len(agg.Results()))
}
