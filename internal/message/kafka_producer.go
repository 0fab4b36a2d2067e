package message

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

const eventTypeHeader = "event_type"

type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
}

// NewKafkaProducer 创建一个新的 KafkaProducer
func NewKafkaProducer(cfg config.KafkaConfig, log *logger.Logger) (*KafkaProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 500 * time.Millisecond
	if cfg.Producer.FlushFrequency > 0 {
		saramaConfig.Producer.Flush.Frequency = cfg.Producer.FlushFrequency
	}
	if cfg.Producer.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = cfg.Producer.RetryMax
	}
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}
	return NewKafkaProducerWithAsync(producer, cfg.EventsTopic, log), nil
}

// NewKafkaProducerWithAsync 使用已有的 AsyncProducer 创建，测试时注入 mock
func NewKafkaProducerWithAsync(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	if log == nil {
		log = logger.Default()
	}
	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log.Component("kafka-producer"),
	}

	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp
}

// PublishEvent 以充电桩ID为Key发布，同一充电桩的事件落入同一分区
func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.GetChargePointID()),
		Value: sarama.ByteEncoder(eventData),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(event.GetType())},
		},
	}

	p.producer.Input() <- msg
	metrics.EventsPublished.WithLabelValues(string(event.GetType())).Inc()
	return nil
}

func (p *KafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		p.logger.Debugf("Kafka message sent: topic=%s partition=%d offset=%d key=%s",
			msg.Topic, msg.Partition, msg.Offset, messageKey(msg))
	}
}

func (p *KafkaProducer) handleErrors() {
	for err := range p.producer.Errors() {
		p.logger.Errorf("Failed to send Kafka message: topic=%s key=%s: %v", err.Msg.Topic, messageKey(err.Msg), err.Err)
	}
}

func messageKey(msg *sarama.ProducerMessage) string {
	if key, ok := msg.Key.(sarama.StringEncoder); ok {
		return string(key)
	}
	return ""
}
