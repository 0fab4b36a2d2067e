package message

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
)

// MockAsyncProducer 是 sarama.AsyncProducer 的 mock 实现
type MockAsyncProducer struct {
	mock.Mock
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
}

func NewMockAsyncProducer() *MockAsyncProducer {
	return &MockAsyncProducer{
		input:     make(chan *sarama.ProducerMessage, 8),
		successes: make(chan *sarama.ProducerMessage),
		errors:    make(chan *sarama.ProducerError),
	}
}

func (m *MockAsyncProducer) AsyncClose() {
	close(m.successes)
	close(m.errors)
}

func (m *MockAsyncProducer) Close() error {
	args := m.Called()
	m.AsyncClose()
	return args.Error(0)
}

func (m *MockAsyncProducer) Input() chan<- *sarama.ProducerMessage     { return m.input }
func (m *MockAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return m.successes }
func (m *MockAsyncProducer) Errors() <-chan *sarama.ProducerError      { return m.errors }
func (m *MockAsyncProducer) IsTransactional() bool                     { return false }
func (m *MockAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag   { return sarama.ProducerTxnFlagReady }
func (m *MockAsyncProducer) BeginTxn() error                           { return nil }
func (m *MockAsyncProducer) CommitTxn() error                          { return nil }
func (m *MockAsyncProducer) AbortTxn() error                           { return nil }

func (m *MockAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (m *MockAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

// UnserializableEvent 的 ToJSON 总是返回错误
type UnserializableEvent struct {
	*events.BaseEvent
}

func (e *UnserializableEvent) GetPayload() interface{} {
	return nil
}

func (e *UnserializableEvent) ToJSON() ([]byte, error) {
	return nil, assert.AnError
}

func TestEventProducerInterface(t *testing.T) {
	var _ EventProducer = (*KafkaProducer)(nil)
	var _ EventProducer = (*LogProducer)(nil)
}

func TestPublishEvent_KeyedByChargePoint(t *testing.T) {
	mockProducer := NewMockAsyncProducer()
	kp := NewKafkaProducerWithAsync(mockProducer, "ocpp-events", logger.Nop())

	event := events.NewEventFactory().CreateHeartbeatEvent("CP001", events.Metadata{Source: "test"})
	require.NoError(t, kp.PublishEvent(event))

	msg := <-mockProducer.input
	assert.Equal(t, "ocpp-events", msg.Topic)
	assert.Equal(t, sarama.StringEncoder("CP001"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, string(events.EventTypeChargePointHeartbeat), string(msg.Headers[0].Value))

	value, err := msg.Value.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(value), `"charge_point_id":"CP001"`)
}

func TestPublishEvent_Failure(t *testing.T) {
	kp := NewKafkaProducerWithAsync(NewMockAsyncProducer(), "ocpp-events", logger.Nop())

	badEvent := &UnserializableEvent{
		BaseEvent: events.NewBaseEvent(events.EventType("BadEventType"), "CP001", events.EventSeverityError, events.Metadata{}),
	}

	err := kp.PublishEvent(badEvent)
	assert.Error(t, err, "Expected an error when event serialization fails")
}

func TestClose_Failure(t *testing.T) {
	mockProducer := NewMockAsyncProducer()
	mockProducer.On("Close").Return(assert.AnError)
	kp := NewKafkaProducerWithAsync(mockProducer, "ocpp-events", logger.Nop())

	err := kp.Close()
	assert.Error(t, err, "Expected an error when producer close fails")
	mockProducer.AssertExpectations(t)
}

// recordingProducer 记录发布的事件
type recordingProducer struct {
	published []events.Event
}

func (p *recordingProducer) PublishEvent(event events.Event) error {
	if _, bad := event.(*UnserializableEvent); bad {
		return assert.AnError
	}
	p.published = append(p.published, event)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestForward_DrainsSource(t *testing.T) {
	factory := events.NewEventFactory()
	source := make(chan events.Event, 3)
	source <- factory.CreateHeartbeatEvent("CP001", events.Metadata{})
	source <- &UnserializableEvent{BaseEvent: events.NewBaseEvent(events.EventType("bad"), "CP002", events.EventSeverityError, events.Metadata{})}
	source <- factory.CreateHeartbeatEvent("CP003", events.Metadata{})
	close(source)

	producer := &recordingProducer{}
	Forward(producer, source, logger.Nop())

	require.Len(t, producer.published, 2)
	assert.Equal(t, "CP001", producer.published[0].GetChargePointID())
	assert.Equal(t, "CP003", producer.published[1].GetChargePointID())
}

func TestLogProducer(t *testing.T) {
	p := NewLogProducer(logger.Nop())
	assert.NoError(t, p.PublishEvent(events.NewEventFactory().CreateHeartbeatEvent("CP001", events.Metadata{})))
	assert.Error(t, p.PublishEvent(&UnserializableEvent{BaseEvent: events.NewBaseEvent(events.EventType("bad"), "CP001", events.EventSeverityError, events.Metadata{})}))
	assert.NoError(t, p.Close())
}
