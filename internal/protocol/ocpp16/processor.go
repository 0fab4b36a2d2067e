package ocpp16

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport"
)

// EndpointRecorder 记录充电桩注册时上报的回调地址
type EndpointRecorder interface {
	RecordEndpoint(ctx context.Context, chargePointID, endpoint string) error
}

// ProcessorConfig 处理器配置
type ProcessorConfig struct {
	// 心跳间隔，BootNotification 应答中下发
	HeartbeatInterval time.Duration
	// 授权结果有效期
	IdTagValidity time.Duration
	// OCPP-J 帧最大字节数
	MaxMessageSize int
	// 事件通道容量
	EventChannelSize int
	EnableEvents     bool
}

// DefaultProcessorConfig 默认处理器配置
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		HeartbeatInterval: 300 * time.Second,
		IdTagValidity:     time.Hour,
		MaxMessageSize:    1024 * 1024,
		EventChannelSize:  1000,
		EnableEvents:      true,
	}
}

// Processor 处理充电桩发起的 OCPP 1.6 请求，两种传输共用
type Processor struct {
	config     *ProcessorConfig
	store      storage.Store
	correlator *transaction.Correlator
	endpoints  EndpointRecorder

	serializer   *serialization.Serializer
	validator    *validation.Validator
	eventFactory *events.EventFactory
	eventChan    chan events.Event

	logger *logger.Logger
	now    func() time.Time

	mu      sync.RWMutex
	stopped bool
}

// NewProcessor 创建处理器，endpoints 可为 nil
func NewProcessor(config *ProcessorConfig, store storage.Store, correlator *transaction.Correlator, endpoints EndpointRecorder, log *logger.Logger) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	if correlator == nil {
		correlator = transaction.NewCorrelator(store, log)
	}

	return &Processor{
		config:       config,
		store:        store,
		correlator:   correlator,
		endpoints:    endpoints,
		serializer:   serialization.NewSerializer(),
		validator:    validation.NewValidator(),
		eventFactory: events.NewEventFactory(),
		eventChan:    make(chan events.Event, config.EventChannelSize),
		logger:       log.Component("ocpp16-processor"),
		now:          time.Now,
	}
}

// GetEventChannel 获取事件通道
func (p *Processor) GetEventChannel() <-chan events.Event {
	return p.eventChan
}

// Stop 停止处理器并关闭事件通道
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.eventChan)
	p.logger.Info("OCPP 1.6 processor stopped")
}

// HandleRequest 实现 transport.Handler
func (p *Processor) HandleRequest(ctx context.Context, cc transport.CallContext, action ocpp16.Action, payload interface{}) (interface{}, error) {
	start := time.Now()
	metrics.InboundMessages.WithLabelValues(cc.Transport, string(action)).Inc()
	defer func() {
		metrics.InboundProcessingDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	}()

	if err := p.validator.ValidateStruct(payload); err != nil {
		if action != ocpp16.ActionBootNotification {
			return nil, transport.NewCallError(ocpp16.ErrorCodePropertyConstraintViolation, "%v", err)
		}
		// BootNotification 宽松处理，可选字段格式错误不拒绝注册
		p.logger.Warnf("BootNotification from %s has invalid fields: %v", cc.ChargePointID, err)
	}

	switch req := payload.(type) {
	case *ocpp16.BootNotificationRequest:
		return p.handleBootNotification(ctx, cc, req)
	case *ocpp16.HeartbeatRequest:
		return p.handleHeartbeat(ctx, cc)
	case *ocpp16.StatusNotificationRequest:
		return p.handleStatusNotification(ctx, cc, req)
	case *ocpp16.MeterValuesRequest:
		return p.handleMeterValues(ctx, cc, req)
	case *ocpp16.AuthorizeRequest:
		return p.handleAuthorize(ctx, cc, req)
	case *ocpp16.StartTransactionRequest:
		return p.handleStartTransaction(ctx, cc, req)
	case *ocpp16.StopTransactionRequest:
		return p.handleStopTransaction(ctx, cc, req)
	case *ocpp16.FirmwareStatusNotificationRequest:
		return p.handleFirmwareStatusNotification(ctx, cc, req)
	case *ocpp16.DiagnosticsStatusNotificationRequest:
		return p.handleDiagnosticsStatusNotification(ctx, cc, req)
	case *ocpp16.DataTransferRequest:
		return p.handleDataTransfer(ctx, cc, req)
	default:
		return nil, transport.NewCallError(ocpp16.ErrorCodeNotImplemented, "action %s is not supported by the central system", action)
	}
}

// ProcessMessage 处理 OCPP-J Call 帧并返回应答帧（CallResult 或 CallError）
//
// 仅在帧无法识别、无法回复时返回错误。
func (p *Processor) ProcessMessage(ctx context.Context, cc transport.CallContext, data []byte) ([]byte, error) {
	if p.config.MaxMessageSize > 0 {
		if err := p.validator.ValidateMessageSize(data, p.config.MaxMessageSize); err != nil {
			return nil, err
		}
	}

	frame, err := p.serializer.DeserializeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("message deserialization failed: %w", err)
	}
	if frame.MessageType != ocpp16.Call {
		return nil, fmt.Errorf("unexpected message type %d for inbound call", frame.MessageType)
	}
	cc.MessageID = frame.MessageID

	payload := serialization.CreatePayloadInstance(frame.Action, true)
	if payload == nil {
		metrics.InboundMessages.WithLabelValues(cc.Transport, string(frame.Action)).Inc()
		return p.serializer.SerializeCallError(frame.MessageID, ocpp16.ErrorCodeNotImplemented,
			fmt.Sprintf("action %s is not supported by the central system", frame.Action), nil)
	}
	if err := p.serializer.DeserializePayload(frame.Payload, payload); err != nil {
		return p.serializer.SerializeCallError(frame.MessageID, ocpp16.ErrorCodeFormationViolation, err.Error(), nil)
	}

	response, err := p.HandleRequest(ctx, cc, frame.Action, payload)
	if err != nil {
		code, description := CallErrorFor(err)
		p.logger.Warnf("%s from %s failed: %v", frame.Action, cc.ChargePointID, err)
		return p.serializer.SerializeCallError(frame.MessageID, code, description, nil)
	}
	return p.serializer.SerializeCallResult(frame.MessageID, response)
}

// CallErrorFor 将处理错误映射为协议错误码
func CallErrorFor(err error) (ocpp16.ErrorCode, string) {
	var callErr *transport.CallError
	if errors.As(err, &callErr) {
		return callErr.Code, callErr.Description
	}
	if storage.IsStoreError(err) {
		return ocpp16.ErrorCodeInternalError, "storage unavailable"
	}
	return ocpp16.ErrorCodeInternalError, "internal error while processing request"
}

func (p *Processor) metadata(cc transport.CallContext) events.Metadata {
	md := events.Metadata{
		Source:          "ocpp16-processor",
		Transport:       cc.Transport,
		ProtocolVersion: cc.ProtocolVersion,
	}
	if cc.MessageID != "" {
		id := cc.MessageID
		md.MessageID = &id
	}
	return md
}

// emit 非阻塞发送事件，通道满时丢弃
func (p *Processor) emit(event events.Event) {
	if !p.config.EnableEvents || event == nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}

	select {
	case p.eventChan <- event:
	default:
		p.logger.Warnf("Event channel full, dropping %s event for %s", event.GetType(), event.GetChargePointID())
	}
}
