package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetChargePointID 获取充电桩ID
	GetChargePointID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// GetSeverity 获取事件严重程度
	GetSeverity() EventSeverity
	// GetMetadata 获取事件元数据
	GetMetadata() Metadata
	// GetPayload 获取事件载荷
	GetPayload() interface{}
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	ChargePointID string        `json:"charge_point_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Severity      EventSeverity `json:"severity"`
	Metadata      Metadata      `json:"metadata"`
}

// GetID 实现Event接口
func (e *BaseEvent) GetID() string {
	return e.ID
}

// GetType 实现Event接口
func (e *BaseEvent) GetType() EventType {
	return e.Type
}

// GetChargePointID 实现Event接口
func (e *BaseEvent) GetChargePointID() string {
	return e.ChargePointID
}

// GetTimestamp 实现Event接口
func (e *BaseEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

// GetSeverity 实现Event接口
func (e *BaseEvent) GetSeverity() EventSeverity {
	return e.Severity
}

// GetMetadata 实现Event接口
func (e *BaseEvent) GetMetadata() Metadata {
	return e.Metadata
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, chargePointID string, severity EventSeverity, metadata Metadata) *BaseEvent {
	return &BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ChargePointID: chargePointID,
		Timestamp:     time.Now().UTC(),
		Severity:      severity,
		Metadata:      metadata,
	}
}

// ChargePointConnectedEvent 充电桩连接事件（WebSocket）
type ChargePointConnectedEvent struct {
	*BaseEvent
	RemoteAddr string `json:"remote_addr"`
}

// GetPayload 实现Event接口
func (e *ChargePointConnectedEvent) GetPayload() interface{} {
	return map[string]interface{}{"remote_addr": e.RemoteAddr}
}

// ToJSON 实现Event接口
func (e *ChargePointConnectedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChargePointDisconnectedEvent 充电桩断开连接事件
type ChargePointDisconnectedEvent struct {
	*BaseEvent
	Reason string `json:"reason"`
}

// GetPayload 实现Event接口
func (e *ChargePointDisconnectedEvent) GetPayload() interface{} {
	return map[string]interface{}{"reason": e.Reason}
}

// ToJSON 实现Event接口
func (e *ChargePointDisconnectedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChargePointRegisteredEvent 充电桩注册事件，Rejected 时类型为 charge_point.rejected
type ChargePointRegisteredEvent struct {
	*BaseEvent
	ChargePointInfo ChargePointInfo `json:"charge_point_info"`
	Status          string          `json:"status"`
	Interval        int             `json:"interval"`
}

// GetPayload 实现Event接口
func (e *ChargePointRegisteredEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"charge_point_info": e.ChargePointInfo,
		"status":            e.Status,
		"interval":          e.Interval,
	}
}

// ToJSON 实现Event接口
func (e *ChargePointRegisteredEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChargePointHeartbeatEvent 充电桩心跳事件
type ChargePointHeartbeatEvent struct {
	*BaseEvent
}

// GetPayload 实现Event接口
func (e *ChargePointHeartbeatEvent) GetPayload() interface{} {
	return nil
}

// ToJSON 实现Event接口
func (e *ChargePointHeartbeatEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ConnectorStatusChangedEvent 连接器状态变化事件
type ConnectorStatusChangedEvent struct {
	*BaseEvent
	ConnectorInfo ConnectorInfo `json:"connector_info"`
}

// GetPayload 实现Event接口
func (e *ConnectorStatusChangedEvent) GetPayload() interface{} {
	return e.ConnectorInfo
}

// ToJSON 实现Event接口
func (e *ConnectorStatusChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// MeterValuesReceivedEvent 电表值事件
type MeterValuesReceivedEvent struct {
	*BaseEvent
	ConnectorID   int          `json:"connector_id"`
	TransactionID *int         `json:"transaction_id,omitempty"`
	MeterValues   []MeterValue `json:"meter_values"`
}

// GetPayload 实现Event接口
func (e *MeterValuesReceivedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"connector_id":   e.ConnectorID,
		"transaction_id": e.TransactionID,
		"meter_values":   e.MeterValues,
	}
}

// ToJSON 实现Event接口
func (e *MeterValuesReceivedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionStartedEvent 交易开始事件
type TransactionStartedEvent struct {
	*BaseEvent
	TransactionInfo   TransactionInfo   `json:"transaction_info"`
	AuthorizationInfo AuthorizationInfo `json:"authorization_info"`
}

// GetPayload 实现Event接口
func (e *TransactionStartedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"transaction_info":   e.TransactionInfo,
		"authorization_info": e.AuthorizationInfo,
	}
}

// ToJSON 实现Event接口
func (e *TransactionStartedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionStoppedEvent 交易结束事件
type TransactionStoppedEvent struct {
	*BaseEvent
	TransactionInfo TransactionInfo `json:"transaction_info"`
	SamplesStored   int             `json:"samples_stored"`
	SamplesSkipped  int             `json:"samples_skipped"`
}

// GetPayload 实现Event接口
func (e *TransactionStoppedEvent) GetPayload() interface{} {
	return map[string]interface{}{
		"transaction_info": e.TransactionInfo,
		"samples_stored":   e.SamplesStored,
		"samples_skipped":  e.SamplesSkipped,
	}
}

// ToJSON 实现Event接口
func (e *TransactionStoppedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AuthorizationDecidedEvent 授权判定事件
type AuthorizationDecidedEvent struct {
	*BaseEvent
	AuthorizationInfo AuthorizationInfo `json:"authorization_info"`
}

// GetPayload 实现Event接口
func (e *AuthorizationDecidedEvent) GetPayload() interface{} {
	return e.AuthorizationInfo
}

// ToJSON 实现Event接口
func (e *AuthorizationDecidedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StatusNotificationEvent 固件或诊断状态事件
type StatusNotificationEvent struct {
	*BaseEvent
	Status string `json:"status"`
}

// GetPayload 实现Event接口
func (e *StatusNotificationEvent) GetPayload() interface{} {
	return map[string]interface{}{"status": e.Status}
}

// ToJSON 实现Event接口
func (e *StatusNotificationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// DataTransferReceivedEvent 数据传输事件
type DataTransferReceivedEvent struct {
	*BaseEvent
	DataTransferInfo DataTransferInfo `json:"data_transfer_info"`
}

// GetPayload 实现Event接口
func (e *DataTransferReceivedEvent) GetPayload() interface{} {
	return e.DataTransferInfo
}

// ToJSON 实现Event接口
func (e *DataTransferReceivedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CommandCompletedEvent 下行指令完成事件
type CommandCompletedEvent struct {
	*BaseEvent
	CommandInfo CommandInfo `json:"command_info"`
}

// GetPayload 实现Event接口
func (e *CommandCompletedEvent) GetPayload() interface{} {
	return e.CommandInfo
}

// ToJSON 实现Event接口
func (e *CommandCompletedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFactory 事件工厂
type EventFactory struct{}

// NewEventFactory 创建事件工厂
func NewEventFactory() *EventFactory {
	return &EventFactory{}
}

// CreateChargePointConnectedEvent 创建连接事件
func (f *EventFactory) CreateChargePointConnectedEvent(chargePointID, remoteAddr string, metadata Metadata) *ChargePointConnectedEvent {
	return &ChargePointConnectedEvent{
		BaseEvent:  NewBaseEvent(EventTypeChargePointConnected, chargePointID, EventSeverityInfo, metadata),
		RemoteAddr: remoteAddr,
	}
}

// CreateChargePointDisconnectedEvent 创建断开事件
func (f *EventFactory) CreateChargePointDisconnectedEvent(chargePointID, reason string, metadata Metadata) *ChargePointDisconnectedEvent {
	return &ChargePointDisconnectedEvent{
		BaseEvent: NewBaseEvent(EventTypeChargePointDisconnected, chargePointID, EventSeverityWarning, metadata),
		Reason:    reason,
	}
}

// CreateChargePointRegisteredEvent 创建注册事件
func (f *EventFactory) CreateChargePointRegisteredEvent(info ChargePointInfo, status string, interval int, metadata Metadata) *ChargePointRegisteredEvent {
	eventType, severity := EventTypeChargePointRegistered, EventSeverityInfo
	if status != "Accepted" {
		eventType, severity = EventTypeChargePointRejected, EventSeverityWarning
	}
	return &ChargePointRegisteredEvent{
		BaseEvent:       NewBaseEvent(eventType, info.ID, severity, metadata),
		ChargePointInfo: info,
		Status:          status,
		Interval:        interval,
	}
}

// CreateHeartbeatEvent 创建心跳事件
func (f *EventFactory) CreateHeartbeatEvent(chargePointID string, metadata Metadata) *ChargePointHeartbeatEvent {
	return &ChargePointHeartbeatEvent{
		BaseEvent: NewBaseEvent(EventTypeChargePointHeartbeat, chargePointID, EventSeverityInfo, metadata),
	}
}

// CreateConnectorStatusChangedEvent 创建连接器状态事件
func (f *EventFactory) CreateConnectorStatusChangedEvent(info ConnectorInfo, metadata Metadata) *ConnectorStatusChangedEvent {
	severity := EventSeverityInfo
	if info.Status == "Faulted" {
		severity = EventSeverityError
	}
	return &ConnectorStatusChangedEvent{
		BaseEvent:     NewBaseEvent(EventTypeConnectorStatusChanged, info.ChargePointID, severity, metadata),
		ConnectorInfo: info,
	}
}

// CreateMeterValuesReceivedEvent 创建电表值事件
func (f *EventFactory) CreateMeterValuesReceivedEvent(chargePointID string, connectorID int, transactionID *int, values []MeterValue, metadata Metadata) *MeterValuesReceivedEvent {
	return &MeterValuesReceivedEvent{
		BaseEvent:     NewBaseEvent(EventTypeMeterValuesReceived, chargePointID, EventSeverityInfo, metadata),
		ConnectorID:   connectorID,
		TransactionID: transactionID,
		MeterValues:   values,
	}
}

// CreateTransactionStartedEvent 创建交易开始事件
func (f *EventFactory) CreateTransactionStartedEvent(tx TransactionInfo, auth AuthorizationInfo, metadata Metadata) *TransactionStartedEvent {
	return &TransactionStartedEvent{
		BaseEvent:         NewBaseEvent(EventTypeTransactionStarted, tx.ChargePointID, EventSeverityInfo, metadata),
		TransactionInfo:   tx,
		AuthorizationInfo: auth,
	}
}

// CreateTransactionStoppedEvent 创建交易结束事件
func (f *EventFactory) CreateTransactionStoppedEvent(tx TransactionInfo, stored, skipped int, metadata Metadata) *TransactionStoppedEvent {
	return &TransactionStoppedEvent{
		BaseEvent:       NewBaseEvent(EventTypeTransactionStopped, tx.ChargePointID, EventSeverityInfo, metadata),
		TransactionInfo: tx,
		SamplesStored:   stored,
		SamplesSkipped:  skipped,
	}
}

// CreateAuthorizationDecidedEvent 创建授权判定事件
func (f *EventFactory) CreateAuthorizationDecidedEvent(chargePointID string, auth AuthorizationInfo, metadata Metadata) *AuthorizationDecidedEvent {
	severity := EventSeverityInfo
	if auth.Result != "Accepted" {
		severity = EventSeverityWarning
	}
	return &AuthorizationDecidedEvent{
		BaseEvent:         NewBaseEvent(EventTypeAuthorizationDecided, chargePointID, severity, metadata),
		AuthorizationInfo: auth,
	}
}

// CreateFirmwareStatusEvent 创建固件状态事件
func (f *EventFactory) CreateFirmwareStatusEvent(chargePointID, status string, metadata Metadata) *StatusNotificationEvent {
	return &StatusNotificationEvent{
		BaseEvent: NewBaseEvent(EventTypeFirmwareStatusChanged, chargePointID, EventSeverityInfo, metadata),
		Status:    status,
	}
}

// CreateDiagnosticsStatusEvent 创建诊断状态事件
func (f *EventFactory) CreateDiagnosticsStatusEvent(chargePointID, status string, metadata Metadata) *StatusNotificationEvent {
	return &StatusNotificationEvent{
		BaseEvent: NewBaseEvent(EventTypeDiagnosticsStatusChanged, chargePointID, EventSeverityInfo, metadata),
		Status:    status,
	}
}

// CreateDataTransferReceivedEvent 创建数据传输事件
func (f *EventFactory) CreateDataTransferReceivedEvent(chargePointID string, info DataTransferInfo, metadata Metadata) *DataTransferReceivedEvent {
	return &DataTransferReceivedEvent{
		BaseEvent:        NewBaseEvent(EventTypeDataTransferReceived, chargePointID, EventSeverityInfo, metadata),
		DataTransferInfo: info,
	}
}

// CreateCommandCompletedEvent 创建指令完成事件
func (f *EventFactory) CreateCommandCompletedEvent(chargePointID string, info CommandInfo, metadata Metadata) *CommandCompletedEvent {
	severity := EventSeverityInfo
	if info.Status != "Succeeded" {
		severity = EventSeverityWarning
	}
	return &CommandCompletedEvent{
		BaseEvent:   NewBaseEvent(EventTypeCommandCompleted, chargePointID, severity, metadata),
		CommandInfo: info,
	}
}
