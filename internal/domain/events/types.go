package events

import (
	"time"
)

// EventType 事件类型
type EventType string

const (
	// 充电桩生命周期事件
	EventTypeChargePointConnected    EventType = "charge_point.connected"
	EventTypeChargePointDisconnected EventType = "charge_point.disconnected"
	EventTypeChargePointRegistered   EventType = "charge_point.registered"
	EventTypeChargePointRejected     EventType = "charge_point.rejected"
	EventTypeChargePointHeartbeat    EventType = "charge_point.heartbeat"

	// 连接器与电表事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"
	EventTypeMeterValuesReceived    EventType = "meter_values.received"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// 授权事件
	EventTypeAuthorizationDecided EventType = "authorization.decided"

	// 固件与诊断事件
	EventTypeFirmwareStatusChanged    EventType = "firmware.status_changed"
	EventTypeDiagnosticsStatusChanged EventType = "diagnostics.status_changed"

	// 数据传输事件
	EventTypeDataTransferReceived EventType = "data_transfer.received"

	// 下行指令事件
	EventTypeCommandCompleted EventType = "command.completed"
)

// EventSeverity 事件严重程度
type EventSeverity string

const (
	EventSeverityInfo     EventSeverity = "info"
	EventSeverityWarning  EventSeverity = "warning"
	EventSeverityError    EventSeverity = "error"
	EventSeverityCritical EventSeverity = "critical"
)

// ChargePointInfo 充电桩基本信息
type ChargePointInfo struct {
	ID              string    `json:"id"`
	Vendor          string    `json:"vendor"`
	Model           string    `json:"model"`
	SerialNumber    *string   `json:"serial_number,omitempty"`
	FirmwareVersion *string   `json:"firmware_version,omitempty"`
	Endpoint        string    `json:"endpoint,omitempty"`
	LastSeen        time.Time `json:"last_seen"`
	ProtocolVersion string    `json:"protocol_version"`
}

// ConnectorInfo 连接器信息
type ConnectorInfo struct {
	ID              int       `json:"id"`
	ChargePointID   string    `json:"charge_point_id"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"error_code"`
	Info            *string   `json:"info,omitempty"`
	VendorID        *string   `json:"vendor_id,omitempty"`
	VendorErrorCode *string   `json:"vendor_error_code,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionInfo 交易信息
type TransactionInfo struct {
	ID            int        `json:"id"`
	ChargePointID string     `json:"charge_point_id"`
	ConnectorID   int        `json:"connector_id"`
	IdTag         string     `json:"id_tag"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	MeterStart    *int       `json:"meter_start,omitempty"`
	MeterStop     *int       `json:"meter_stop,omitempty"`
	StopReason    *string    `json:"stop_reason,omitempty"`
	ReservationID *int       `json:"reservation_id,omitempty"`
}

// MeterValue 统一的电表值
type MeterValue struct {
	Measurand *string   `json:"measurand,omitempty"`
	Value     string    `json:"value"`
	Unit      *string   `json:"unit,omitempty"`
	Phase     *string   `json:"phase,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Context   *string   `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthorizationInfo 授权信息
type AuthorizationInfo struct {
	IdTag       string     `json:"id_tag"`
	Result      string     `json:"result"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	ParentIdTag *string    `json:"parent_id_tag,omitempty"`
	Trigger     string     `json:"trigger"`
}

// DataTransferInfo 数据传输信息
type DataTransferInfo struct {
	VendorID  string  `json:"vendor_id"`
	MessageID *string `json:"message_id,omitempty"`
	Data      *string `json:"data,omitempty"`
	Status    string  `json:"status"`
}

// CommandInfo 下行指令执行结果
type CommandInfo struct {
	Command  string `json:"command"`
	Status   string `json:"status"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Metadata 事件元数据
type Metadata struct {
	Source          string                 `json:"source"`                   // 事件源标识
	CorrelationID   *string                `json:"correlation_id,omitempty"` // 关联ID
	Transport       string                 `json:"transport,omitempty"`      // json / soap
	ProtocolVersion string                 `json:"protocol_version"`         // 协议版本
	MessageID       *string                `json:"message_id,omitempty"`     // 原始消息ID
	Custom          map[string]interface{} `json:"custom,omitempty"`         // 自定义字段
}
