package ocpp16

import (
	"encoding/json"
	"encoding/xml"
)

// Message OCPP消息基础结构
type Message struct {
	MessageTypeID MessageType `json:"messageTypeId"`
	MessageID     string      `json:"messageId"`
	Action        Action      `json:"action,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
}

// CallMessage 请求消息
type CallMessage struct {
	MessageTypeID MessageType `json:"messageTypeId"`
	MessageID     string      `json:"messageId"`
	Action        Action      `json:"action"`
	Payload       interface{} `json:"payload"`
}

// CallResultMessage 响应消息
type CallResultMessage struct {
	MessageTypeID MessageType `json:"messageTypeId"`
	MessageID     string      `json:"messageId"`
	Payload       interface{} `json:"payload"`
}

// CallErrorMessage 错误消息
type CallErrorMessage struct {
	MessageTypeID    MessageType `json:"messageTypeId"`
	MessageID        string      `json:"messageId"`
	ErrorCode        string      `json:"errorCode"`
	ErrorDescription string      `json:"errorDescription"`
	ErrorDetails     interface{} `json:"errorDetails,omitempty"`
}

// ===== Charge point -> Central system =====

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" xml:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" xml:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" xml:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty" xml:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" xml:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" xml:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" xml:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" xml:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" xml:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" xml:"status" validate:"required"`
	CurrentTime DateTime           `json:"currentTime" xml:"currentTime" validate:"required"`
	Interval    int                `json:"interval" xml:"interval" validate:"min=0"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" xml:"currentTime" validate:"required"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId" xml:"connectorId" validate:"min=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" xml:"errorCode" validate:"required"`
	Info            *string              `json:"info,omitempty" xml:"info,omitempty" validate:"omitempty,max=50"`
	Status          ChargePointStatus    `json:"status" xml:"status" validate:"required"`
	Timestamp       *DateTime            `json:"timestamp,omitempty" xml:"timestamp,omitempty"`
	VendorId        *string              `json:"vendorId,omitempty" xml:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode *string              `json:"vendorErrorCode,omitempty" xml:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdTag string `json:"idTag" xml:"idTag" validate:"required,max=20"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" xml:"idTagInfo" validate:"required"`
}

// StartTransactionRequest 开始交易请求
type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId" xml:"connectorId" validate:"min=1"`
	IdTag         string   `json:"idTag" xml:"idTag" validate:"required,max=20"`
	MeterStart    int      `json:"meterStart" xml:"meterStart" validate:"min=0"`
	ReservationId *int     `json:"reservationId,omitempty" xml:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp" xml:"timestamp" validate:"required"`
}

// StartTransactionResponse 开始交易响应
// TransactionId 仅在授权通过时存在，报文层面缺省写0
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" xml:"idTagInfo" validate:"required"`
	TransactionId *int      `json:"transactionId" xml:"transactionId"`
}

type startTransactionResponseWire struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" xml:"idTagInfo"`
	TransactionId int       `json:"transactionId" xml:"transactionId"`
}

func (r StartTransactionResponse) wire() startTransactionResponseWire {
	w := startTransactionResponseWire{IdTagInfo: r.IdTagInfo}
	if r.TransactionId != nil {
		w.TransactionId = *r.TransactionId
	}
	return w
}

// MarshalJSON transactionId 为必填字段
func (r StartTransactionResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalXML transactionId 为必填字段
func (r StartTransactionResponse) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(r.wire(), start)
}

// StopTransactionRequest 停止交易请求
type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" xml:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int          `json:"meterStop" xml:"meterStop" validate:"min=0"`
	Timestamp       DateTime     `json:"timestamp" xml:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId" xml:"transactionId"`
	Reason          *Reason      `json:"reason,omitempty" xml:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty" xml:"transactionData,omitempty" validate:"omitempty,dive"`
}

// StopTransactionResponse 停止交易响应
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty" xml:"idTagInfo,omitempty"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" xml:"connectorId" validate:"min=0"`
	TransactionId *int         `json:"transactionId,omitempty" xml:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" xml:"meterValue" validate:"omitempty,dive"`
}

// MeterValuesResponse 电表值响应
type MeterValuesResponse struct{}

// FirmwareStatusNotificationRequest 固件状态通知请求
type FirmwareStatusNotificationRequest struct {
	Status FirmwareStatus `json:"status" xml:"status" validate:"required"`
}

// FirmwareStatusNotificationResponse 固件状态通知响应
type FirmwareStatusNotificationResponse struct{}

// DiagnosticsStatusNotificationRequest 诊断状态通知请求
type DiagnosticsStatusNotificationRequest struct {
	Status DiagnosticsStatus `json:"status" xml:"status" validate:"required"`
}

// DiagnosticsStatusNotificationResponse 诊断状态通知响应
type DiagnosticsStatusNotificationResponse struct{}

// DataTransferRequest 数据传输请求，双向使用
type DataTransferRequest struct {
	VendorId  string  `json:"vendorId" xml:"vendorId" validate:"required,max=255"`
	MessageId *string `json:"messageId,omitempty" xml:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      *string `json:"data,omitempty" xml:"data,omitempty"`
}

// DataTransferResponse 数据传输响应
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" xml:"status" validate:"required"`
	Data   *string            `json:"data,omitempty" xml:"data,omitempty"`
}

// DataTransferStatus 数据传输状态
type DataTransferStatus string

const (
	DataTransferStatusAccepted         DataTransferStatus = "Accepted"
	DataTransferStatusRejected         DataTransferStatus = "Rejected"
	DataTransferStatusUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferStatusUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

// ===== Central system -> Charge point =====

// ResetRequest 重置请求
type ResetRequest struct {
	Type ResetType `json:"type" xml:"type" validate:"required,oneof=Hard Soft"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status ResetStatus `json:"status" xml:"status" validate:"required"`
}

// ResetStatus 重置状态
type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

// ChangeAvailabilityRequest 改变可用性请求
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId" xml:"connectorId" validate:"min=0"`
	Type        AvailabilityType `json:"type" xml:"type" validate:"required,oneof=Inoperative Operative"`
}

// ChangeAvailabilityResponse 改变可用性响应
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status" xml:"status" validate:"required"`
}

// GetConfigurationRequest 获取配置请求
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty" xml:"key,omitempty" validate:"omitempty,dive,max=50"`
}

// GetConfigurationResponse 获取配置响应
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty" xml:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty" xml:"unknownKey,omitempty"`
}

// ChangeConfigurationRequest 改变配置请求
type ChangeConfigurationRequest struct {
	Key   string `json:"key" xml:"key" validate:"required,max=50"`
	Value string `json:"value" xml:"value" validate:"required,max=500"`
}

// ChangeConfigurationResponse 改变配置响应
type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status" xml:"status" validate:"required"`
}

// ClearCacheRequest 清除缓存请求
type ClearCacheRequest struct{}

// ClearCacheResponse 清除缓存响应
type ClearCacheResponse struct {
	Status ClearCacheStatus `json:"status" xml:"status" validate:"required"`
}

// UnlockConnectorRequest 解锁连接器请求
type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId" xml:"connectorId" validate:"min=1"`
}

// UnlockConnectorResponse 解锁连接器响应
type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status" xml:"status" validate:"required"`
}

// RemoteStartTransactionRequest 远程开始交易请求
type RemoteStartTransactionRequest struct {
	ConnectorId     *int             `json:"connectorId,omitempty" xml:"connectorId,omitempty" validate:"omitempty,min=1"`
	IdTag           string           `json:"idTag" xml:"idTag" validate:"required,max=20"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty" xml:"chargingProfile,omitempty"`
}

// RemoteStartTransactionResponse 远程开始交易响应
type RemoteStartTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" xml:"status" validate:"required"`
}

// RemoteStopTransactionRequest 远程停止交易请求
type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId" xml:"transactionId"`
}

// RemoteStopTransactionResponse 远程停止交易响应
type RemoteStopTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" xml:"status" validate:"required"`
}

// GetDiagnosticsRequest 获取诊断请求
type GetDiagnosticsRequest struct {
	Location      string    `json:"location" xml:"location" validate:"required,uri"`
	Retries       *int      `json:"retries,omitempty" xml:"retries,omitempty" validate:"omitempty,min=0"`
	RetryInterval *int      `json:"retryInterval,omitempty" xml:"retryInterval,omitempty" validate:"omitempty,min=0"`
	StartTime     *DateTime `json:"startTime,omitempty" xml:"startTime,omitempty"`
	StopTime      *DateTime `json:"stopTime,omitempty" xml:"stopTime,omitempty"`
}

// GetDiagnosticsResponse 获取诊断响应
type GetDiagnosticsResponse struct {
	FileName *string `json:"fileName,omitempty" xml:"fileName,omitempty" validate:"omitempty,max=255"`
}

// UpdateFirmwareRequest 固件升级请求
type UpdateFirmwareRequest struct {
	Location      string   `json:"location" xml:"location" validate:"required,uri"`
	Retries       *int     `json:"retries,omitempty" xml:"retries,omitempty" validate:"omitempty,min=0"`
	RetrieveDate  DateTime `json:"retrieveDate" xml:"retrieveDate" validate:"required"`
	RetryInterval *int     `json:"retryInterval,omitempty" xml:"retryInterval,omitempty" validate:"omitempty,min=0"`
}

// UpdateFirmwareResponse 固件升级响应
type UpdateFirmwareResponse struct{}

// GetLocalListVersionRequest 获取本地列表版本请求
type GetLocalListVersionRequest struct{}

// GetLocalListVersionResponse 获取本地列表版本响应
type GetLocalListVersionResponse struct {
	ListVersion int `json:"listVersion" xml:"listVersion"`
}

// AuthorizationData 本地列表条目，IdTagInfo 为空表示删除
type AuthorizationData struct {
	IdTag     string     `json:"idTag" xml:"idTag" validate:"required,max=20"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty" xml:"idTagInfo,omitempty"`
}

// SendLocalListRequest 下发本地列表请求
type SendLocalListRequest struct {
	ListVersion            int                 `json:"listVersion" xml:"listVersion" validate:"min=0"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty" xml:"localAuthorizationList,omitempty" validate:"omitempty,dive"`
	UpdateType             UpdateType          `json:"updateType" xml:"updateType" validate:"required,oneof=Differential Full"`
}

// SendLocalListResponse 下发本地列表响应
type SendLocalListResponse struct {
	Status UpdateStatus `json:"status" xml:"status" validate:"required"`
	Hash   *string      `json:"hash,omitempty" xml:"hash,omitempty"`
}

// ReserveNowRequest 预约请求
type ReserveNowRequest struct {
	ConnectorId   int      `json:"connectorId" xml:"connectorId" validate:"min=0"`
	ExpiryDate    DateTime `json:"expiryDate" xml:"expiryDate" validate:"required"`
	IdTag         string   `json:"idTag" xml:"idTag" validate:"required,max=20"`
	ParentIdTag   *string  `json:"parentIdTag,omitempty" xml:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	ReservationId int      `json:"reservationId" xml:"reservationId"`
}

// ReserveNowResponse 预约响应
type ReserveNowResponse struct {
	Status ReservationStatus `json:"status" xml:"status" validate:"required"`
}

// CancelReservationRequest 取消预约请求
type CancelReservationRequest struct {
	ReservationId int `json:"reservationId" xml:"reservationId"`
}

// CancelReservationResponse 取消预约响应
type CancelReservationResponse struct {
	Status CancelReservationStatus `json:"status" xml:"status" validate:"required"`
}

// ChargingProfile 充电配置文件
type ChargingProfile struct {
	ChargingProfileId      int                    `json:"chargingProfileId" xml:"chargingProfileId"`
	TransactionId          *int                   `json:"transactionId,omitempty" xml:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel" xml:"stackLevel" validate:"min=0"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" xml:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind" xml:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKind        `json:"recurrencyKind,omitempty" xml:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty" xml:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty" xml:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule" xml:"chargingSchedule" validate:"required"`
}

// ChargingProfilePurpose 充电配置文件目的
type ChargingProfilePurpose string

const (
	ChargingProfilePurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	ChargingProfilePurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	ChargingProfilePurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind 充电配置文件类型
type ChargingProfileKind string

const (
	ChargingProfileKindAbsolute  ChargingProfileKind = "Absolute"
	ChargingProfileKindRecurring ChargingProfileKind = "Recurring"
	ChargingProfileKindRelative  ChargingProfileKind = "Relative"
)

// RecurrencyKind 重复类型
type RecurrencyKind string

const (
	RecurrencyKindDaily  RecurrencyKind = "Daily"
	RecurrencyKindWeekly RecurrencyKind = "Weekly"
)

// ChargingSchedule 充电计划
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty" xml:"duration,omitempty" validate:"omitempty,min=0"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty" xml:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" xml:"chargingRateUnit" validate:"required"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" xml:"chargingSchedulePeriod" validate:"required,min=1,dive"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" xml:"minChargingRate,omitempty"`
}

// ChargingRateUnit 充电速率单位
type ChargingRateUnit string

const (
	ChargingRateUnitW ChargingRateUnit = "W"
	ChargingRateUnitA ChargingRateUnit = "A"
)

// ChargingSchedulePeriod 充电计划周期
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod" xml:"startPeriod" validate:"min=0"`
	Limit        float64 `json:"limit" xml:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty" xml:"numberPhases,omitempty" validate:"omitempty,min=1,max=3"`
}
