package storage

import (
	"time"
)

// DeviceInfo BootNotification 上报的设备信息
type DeviceInfo struct {
	Vendor                  string  `json:"vendor"`
	Model                   string  `json:"model"`
	ChargePointSerialNumber *string `json:"charge_point_serial_number,omitempty"`
	ChargeBoxSerialNumber   *string `json:"charge_box_serial_number,omitempty"`
	FirmwareVersion         *string `json:"firmware_version,omitempty"`
	Iccid                   *string `json:"iccid,omitempty"`
	Imsi                    *string `json:"imsi,omitempty"`
	MeterType               *string `json:"meter_type,omitempty"`
	MeterSerialNumber       *string `json:"meter_serial_number,omitempty"`
}

// ChargePoint 充电桩注册信息
type ChargePoint struct {
	ID                 string     `json:"id"`
	Endpoint           string     `json:"endpoint"`
	ProtocolVersion    string     `json:"protocol_version"`
	RegistrationStatus string     `json:"registration_status"`
	Device             DeviceInfo `json:"device"`
	RegisteredAt       time.Time  `json:"registered_at"`
	LastHeartbeat      *time.Time `json:"last_heartbeat,omitempty"`
	FirmwareStatus     *string    `json:"firmware_status,omitempty"`
	DiagnosticsStatus  *string    `json:"diagnostics_status,omitempty"`
}

// IdTagRecord 授权标签记录
type IdTagRecord struct {
	IdTag         string     `json:"id_tag"`
	ParentIdTag   *string    `json:"parent_id_tag,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Blocked       bool       `json:"blocked"`
	InTransaction bool       `json:"in_transaction"`
}

// Transaction 充电交易，停止字段只写一次
type Transaction struct {
	ID             int        `json:"id"`
	ChargePointID  string     `json:"charge_point_id"`
	ConnectorID    int        `json:"connector_id"`
	IdTag          string     `json:"id_tag"`
	StartTimestamp time.Time  `json:"start_timestamp"`
	StartMeter     int        `json:"start_meter"`
	ReservationID  *int       `json:"reservation_id,omitempty"`
	StopTimestamp  *time.Time `json:"stop_timestamp,omitempty"`
	StopMeter      *int       `json:"stop_meter,omitempty"`
}

// Closed 交易是否已结束
func (t *Transaction) Closed() bool {
	return t.StopTimestamp != nil
}

// MeterSample 电表采样，只追加
type MeterSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
	Context   *string   `json:"context,omitempty"`
	Format    *string   `json:"format,omitempty"`
	Measurand *string   `json:"measurand,omitempty"`
	Phase     *string   `json:"phase,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Unit      *string   `json:"unit,omitempty"`
}

// ConnectorStatus 连接器状态，按 (ChargePointID, ConnectorID) 最后写入为准
type ConnectorStatus struct {
	ChargePointID   string    `json:"charge_point_id"`
	ConnectorID     int       `json:"connector_id"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"error_code"`
	Info            *string   `json:"info,omitempty"`
	VendorID        *string   `json:"vendor_id,omitempty"`
	VendorErrorCode *string   `json:"vendor_error_code,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ReservationStatus 预约状态
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "Pending"
	ReservationAccepted  ReservationStatus = "Accepted"
	ReservationCancelled ReservationStatus = "Cancelled"
)

// Reservation 连接器预约
type Reservation struct {
	ID            int               `json:"id"`
	IdTag         string            `json:"id_tag"`
	ChargePointID string            `json:"charge_point_id"`
	ConnectorID   *int              `json:"connector_id,omitempty"`
	ParentIdTag   *string           `json:"parent_id_tag,omitempty"`
	ExpiryDate    time.Time         `json:"expiry_date"`
	Status        ReservationStatus `json:"status"`
}

// Active 未取消的预约才视为存在
func (r *Reservation) Active() bool {
	return r.Status != ReservationCancelled
}

// LocalListEntry 本地授权列表的数据源条目
type LocalListEntry struct {
	IdTag       string     `json:"id_tag"`
	ParentIdTag *string    `json:"parent_id_tag,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Blocked     bool       `json:"blocked"`
}
