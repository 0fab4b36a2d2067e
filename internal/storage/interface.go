package storage

import (
	"context"
	"time"
)

// Store 中央系统持久化接口
//
// 领域结果（未找到、重复关闭）以哨兵错误返回，后端故障统一包装为 *StoreError。
type Store interface {
	// UpsertChargePoint 注册或更新充电桩，endpoint 仅来自传输层
	UpsertChargePoint(ctx context.Context, id, endpoint, protocolVersion string, device DeviceInfo, now time.Time) (bool, error)

	// UpdateHeartbeat 更新最后心跳时间
	UpdateHeartbeat(ctx context.Context, id string, now time.Time) error

	// UpdateFirmwareStatus 更新固件状态
	UpdateFirmwareStatus(ctx context.Context, id, status string) error

	// UpdateDiagnosticsStatus 更新诊断状态
	UpdateDiagnosticsStatus(ctx context.Context, id, status string) error

	// ChargePointEndpoint 查询充电桩最近一次注册的回调地址
	ChargePointEndpoint(ctx context.Context, id string) (string, bool, error)

	// GetChargePoint 查询充电桩，不存在时返回 nil, nil
	GetChargePoint(ctx context.Context, id string) (*ChargePoint, error)

	// GetIdTagRecord 查询授权标签，不存在时返回 nil, nil
	GetIdTagRecord(ctx context.Context, idTag string) (*IdTagRecord, error)

	// UpsertIdTag 新增或更新授权标签
	UpsertIdTag(ctx context.Context, record IdTagRecord) error

	// InsertTransaction 创建交易并标记标签为交易中，返回交易ID
	InsertTransaction(ctx context.Context, chargePointID string, connectorID int, idTag string, startTs time.Time, startMeter int, reservationID *int) (int, error)

	// CloseTransaction 写入停止字段并清除交易中标记
	CloseTransaction(ctx context.Context, transactionID int, stopTs time.Time, stopMeter int) error

	// GetTransaction 查询交易，不存在时返回 nil, nil
	GetTransaction(ctx context.Context, transactionID int) (*Transaction, error)

	// ConnectorForTransaction 查询交易所属连接器，未找到不是错误
	ConnectorForTransaction(ctx context.Context, transactionID int) (connectorID int, chargePointID string, found bool, err error)

	// AppendMeterSamples 追加电表采样
	AppendMeterSamples(ctx context.Context, chargePointID string, connectorID int, transactionID *int, samples []MeterSample) error

	// UpsertConnectorStatus 写入连接器最新状态
	UpsertConnectorStatus(ctx context.Context, status ConnectorStatus) error

	// BookReservation 创建 Pending 预约，返回预约ID
	BookReservation(ctx context.Context, idTag, chargePointID string, connectorID *int, expiry time.Time, parentIdTag *string) (int, error)

	// AcceptReservation 将预约标记为 Accepted
	AcceptReservation(ctx context.Context, reservationID int) error

	// CancelReservation 取消预约
	CancelReservation(ctx context.Context, reservationID int) error

	// GetReservation 查询预约，不存在时返回 nil, nil
	GetReservation(ctx context.Context, reservationID int) (*Reservation, error)

	// CurrentLocalListEntries 本地列表数据源，filter 为空时返回全部
	CurrentLocalListEntries(ctx context.Context, chargePointID string, idTagFilter []string) ([]LocalListEntry, error)

	// Close 关闭与存储后端的连接
	Close() error
}

// EndpointRegistry 充电桩回调地址的共享注册表
type EndpointRegistry interface {
	SetEndpoint(ctx context.Context, chargePointID, endpoint string) error
	GetEndpoint(ctx context.Context, chargePointID string) (string, bool, error)
	DeleteEndpoint(ctx context.Context, chargePointID string) error
	Close() error
}
