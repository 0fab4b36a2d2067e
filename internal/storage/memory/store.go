// Package memory 提供进程内存储实现，用于开发模式与测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/storage"
)

type connectorKey struct {
	chargePointID string
	connectorID   int
}

// SampleRecord 已保存的电表采样及其归属
type SampleRecord struct {
	ChargePointID string
	ConnectorID   int
	TransactionID *int
	Sample        storage.MeterSample
}

// Store 内存存储
type Store struct {
	mu sync.RWMutex

	chargePoints map[string]*storage.ChargePoint
	idTags       map[string]*storage.IdTagRecord
	transactions map[int]*storage.Transaction
	connectors   map[connectorKey]storage.ConnectorStatus
	reservations map[int]*storage.Reservation
	samples      []SampleRecord

	nextTransactionID int
	nextReservationID int
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{
		chargePoints:      make(map[string]*storage.ChargePoint),
		idTags:            make(map[string]*storage.IdTagRecord),
		transactions:      make(map[int]*storage.Transaction),
		connectors:        make(map[connectorKey]storage.ConnectorStatus),
		reservations:      make(map[int]*storage.Reservation),
		nextTransactionID: 1,
		nextReservationID: 1,
	}
}

var _ storage.Store = (*Store)(nil)

// UpsertChargePoint 注册或更新充电桩
func (s *Store) UpsertChargePoint(ctx context.Context, id, endpoint, protocolVersion string, device storage.DeviceInfo, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.chargePoints[id]
	if !ok {
		cp = &storage.ChargePoint{ID: id, RegisteredAt: now}
		s.chargePoints[id] = cp
	}
	cp.Endpoint = endpoint
	cp.ProtocolVersion = protocolVersion
	cp.Device = device
	cp.RegistrationStatus = "Accepted"
	cp.LastHeartbeat = &now
	return true, nil
}

// UpdateHeartbeat 更新最后心跳时间
func (s *Store) UpdateHeartbeat(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.chargePoints[id]
	if !ok {
		return storage.ErrNotFound
	}
	cp.LastHeartbeat = &now
	return nil
}

// UpdateFirmwareStatus 更新固件状态
func (s *Store) UpdateFirmwareStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.chargePoints[id]
	if !ok {
		return storage.ErrNotFound
	}
	cp.FirmwareStatus = &status
	return nil
}

// UpdateDiagnosticsStatus 更新诊断状态
func (s *Store) UpdateDiagnosticsStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.chargePoints[id]
	if !ok {
		return storage.ErrNotFound
	}
	cp.DiagnosticsStatus = &status
	return nil
}

// ChargePointEndpoint 查询回调地址
func (s *Store) ChargePointEndpoint(ctx context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.chargePoints[id]
	if !ok || cp.Endpoint == "" {
		return "", false, nil
	}
	return cp.Endpoint, true, nil
}

// GetChargePoint 查询充电桩
func (s *Store) GetChargePoint(ctx context.Context, id string) (*storage.ChargePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.chargePoints[id]
	if !ok {
		return nil, nil
	}
	copied := *cp
	return &copied, nil
}

// GetIdTagRecord 查询授权标签
func (s *Store) GetIdTagRecord(ctx context.Context, idTag string) (*storage.IdTagRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.idTags[idTag]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// UpsertIdTag 新增或更新授权标签，更新时保留交易中标记
func (s *Store) UpsertIdTag(ctx context.Context, record storage.IdTagRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := record
	if existing, ok := s.idTags[record.IdTag]; ok {
		copied.InTransaction = existing.InTransaction
	}
	s.idTags[record.IdTag] = &copied
	return nil
}

// InsertTransaction 创建交易
func (s *Store) InsertTransaction(ctx context.Context, chargePointID string, connectorID int, idTag string, startTs time.Time, startMeter int, reservationID *int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions {
		if tx.ChargePointID == chargePointID && tx.ConnectorID == connectorID && !tx.Closed() {
			return 0, storage.ErrConnectorOccupied
		}
	}

	id := s.nextTransactionID
	s.nextTransactionID++
	s.transactions[id] = &storage.Transaction{
		ID:             id,
		ChargePointID:  chargePointID,
		ConnectorID:    connectorID,
		IdTag:          idTag,
		StartTimestamp: startTs,
		StartMeter:     startMeter,
		ReservationID:  reservationID,
	}
	if rec, ok := s.idTags[idTag]; ok {
		rec.InTransaction = true
	}
	return id, nil
}

// CloseTransaction 结束交易
func (s *Store) CloseTransaction(ctx context.Context, transactionID int, stopTs time.Time, stopMeter int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return storage.ErrNotFound
	}
	if tx.Closed() {
		return storage.ErrTransactionClosed
	}
	tx.StopTimestamp = &stopTs
	tx.StopMeter = &stopMeter
	if rec, ok := s.idTags[tx.IdTag]; ok {
		rec.InTransaction = false
	}
	return nil
}

// GetTransaction 查询交易
func (s *Store) GetTransaction(ctx context.Context, transactionID int) (*storage.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, nil
	}
	copied := *tx
	return &copied, nil
}

// ConnectorForTransaction 查询交易所属连接器
func (s *Store) ConnectorForTransaction(ctx context.Context, transactionID int) (int, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return 0, "", false, nil
	}
	return tx.ConnectorID, tx.ChargePointID, true, nil
}

// AppendMeterSamples 追加电表采样
func (s *Store) AppendMeterSamples(ctx context.Context, chargePointID string, connectorID int, transactionID *int, samples []storage.MeterSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		s.samples = append(s.samples, SampleRecord{
			ChargePointID: chargePointID,
			ConnectorID:   connectorID,
			TransactionID: transactionID,
			Sample:        sample,
		})
	}
	return nil
}

// UpsertConnectorStatus 写入连接器状态
func (s *Store) UpsertConnectorStatus(ctx context.Context, status storage.ConnectorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectors[connectorKey{status.ChargePointID, status.ConnectorID}] = status
	return nil
}

// BookReservation 创建 Pending 预约
func (s *Store) BookReservation(ctx context.Context, idTag, chargePointID string, connectorID *int, expiry time.Time, parentIdTag *string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextReservationID
	s.nextReservationID++
	s.reservations[id] = &storage.Reservation{
		ID:            id,
		IdTag:         idTag,
		ChargePointID: chargePointID,
		ConnectorID:   connectorID,
		ParentIdTag:   parentIdTag,
		ExpiryDate:    expiry,
		Status:        storage.ReservationPending,
	}
	return id, nil
}

// AcceptReservation 标记预约为 Accepted
func (s *Store) AcceptReservation(ctx context.Context, reservationID int) error {
	return s.setReservationStatus(reservationID, storage.ReservationAccepted)
}

// CancelReservation 取消预约
func (s *Store) CancelReservation(ctx context.Context, reservationID int) error {
	return s.setReservationStatus(reservationID, storage.ReservationCancelled)
}

func (s *Store) setReservationStatus(reservationID int, status storage.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[reservationID]
	if !ok {
		return storage.ErrNotFound
	}
	r.Status = status
	return nil
}

// GetReservation 查询预约
func (s *Store) GetReservation(ctx context.Context, reservationID int) (*storage.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[reservationID]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

// CurrentLocalListEntries 返回按 idTag 排序的本地列表数据源
func (s *Store) CurrentLocalListEntries(ctx context.Context, chargePointID string, idTagFilter []string) ([]storage.LocalListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted map[string]struct{}
	if len(idTagFilter) > 0 {
		wanted = make(map[string]struct{}, len(idTagFilter))
		for _, tag := range idTagFilter {
			wanted[tag] = struct{}{}
		}
	}

	entries := make([]storage.LocalListEntry, 0, len(s.idTags))
	for tag, rec := range s.idTags {
		if wanted != nil {
			if _, ok := wanted[tag]; !ok {
				continue
			}
		}
		entries = append(entries, storage.LocalListEntry{
			IdTag:       rec.IdTag,
			ParentIdTag: rec.ParentIdTag,
			ExpiryDate:  rec.ExpiryDate,
			Blocked:     rec.Blocked,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IdTag < entries[j].IdTag })
	return entries, nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Samples 返回已保存采样的副本
func (s *Store) Samples() []SampleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SampleRecord, len(s.samples))
	copy(out, s.samples)
	return out
}

// Connector 返回连接器最新状态
func (s *Store) Connector(chargePointID string, connectorID int) (storage.ConnectorStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.connectors[connectorKey{chargePointID, connectorID}]
	return st, ok
}
