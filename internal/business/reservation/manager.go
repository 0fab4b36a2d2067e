package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
)

// ErrInvalidRequest 预约参数错误
var ErrInvalidRequest = errors.New("reservation: invalid request")

// CommandSender 向充电桩发送一次下行调用
type CommandSender interface {
	Send(ctx context.Context, chargePointID string, action ocpp16.Action, request, response interface{}) error
}

// ReserveRequest 预约请求，ConnectorID 为 0 表示任意连接器
type ReserveRequest struct {
	ChargePointID string
	ConnectorID   int
	IdTag         string
	ParentIdTag   *string
	Expiry        time.Time
}

// Manager 预约管理：先落库再下发，充电桩拒绝时补偿取消
type Manager struct {
	sender CommandSender
	store  storage.Store
	logger *logger.Logger
	now    func() time.Time
}

// NewManager 创建预约管理器
func NewManager(sender CommandSender, store storage.Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		sender: sender,
		store:  store,
		logger: log.Component("reservation"),
		now:    time.Now,
	}
}

// Reserve 预约连接器，返回预约ID与充电桩应答；非 Accepted 时本地预约被取消
func (m *Manager) Reserve(ctx context.Context, req ReserveRequest) (int, ocpp16.ReservationStatus, error) {
	if req.IdTag == "" {
		return 0, "", fmt.Errorf("%w: idTag is required", ErrInvalidRequest)
	}
	if req.ConnectorID < 0 {
		return 0, "", fmt.Errorf("%w: connectorId must not be negative", ErrInvalidRequest)
	}
	if !req.Expiry.After(m.now()) {
		return 0, "", fmt.Errorf("%w: expiry must be in the future", ErrInvalidRequest)
	}

	var connector *int
	if req.ConnectorID > 0 {
		c := req.ConnectorID
		connector = &c
	}
	id, err := m.store.BookReservation(ctx, req.IdTag, req.ChargePointID, connector, req.Expiry, req.ParentIdTag)
	if err != nil {
		return 0, "", fmt.Errorf("book reservation: %w", err)
	}

	resp := &ocpp16.ReserveNowResponse{}
	sendErr := m.sender.Send(ctx, req.ChargePointID, ocpp16.ActionReserveNow, &ocpp16.ReserveNowRequest{
		ConnectorId:   req.ConnectorID,
		ExpiryDate:    ocpp16.NewDateTime(req.Expiry),
		IdTag:         req.IdTag,
		ParentIdTag:   req.ParentIdTag,
		ReservationId: id,
	}, resp)

	if sendErr == nil && resp.Status == ocpp16.ReservationStatusAccepted {
		if err := m.store.AcceptReservation(ctx, id); err != nil {
			return id, resp.Status, fmt.Errorf("accept reservation %d: %w", id, err)
		}
		m.logger.Infof("Reservation %d accepted by %s", id, req.ChargePointID)
		return id, resp.Status, nil
	}

	m.compensate(ctx, id, req.ChargePointID)
	if sendErr != nil {
		return id, "", sendErr
	}
	m.logger.Infof("Reservation %d declined by %s: %s", id, req.ChargePointID, resp.Status)
	return id, resp.Status, nil
}

// Cancel 下发取消，充电桩确认后才取消本地预约
func (m *Manager) Cancel(ctx context.Context, chargePointID string, reservationID int) (ocpp16.CancelReservationStatus, error) {
	resp := &ocpp16.CancelReservationResponse{}
	if err := m.sender.Send(ctx, chargePointID, ocpp16.ActionCancelReservation, &ocpp16.CancelReservationRequest{ReservationId: reservationID}, resp); err != nil {
		return "", err
	}
	if resp.Status != ocpp16.CancelReservationStatusAccepted {
		m.logger.Infof("Cancellation of reservation %d rejected by %s", reservationID, chargePointID)
		return resp.Status, nil
	}

	if err := m.store.CancelReservation(ctx, reservationID); err != nil {
		return resp.Status, fmt.Errorf("cancel reservation %d: %w", reservationID, err)
	}
	return resp.Status, nil
}

// Get 查询有效预约，已取消（包括被补偿）的预约视为不存在
func (m *Manager) Get(ctx context.Context, reservationID int) (*storage.Reservation, error) {
	r, err := m.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation %d: %w", reservationID, err)
	}
	if r == nil || !r.Active() {
		return nil, nil
	}
	return r, nil
}

// compensate 取消未被充电桩接受的预约，使用独立上下文保证补偿执行
func (m *Manager) compensate(ctx context.Context, id int, chargePointID string) {
	metrics.ReservationCompensations.Inc()
	if err := m.store.CancelReservation(context.WithoutCancel(ctx), id); err != nil {
		m.logger.Errorf("Failed to cancel reservation %d for %s after rejection: %v", id, chargePointID, err)
	}
}
