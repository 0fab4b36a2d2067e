package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/storage/memory"
)

// MockSender 模拟下行调用
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, chargePointID string, action ocpp16.Action, request, response interface{}) error {
	args := m.Called(ctx, chargePointID, action, request, response)
	return args.Error(0)
}

func TestManager_Reserve(t *testing.T) {
	tests := []struct {
		name        string
		reply       ocpp16.ReservationStatus
		sendErr     error
		wantStored  storage.ReservationStatus
		wantPresent bool
	}{
		{"accepted", ocpp16.ReservationStatusAccepted, nil, storage.ReservationAccepted, true},
		{"occupied is compensated", ocpp16.ReservationStatusOccupied, nil, storage.ReservationCancelled, false},
		{"faulted is compensated", ocpp16.ReservationStatusFaulted, nil, storage.ReservationCancelled, false},
		{"transport failure is compensated", "", context.DeadlineExceeded, storage.ReservationCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			sender := new(MockSender)
			m := NewManager(sender, store, logger.Nop())

			var sent *ocpp16.ReserveNowRequest
			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionReserveNow, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					sent = args.Get(3).(*ocpp16.ReserveNowRequest)
					args.Get(4).(*ocpp16.ReserveNowResponse).Status = tt.reply
				}).Return(tt.sendErr).Once()

			id, status, err := m.Reserve(context.Background(), ReserveRequest{
				ChargePointID: "CP001",
				ConnectorID:   2,
				IdTag:         "TAG1",
				Expiry:        time.Now().Add(time.Hour),
			})
			if tt.sendErr != nil {
				assert.ErrorIs(t, err, tt.sendErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.reply, status)
			}

			// 下发的预约ID即本地预约ID
			require.NotNil(t, sent)
			assert.Equal(t, id, sent.ReservationId)
			assert.Equal(t, 2, sent.ConnectorId)

			r, err := store.GetReservation(context.Background(), id)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.Equal(t, tt.wantStored, r.Status)
			assert.Equal(t, 2, *r.ConnectorID)

			// 被补偿的预约保留为 Cancelled 记录，但查询不到
			found, err := m.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPresent, found != nil)
		})
	}
}

func TestManager_Reserve_AnyConnector(t *testing.T) {
	store := memory.NewStore()
	sender := new(MockSender)
	m := NewManager(sender, store, logger.Nop())

	sender.On("Send", mock.Anything, "CP001", ocpp16.ActionReserveNow, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(4).(*ocpp16.ReserveNowResponse).Status = ocpp16.ReservationStatusAccepted
		}).Return(nil).Once()

	id, _, err := m.Reserve(context.Background(), ReserveRequest{ChargePointID: "CP001", IdTag: "T", Expiry: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	r, err := store.GetReservation(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, r.ConnectorID)
}

func TestManager_Reserve_Validation(t *testing.T) {
	sender := new(MockSender)
	m := NewManager(sender, memory.NewStore(), logger.Nop())
	ctx := context.Background()

	_, _, err := m.Reserve(ctx, ReserveRequest{ChargePointID: "CP001", IdTag: "T", Expiry: time.Now().Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = m.Reserve(ctx, ReserveRequest{ChargePointID: "CP001", Expiry: time.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_Cancel(t *testing.T) {
	tests := []struct {
		name       string
		reply      ocpp16.CancelReservationStatus
		wantStored storage.ReservationStatus
	}{
		{"accepted cancels row", ocpp16.CancelReservationStatusAccepted, storage.ReservationCancelled},
		{"rejected keeps row", ocpp16.CancelReservationStatusRejected, storage.ReservationAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			ctx := context.Background()
			id, err := store.BookReservation(ctx, "T", "CP001", nil, time.Now().Add(time.Hour), nil)
			require.NoError(t, err)
			require.NoError(t, store.AcceptReservation(ctx, id))

			sender := new(MockSender)
			m := NewManager(sender, store, logger.Nop())
			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionCancelReservation,
				mock.MatchedBy(func(req *ocpp16.CancelReservationRequest) bool { return req.ReservationId == id }), mock.Anything).
				Run(func(args mock.Arguments) {
					args.Get(4).(*ocpp16.CancelReservationResponse).Status = tt.reply
				}).Return(nil).Once()

			status, err := m.Cancel(ctx, "CP001", id)
			require.NoError(t, err)
			assert.Equal(t, tt.reply, status)

			r, err := store.GetReservation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, r.Status)
			sender.AssertExpectations(t)
		})
	}
}

func TestManager_Cancel_TransportFailureKeepsRow(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id, err := store.BookReservation(ctx, "T", "CP001", nil, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	sender := new(MockSender)
	m := NewManager(sender, store, logger.Nop())
	sender.On("Send", mock.Anything, "CP001", ocpp16.ActionCancelReservation, mock.Anything, mock.Anything).
		Return(context.DeadlineExceeded).Once()

	_, err = m.Cancel(ctx, "CP001", id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r, err := store.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationPending, r.Status)
}
