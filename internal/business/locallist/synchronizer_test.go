package locallist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/config"
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

func replyWith(status ocpp16.UpdateStatus) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(4).(*ocpp16.SendLocalListResponse).Status = status
	}
}

func isList(updateType ocpp16.UpdateType, version int) interface{} {
	return mock.MatchedBy(func(req *ocpp16.SendLocalListRequest) bool {
		return req.UpdateType == updateType && req.ListVersion == version
	})
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	parent := "P1"
	require.NoError(t, store.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "A", ParentIdTag: &parent}))
	require.NoError(t, store.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "B", Blocked: true}))
	require.NoError(t, store.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "C", ExpiryDate: &past}))
	return store
}

func TestSynchronizer_DifferentialOrdering(t *testing.T) {
	sender := new(MockSender)
	s := NewSynchronizer(sender, seededStore(t), "", logger.Nop())

	var sent *ocpp16.SendLocalListRequest
	sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, isList(ocpp16.UpdateTypeDifferential, 4), mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(3).(*ocpp16.SendLocalListRequest)
			replyWith(ocpp16.UpdateStatusAccepted)(args)
		}).Return(nil).Once()

	res, err := s.Sync(context.Background(), SyncRequest{
		ChargePointID: "CP001",
		ListVersion:   4,
		UpdateType:    ocpp16.UpdateTypeDifferential,
		AddUpdate:     []string{"A", "B"},
		Delete:        []string{"X", "Y"},
	})
	require.NoError(t, err)
	assert.Equal(t, ocpp16.UpdateStatusAccepted, res.Status)
	assert.False(t, res.Retried)

	require.Len(t, sent.LocalAuthorizationList, 4)
	assert.Equal(t, "X", sent.LocalAuthorizationList[0].IdTag)
	assert.Nil(t, sent.LocalAuthorizationList[0].IdTagInfo)
	assert.Equal(t, "Y", sent.LocalAuthorizationList[1].IdTag)
	assert.Nil(t, sent.LocalAuthorizationList[1].IdTagInfo)
	assert.Equal(t, "A", sent.LocalAuthorizationList[2].IdTag)
	assert.Equal(t, ocpp16.AuthorizationStatusAccepted, sent.LocalAuthorizationList[2].IdTagInfo.Status)
	assert.Equal(t, "P1", *sent.LocalAuthorizationList[2].IdTagInfo.ParentIdTag)
	assert.Equal(t, ocpp16.AuthorizationStatusBlocked, sent.LocalAuthorizationList[3].IdTagInfo.Status)
	sender.AssertExpectations(t)
}

func TestSynchronizer_RetryOnceWithFullList(t *testing.T) {
	for _, rejected := range []ocpp16.UpdateStatus{ocpp16.UpdateStatusVersionMismatch, ocpp16.UpdateStatusFailed} {
		t.Run(string(rejected), func(t *testing.T) {
			sender := new(MockSender)
			s := NewSynchronizer(sender, seededStore(t), config.LocalListVersionIncrement, logger.Nop())

			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, isList(ocpp16.UpdateTypeDifferential, 7), mock.Anything).
				Run(replyWith(rejected)).Return(nil).Once()

			var full *ocpp16.SendLocalListRequest
			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, isList(ocpp16.UpdateTypeFull, 8), mock.Anything).
				Run(func(args mock.Arguments) {
					full = args.Get(3).(*ocpp16.SendLocalListRequest)
					replyWith(ocpp16.UpdateStatusAccepted)(args)
				}).Return(nil).Once()

			res, err := s.Sync(context.Background(), SyncRequest{
				ChargePointID: "CP001",
				ListVersion:   7,
				UpdateType:    ocpp16.UpdateTypeDifferential,
				AddUpdate:     []string{"A"},
			})
			require.NoError(t, err)
			assert.True(t, res.Retried)
			assert.Equal(t, ocpp16.UpdateStatusAccepted, res.Status)
			assert.Equal(t, 8, res.ListVersion)
			require.Len(t, full.LocalAuthorizationList, 3)
			sender.AssertNumberOfCalls(t, "Send", 2)
		})
	}
}

func TestSynchronizer_SecondRejectionReturnedAsIs(t *testing.T) {
	sender := new(MockSender)
	s := NewSynchronizer(sender, seededStore(t), "", logger.Nop())

	sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, mock.Anything, mock.Anything).
		Run(replyWith(ocpp16.UpdateStatusVersionMismatch)).Return(nil).Twice()

	res, err := s.Sync(context.Background(), SyncRequest{ChargePointID: "CP001", ListVersion: 1, UpdateType: ocpp16.UpdateTypeFull})
	require.NoError(t, err)
	assert.Equal(t, ocpp16.UpdateStatusVersionMismatch, res.Status)
	assert.True(t, res.Retried)
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestSynchronizer_QueryVersionStrategy(t *testing.T) {
	tests := []struct {
		name     string
		reported int
		queryErr error
		want     int
	}{
		{"reported ahead", 20, nil, 21},
		{"reported behind never goes below V+1", 2, nil, 6},
		{"query failure falls back", 0, errors.New("timeout"), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(MockSender)
			s := NewSynchronizer(sender, seededStore(t), config.LocalListVersionQuery, logger.Nop())

			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, isList(ocpp16.UpdateTypeDifferential, 5), mock.Anything).
				Run(replyWith(ocpp16.UpdateStatusVersionMismatch)).Return(nil).Once()
			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionGetLocalListVersion, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					args.Get(4).(*ocpp16.GetLocalListVersionResponse).ListVersion = tt.reported
				}).Return(tt.queryErr).Once()
			sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, isList(ocpp16.UpdateTypeFull, tt.want), mock.Anything).
				Run(replyWith(ocpp16.UpdateStatusAccepted)).Return(nil).Once()

			res, err := s.Sync(context.Background(), SyncRequest{ChargePointID: "CP001", ListVersion: 5, UpdateType: ocpp16.UpdateTypeDifferential})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.ListVersion)
			sender.AssertExpectations(t)
		})
	}
}

func TestSynchronizer_InvalidRequests(t *testing.T) {
	sender := new(MockSender)
	s := NewSynchronizer(sender, seededStore(t), "", logger.Nop())
	ctx := context.Background()

	_, err := s.Sync(ctx, SyncRequest{ChargePointID: "CP001", ListVersion: -1, UpdateType: ocpp16.UpdateTypeFull})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.Sync(ctx, SyncRequest{ChargePointID: "CP001", UpdateType: "Partial"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.Sync(ctx, SyncRequest{ChargePointID: "CP001", UpdateType: ocpp16.UpdateTypeFull, Delete: []string{"A"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSynchronizer_SendErrorNotRetried(t *testing.T) {
	sender := new(MockSender)
	s := NewSynchronizer(sender, seededStore(t), "", logger.Nop())

	sender.On("Send", mock.Anything, "CP001", ocpp16.ActionSendLocalList, mock.Anything, mock.Anything).
		Return(context.DeadlineExceeded).Once()

	_, err := s.Sync(context.Background(), SyncRequest{ChargePointID: "CP001", UpdateType: ocpp16.UpdateTypeFull})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestIdTagInfoFor(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Second)

	assert.Equal(t, ocpp16.AuthorizationStatusBlocked, IdTagInfoFor(storage.LocalListEntry{IdTag: "A", Blocked: true, ExpiryDate: &past}, now).Status)
	assert.Equal(t, ocpp16.AuthorizationStatusExpired, IdTagInfoFor(storage.LocalListEntry{IdTag: "A", ExpiryDate: &past}, now).Status)

	info := IdTagInfoFor(storage.LocalListEntry{IdTag: "A", ExpiryDate: &future}, now)
	assert.Equal(t, ocpp16.AuthorizationStatusAccepted, info.Status)
	assert.Equal(t, future, info.ExpiryDate.Time)
}
