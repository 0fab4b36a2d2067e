package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/business/locallist"
	"github.com/charging-platform/central-system/internal/business/reservation"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/storage/memory"
	"github.com/charging-platform/central-system/internal/transport"
)

type serviceHarness struct {
	service *CommandService
	store   *memory.Store

	mu    sync.Mutex
	calls []*transport.Request
}

func (h *serviceHarness) sent() []*transport.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*transport.Request(nil), h.calls...)
}

// newServiceHarness 组装内存存储与可编程的下行调用
func newServiceHarness(t *testing.T, reply func(req *transport.Request, response interface{}) error) *serviceHarness {
	t.Helper()
	h := &serviceHarness{store: memory.NewStore()}

	invoker := transport.InvokerFunc(func(ctx context.Context, req *transport.Request, response interface{}) error {
		h.mu.Lock()
		h.calls = append(h.calls, req)
		h.mu.Unlock()
		return reply(req, response)
	})
	resolver := staticResolver{"CP1": "ws://cp1", "CP2": "ws://cp2", "CP3": "http://cp3/ocpp"}
	dispatcher := newTestDispatcher(resolver, invoker, 200*time.Millisecond)
	fanout := NewFanOut(4, 200*time.Millisecond, 100*time.Millisecond, logger.Nop())

	h.service = NewCommandService(
		dispatcher,
		fanout,
		locallist.NewSynchronizer(dispatcher, h.store, "", logger.Nop()),
		reservation.NewManager(dispatcher, h.store, logger.Nop()),
		16,
		logger.Nop(),
	)
	t.Cleanup(h.service.Stop)
	return h
}

func TestCommandService_InvalidParamsMakeNoCalls(t *testing.T) {
	h := newServiceHarness(t, func(req *transport.Request, response interface{}) error {
		t.Fatalf("unexpected call %s", req.Action)
		return nil
	})

	tests := []OperatorCommand{
		{Command: "Reset", ChargePointIDs: []string{"CP1"}, Params: json.RawMessage(`{"type":"Medium"}`)},
		{Command: "Reset", ChargePointIDs: nil, Params: json.RawMessage(`{"type":"Hard"}`)},
		{Command: "GetDiagnostics", ChargePointIDs: []string{"CP1"}, Params: json.RawMessage(`{"location":"ftp://x/","stop":"2999-01-01"}`)},
		{Command: "SendLocalList", ChargePointIDs: []string{"CP1"}, Params: json.RawMessage(`{"listVersion":1,"updateType":"Full","delete":["A"]}`)},
		{Command: "ReserveNow", ChargePointIDs: []string{"CP1"}, Params: json.RawMessage(`{"connectorId":1,"idTag":"TAG1","expiry":"2000-01-01"}`)},
		{Command: "CancelReservation", ChargePointIDs: []string{"CP1"}, Params: json.RawMessage(`{"reservationId":0}`)},
	}
	for _, cmd := range tests {
		t.Run(cmd.Command, func(t *testing.T) {
			agg, err := h.service.Execute(context.Background(), cmd)
			assert.ErrorIs(t, err, ErrInvalidParams)
			assert.Nil(t, agg)
		})
	}

	_, err := h.service.Execute(context.Background(), OperatorCommand{Command: "Launch", ChargePointIDs: []string{"CP1"}})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, h.sent())
}

func TestCommandService_ExecuteFansOut(t *testing.T) {
	h := newServiceHarness(t, func(req *transport.Request, response interface{}) error {
		if req.ChargePointID == "CP2" {
			return transport.NewCallError(ocpp16.ErrorCodeInternalError, "boom")
		}
		response.(*ocpp16.ChangeAvailabilityResponse).Status = ocpp16.AvailabilityStatusScheduled
		return nil
	})

	agg, err := h.service.Execute(context.Background(), OperatorCommand{
		Command:        "ChangeAvailability",
		ChargePointIDs: []string{"CP1", "CP2", "CP404"},
		Params:         json.RawMessage(`{"connectorId":0,"type":"Inoperative"}`),
		CorrelationID:  "op-42",
	})
	require.NoError(t, err)

	results := agg.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "Scheduled", results[0].Outcome)
	assert.Equal(t, "Error: InternalError", results[1].Outcome)
	assert.Equal(t, "No endpoint known", results[2].Outcome)
	assert.Len(t, h.sent(), 2)

	var completed []*events.CommandCompletedEvent
	for i := 0; i < 3; i++ {
		ev := <-h.service.GetEventChannel()
		require.Equal(t, events.EventTypeCommandCompleted, ev.GetType())
		completed = append(completed, ev.(*events.CommandCompletedEvent))
	}
	assert.Equal(t, "CP1", completed[0].GetChargePointID())
	assert.Equal(t, "op-42", *completed[0].Metadata.CorrelationID)
	assert.Equal(t, "Failed", completed[2].CommandInfo.Status)
}

func TestCommandService_SendLocalListRetriesWithFullList(t *testing.T) {
	var attempts int32
	h := newServiceHarness(t, func(req *transport.Request, response interface{}) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			response.(*ocpp16.SendLocalListResponse).Status = ocpp16.UpdateStatusVersionMismatch
			return nil
		}
		response.(*ocpp16.SendLocalListResponse).Status = ocpp16.UpdateStatusAccepted
		return nil
	})
	require.NoError(t, h.store.UpsertIdTag(context.Background(), storage.IdTagRecord{IdTag: "TAG1"}))

	agg, err := h.service.Execute(context.Background(), OperatorCommand{
		Command:        "SendLocalList",
		ChargePointIDs: []string{"CP1"},
		Params:         json.RawMessage(`{"listVersion":4,"updateType":"Differential","addUpdate":["TAG1"]}`),
	})
	require.NoError(t, err)

	r, ok := agg.Get("CP1")
	require.True(t, ok)
	assert.Equal(t, ResultSucceeded, r.Status)
	assert.Equal(t, "Accepted after full resend at version 5", r.Outcome)

	calls := h.sent()
	require.Len(t, calls, 2)
	retry := calls[1].Payload.(*ocpp16.SendLocalListRequest)
	assert.Equal(t, ocpp16.UpdateTypeFull, retry.UpdateType)
	assert.Equal(t, 5, retry.ListVersion)
}

func TestCommandService_ReserveNow(t *testing.T) {
	h := newServiceHarness(t, func(req *transport.Request, response interface{}) error {
		switch req.ChargePointID {
		case "CP1":
			response.(*ocpp16.ReserveNowResponse).Status = ocpp16.ReservationStatusAccepted
		default:
			response.(*ocpp16.ReserveNowResponse).Status = ocpp16.ReservationStatusOccupied
		}
		return nil
	})
	h.service.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }

	agg, err := h.service.Execute(context.Background(), OperatorCommand{
		Command:        "ReserveNow",
		ChargePointIDs: []string{"CP1", "CP2"},
		Params:         json.RawMessage(`{"connectorId":1,"idTag":"TAG1","expiry":"2099-01-01T10:00"}`),
	})
	require.NoError(t, err)

	accepted, _ := agg.Get("CP1")
	occupied, _ := agg.Get("CP2")
	require.Equal(t, ResultSucceeded, accepted.Status)
	require.Equal(t, ResultSucceeded, occupied.Status)

	acceptedOutcome := accepted.Response.(*ReservationOutcome)
	occupiedOutcome := occupied.Response.(*ReservationOutcome)
	assert.Equal(t, "Accepted", acceptedOutcome.Status)
	assert.Equal(t, "Occupied", occupiedOutcome.Status)

	row, err := h.store.GetReservation(context.Background(), acceptedOutcome.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationAccepted, row.Status)

	row, err = h.store.GetReservation(context.Background(), occupiedOutcome.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationCancelled, row.Status)
}

func TestCommandService_StopClosesEvents(t *testing.T) {
	h := newServiceHarness(t, func(req *transport.Request, response interface{}) error { return nil })
	h.service.Stop()
	h.service.Stop()

	_, open := <-h.service.GetEventChannel()
	assert.False(t, open)
}
