package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/storage"
)

func TestStore_ChargePointLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	_, found, err := s.ChargePointEndpoint(ctx, "CP001")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := s.UpsertChargePoint(ctx, "CP001", "http://10.0.0.1/ocpp", "ocpp1.6S", storage.DeviceInfo{Vendor: "V", Model: "M"}, now)
	require.NoError(t, err)
	assert.True(t, ok)

	endpoint, found, err := s.ChargePointEndpoint(ctx, "CP001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "http://10.0.0.1/ocpp", endpoint)

	later := now.Add(time.Minute)
	require.NoError(t, s.UpdateHeartbeat(ctx, "CP001", later))
	require.NoError(t, s.UpdateFirmwareStatus(ctx, "CP001", "Installed"))
	require.NoError(t, s.UpdateDiagnosticsStatus(ctx, "CP001", "Uploaded"))

	cp, err := s.GetChargePoint(ctx, "CP001")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, later, *cp.LastHeartbeat)
	assert.Equal(t, "Installed", *cp.FirmwareStatus)
	assert.Equal(t, "Uploaded", *cp.DiagnosticsStatus)
	assert.Equal(t, now, cp.RegisteredAt)

	assert.ErrorIs(t, s.UpdateHeartbeat(ctx, "unknown", later), storage.ErrNotFound)
}

func TestStore_TransactionStopWrittenOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "TAG1"}))

	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	id, err := s.InsertTransaction(ctx, "CP001", 1, "TAG1", start, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	rec, err := s.GetIdTagRecord(ctx, "TAG1")
	require.NoError(t, err)
	assert.True(t, rec.InTransaction)

	_, err = s.InsertTransaction(ctx, "CP001", 1, "TAG1", start, 100, nil)
	assert.ErrorIs(t, err, storage.ErrConnectorOccupied)

	stop := start.Add(time.Hour)
	require.NoError(t, s.CloseTransaction(ctx, id, stop, 900))

	err = s.CloseTransaction(ctx, id, stop.Add(time.Hour), 5000)
	assert.ErrorIs(t, err, storage.ErrTransactionClosed)

	tx, err := s.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stop, *tx.StopTimestamp)
	assert.Equal(t, 900, *tx.StopMeter)

	rec, err = s.GetIdTagRecord(ctx, "TAG1")
	require.NoError(t, err)
	assert.False(t, rec.InTransaction)

	assert.ErrorIs(t, s.CloseTransaction(ctx, 42, stop, 1), storage.ErrNotFound)

	next, err := s.InsertTransaction(ctx, "CP001", 1, "TAG1", stop, 900, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestStore_UpsertIdTagKeepsInTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "TAG1"}))
	_, err := s.InsertTransaction(ctx, "CP001", 1, "TAG1", time.Now(), 0, nil)
	require.NoError(t, err)

	// 运维更新基于事务开始前读取的记录
	require.NoError(t, s.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: "TAG1", Blocked: true}))

	rec, err := s.GetIdTagRecord(ctx, "TAG1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Blocked)
	assert.True(t, rec.InTransaction)
}

func TestStore_ConnectorForTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id, err := s.InsertTransaction(ctx, "CP009", 3, "TAG", time.Now(), 0, nil)
	require.NoError(t, err)

	connector, cp, found, err := s.ConnectorForTransaction(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, connector)
	assert.Equal(t, "CP009", cp)

	_, _, found, err = s.ConnectorForTransaction(ctx, id+100)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Reservations(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	connector := 2

	id, err := s.BookReservation(ctx, "TAG", "CP001", &connector, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	r, err := s.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationPending, r.Status)

	require.NoError(t, s.AcceptReservation(ctx, id))
	r, _ = s.GetReservation(ctx, id)
	assert.Equal(t, storage.ReservationAccepted, r.Status)

	require.NoError(t, s.CancelReservation(ctx, id))
	r, _ = s.GetReservation(ctx, id)
	assert.Equal(t, storage.ReservationCancelled, r.Status)

	assert.ErrorIs(t, s.CancelReservation(ctx, 999), storage.ErrNotFound)

	missing, err := s.GetReservation(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_CurrentLocalListEntries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, tag := range []string{"C", "A", "B"} {
		require.NoError(t, s.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: tag, Blocked: tag == "B"}))
	}

	all, err := s.CurrentLocalListEntries(ctx, "CP001", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].IdTag)
	assert.Equal(t, "C", all[2].IdTag)
	assert.True(t, all[1].Blocked)

	filtered, err := s.CurrentLocalListEntries(ctx, "CP001", []string{"C", "missing"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "C", filtered[0].IdTag)
}

func TestStore_SamplesAndConnectors(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	txID := 7

	require.NoError(t, s.AppendMeterSamples(ctx, "CP001", 1, &txID, []storage.MeterSample{
		{Value: "10"}, {Value: "20"},
	}))
	samples := s.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, 7, *samples[1].TransactionID)

	ts := time.Now()
	require.NoError(t, s.UpsertConnectorStatus(ctx, storage.ConnectorStatus{ChargePointID: "CP001", ConnectorID: 1, Status: "Charging", Timestamp: ts}))
	require.NoError(t, s.UpsertConnectorStatus(ctx, storage.ConnectorStatus{ChargePointID: "CP001", ConnectorID: 1, Status: "Finishing", Timestamp: ts.Add(-time.Minute)}))

	st, ok := s.Connector("CP001", 1)
	require.True(t, ok)
	// 按到达顺序最后写入为准
	assert.Equal(t, "Finishing", st.Status)
}
