package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/storage"
)

// 需要真实数据库，通过 CSMS_TEST_DATABASE_URL 启用
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CSMS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CSMS_TEST_DATABASE_URL not set, skipping PostgreSQL integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestStore_ChargePointAndEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uniqueID("CP")
	now := time.Now().UTC().Truncate(time.Microsecond)

	ok, err := s.UpsertChargePoint(ctx, id, "http://10.1.1.1/ocpp", "ocpp1.6S", storage.DeviceInfo{Vendor: "V", Model: "M"}, now)
	require.NoError(t, err)
	assert.True(t, ok)

	endpoint, found, err := s.ChargePointEndpoint(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "http://10.1.1.1/ocpp", endpoint)

	require.NoError(t, s.UpdateFirmwareStatus(ctx, id, "Downloading"))
	cp, err := s.GetChargePoint(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "Downloading", *cp.FirmwareStatus)

	assert.ErrorIs(t, s.UpdateHeartbeat(ctx, uniqueID("missing"), now), storage.ErrNotFound)
}

func TestStore_TransactionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cp := uniqueID("CP")
	tag := uniqueID("T")[:20]
	require.NoError(t, s.UpsertIdTag(ctx, storage.IdTagRecord{IdTag: tag}))

	start := time.Now().UTC().Truncate(time.Second)
	id, err := s.InsertTransaction(ctx, cp, 1, tag, start, 10, nil)
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, cp, 1, tag, start, 10, nil)
	assert.ErrorIs(t, err, storage.ErrConnectorOccupied)

	rec, err := s.GetIdTagRecord(ctx, tag)
	require.NoError(t, err)
	assert.True(t, rec.InTransaction)

	require.NoError(t, s.CloseTransaction(ctx, id, start.Add(time.Hour), 500))
	assert.ErrorIs(t, s.CloseTransaction(ctx, id, start.Add(2*time.Hour), 900), storage.ErrTransactionClosed)

	tx, err := s.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 500, *tx.StopMeter)

	connector, owner, found, err := s.ConnectorForTransaction(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, connector)
	assert.Equal(t, cp, owner)

	require.NoError(t, s.AppendMeterSamples(ctx, cp, 1, &id, []storage.MeterSample{{Timestamp: start, Value: "42"}}))
}

func TestStore_Reservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.BookReservation(ctx, "TAG", uniqueID("CP"), nil, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	require.NoError(t, s.AcceptReservation(ctx, id))

	r, err := s.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationAccepted, r.Status)

	require.NoError(t, s.CancelReservation(ctx, id))
	r, err = s.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationCancelled, r.Status)
}
