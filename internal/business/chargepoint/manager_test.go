package chargepoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/protocol"
	"github.com/charging-platform/central-system/internal/logger"
)

func TestDefaultManagerConfig(t *testing.T) {
	config := DefaultManagerConfig()

	assert.Equal(t, 300*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 3, config.MissedHeartbeats)
	assert.Equal(t, 30*time.Second, config.StatusCheckInterval)
	assert.Equal(t, 1000, config.EventChannelSize)
}

func TestNewManagerWithNilConfig(t *testing.T) {
	manager := NewManager(nil, nil)

	assert.NotNil(t, manager.config)
	assert.NotNil(t, manager.chargePoints)
	assert.NotNil(t, manager.logger)
}

func TestManager_ObserveLifecycle(t *testing.T) {
	manager := NewManager(DefaultManagerConfig(), logger.Nop())
	factory := events.NewEventFactory()
	md := events.Metadata{Source: "test", ProtocolVersion: protocol.OCPP16_JSON}

	manager.Observe(factory.CreateChargePointConnectedEvent("CP001", "10.0.0.5:40000", md))
	manager.Observe(factory.CreateChargePointRegisteredEvent(events.ChargePointInfo{
		ID: "CP001", Vendor: "Acme", Model: "X1", Endpoint: "ws://csms/ocpp/CP001",
	}, "Accepted", 300, md))
	manager.Observe(factory.CreateConnectorStatusChangedEvent(events.ConnectorInfo{
		ID: 1, ChargePointID: "CP001", Status: "Charging", ErrorCode: "NoError", Timestamp: time.Now(),
	}, md))

	cp, ok := manager.GetChargePoint("CP001")
	require.True(t, ok)
	assert.Equal(t, ChargePointStatusOnline, cp.Status)
	assert.Equal(t, "Acme", cp.Vendor)
	assert.Equal(t, "Accepted", cp.RegistrationStatus)
	assert.Equal(t, "ws://csms/ocpp/CP001", cp.Endpoint)
	assert.Equal(t, protocol.OCPP16_JSON, cp.ProtocolVersion)
	assert.NotNil(t, cp.ConnectedAt)
	require.Contains(t, cp.Connectors, 1)
	assert.Equal(t, "Charging", cp.Connectors[1].Status)

	manager.Observe(factory.CreateChargePointDisconnectedEvent("CP001", "closed", md))
	cp, _ = manager.GetChargePoint("CP001")
	assert.Equal(t, ChargePointStatusDisconnected, cp.Status)
	assert.Nil(t, cp.ConnectedAt)

	stats := manager.GetStats()
	assert.Equal(t, 1, stats.TotalChargePoints)
	assert.Equal(t, 1, stats.DisconnectedChargePoints)
	assert.Equal(t, 1, stats.TotalConnectors)
}

func TestManager_IgnoresCommandResults(t *testing.T) {
	manager := NewManager(DefaultManagerConfig(), logger.Nop())

	manager.Observe(events.NewEventFactory().CreateCommandCompletedEvent("CP001", events.CommandInfo{}, events.Metadata{}))

	_, ok := manager.GetChargePoint("CP001")
	assert.False(t, ok)
}

func TestManager_MarksSilentChargePointsOffline(t *testing.T) {
	config := DefaultManagerConfig()
	config.HeartbeatInterval = time.Minute
	manager := NewManager(config, logger.Nop())
	factory := events.NewEventFactory()

	manager.Observe(factory.CreateHeartbeatEvent("CP001", events.Metadata{}))
	assert.Zero(t, manager.checkChargePointStatus())

	manager.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, manager.checkChargePointStatus())
	cp, _ := manager.GetChargePoint("CP001")
	assert.Equal(t, ChargePointStatusOffline, cp.Status)
	assert.Zero(t, manager.checkChargePointStatus(), "already offline")

	manager.Observe(factory.CreateHeartbeatEvent("CP001", events.Metadata{}))
	cp, _ = manager.GetChargePoint("CP001")
	assert.Equal(t, ChargePointStatusOnline, cp.Status)
}

func TestManager_TapForwardsAndCloses(t *testing.T) {
	manager := NewManager(DefaultManagerConfig(), logger.Nop())
	factory := events.NewEventFactory()

	source := make(chan events.Event, 2)
	source <- factory.CreateHeartbeatEvent("CP002", events.Metadata{})
	source <- factory.CreateHeartbeatEvent("CP001", events.Metadata{})
	close(source)

	var forwarded []string
	for event := range manager.Tap(source) {
		forwarded = append(forwarded, event.GetChargePointID())
	}

	assert.Equal(t, []string{"CP002", "CP001"}, forwarded)
	all := manager.GetAllChargePoints()
	require.Len(t, all, 2)
	assert.Equal(t, "CP001", all[0].ID)
}

func TestManager_SnapshotsAreCopies(t *testing.T) {
	manager := NewManager(DefaultManagerConfig(), logger.Nop())
	manager.Observe(events.NewEventFactory().CreateConnectorStatusChangedEvent(events.ConnectorInfo{
		ID: 1, ChargePointID: "CP001", Status: "Available",
	}, events.Metadata{}))

	cp, _ := manager.GetChargePoint("CP001")
	cp.Connectors[1].Status = "Faulted"

	again, _ := manager.GetChargePoint("CP001")
	assert.Equal(t, "Available", again.Connectors[1].Status)
}

func TestManager_StartStop(t *testing.T) {
	config := DefaultManagerConfig()
	config.StatusCheckInterval = 5 * time.Millisecond
	manager := NewManager(config, logger.Nop())

	manager.Start()
	time.Sleep(20 * time.Millisecond)
	manager.Stop()
}
