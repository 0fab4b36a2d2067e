package chargepoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
)

// Manager 充电桩在线状态视图，由事件流驱动
type Manager struct {
	chargePoints map[string]*ChargePoint
	mutex        sync.RWMutex

	config *ManagerConfig

	// 生命周期管理
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
	now    func() time.Time
}

// ManagerConfig 管理器配置
type ManagerConfig struct {
	// 超过 HeartbeatInterval*MissedHeartbeats 无任何消息视为离线
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	MissedHeartbeats  int           `json:"missed_heartbeats"`

	StatusCheckInterval time.Duration `json:"status_check_interval"`
	EventChannelSize    int           `json:"event_channel_size"`
}

// DefaultManagerConfig 默认管理器配置
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		HeartbeatInterval:   300 * time.Second,
		MissedHeartbeats:    3,
		StatusCheckInterval: 30 * time.Second,
		EventChannelSize:    1000,
	}
}

// ChargePoint 充电桩在线信息快照
type ChargePoint struct {
	ID                 string             `json:"id"`
	Vendor             string             `json:"vendor,omitempty"`
	Model              string             `json:"model,omitempty"`
	Endpoint           string             `json:"endpoint,omitempty"`
	ProtocolVersion    string             `json:"protocol_version,omitempty"`
	Status             ChargePointStatus  `json:"status"`
	RegistrationStatus string             `json:"registration_status,omitempty"`
	ConnectedAt        *time.Time         `json:"connected_at,omitempty"`
	LastSeen           time.Time          `json:"last_seen"`
	Connectors         map[int]*Connector `json:"connectors,omitempty"`
}

// ChargePointStatus 充电桩状态
type ChargePointStatus string

const (
	ChargePointStatusOnline       ChargePointStatus = "online"
	ChargePointStatusOffline      ChargePointStatus = "offline"
	ChargePointStatusDisconnected ChargePointStatus = "disconnected"
)

// Connector 连接器最新状态
type Connector struct {
	ID               int       `json:"id"`
	Status           string    `json:"status"`
	ErrorCode        string    `json:"error_code"`
	LastStatusUpdate time.Time `json:"last_status_update"`
}

// ManagerStats 管理器统计信息
type ManagerStats struct {
	TotalChargePoints        int `json:"total_charge_points"`
	OnlineChargePoints       int `json:"online_charge_points"`
	OfflineChargePoints      int `json:"offline_charge_points"`
	DisconnectedChargePoints int `json:"disconnected_charge_points"`
	TotalConnectors          int `json:"total_connectors"`
}

// NewManager 创建充电桩管理器
func NewManager(config *ManagerConfig, log *logger.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		chargePoints: make(map[string]*ChargePoint),
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		logger:       log.Component("chargepoint-manager"),
		now:          time.Now,
	}
}

// Start 启动离线检查
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.statusCheckRoutine()
}

// Stop 停止离线检查
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Tap 观察事件后原样转发，事件源关闭时关闭输出
func (m *Manager) Tap(source <-chan events.Event) <-chan events.Event {
	out := make(chan events.Event, m.config.EventChannelSize)
	go func() {
		defer close(out)
		for event := range source {
			m.Observe(event)
			out <- event
		}
	}()
	return out
}

// Observe 根据事件更新充电桩视图
func (m *Manager) Observe(event events.Event) {
	// 下行命令结果不代表充电桩在线
	if event.GetType() == events.EventTypeCommandCompleted || event.GetChargePointID() == "" {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	cp := m.getOrCreate(event.GetChargePointID())
	seen := event.GetTimestamp()
	if seen.After(cp.LastSeen) {
		cp.LastSeen = seen
	}
	cp.Status = ChargePointStatusOnline
	if md := event.GetMetadata(); md.ProtocolVersion != "" {
		cp.ProtocolVersion = md.ProtocolVersion
	}

	switch e := event.(type) {
	case *events.ChargePointConnectedEvent:
		connectedAt := seen
		cp.ConnectedAt = &connectedAt
	case *events.ChargePointDisconnectedEvent:
		cp.Status = ChargePointStatusDisconnected
		cp.ConnectedAt = nil
		m.logger.Infof("Charge point %s disconnected: %s", cp.ID, e.Reason)
	case *events.ChargePointRegisteredEvent:
		cp.Vendor = e.ChargePointInfo.Vendor
		cp.Model = e.ChargePointInfo.Model
		cp.RegistrationStatus = e.Status
		if e.ChargePointInfo.Endpoint != "" {
			cp.Endpoint = e.ChargePointInfo.Endpoint
		}
	case *events.ConnectorStatusChangedEvent:
		cp.Connectors[e.ConnectorInfo.ID] = &Connector{
			ID:               e.ConnectorInfo.ID,
			Status:           e.ConnectorInfo.Status,
			ErrorCode:        e.ConnectorInfo.ErrorCode,
			LastStatusUpdate: e.ConnectorInfo.Timestamp,
		}
	}
}

func (m *Manager) getOrCreate(id string) *ChargePoint {
	cp, ok := m.chargePoints[id]
	if !ok {
		cp = &ChargePoint{
			ID:         id,
			Connectors: make(map[int]*Connector),
		}
		m.chargePoints[id] = cp
	}
	return cp
}

// GetChargePoint 获取充电桩信息副本
func (m *Manager) GetChargePoint(chargePointID string) (*ChargePoint, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	cp, ok := m.chargePoints[chargePointID]
	if !ok {
		return nil, false
	}
	return cp.clone(), true
}

// GetAllChargePoints 获取所有充电桩，按ID排序
func (m *Manager) GetAllChargePoints() []*ChargePoint {
	m.mutex.RLock()
	result := make([]*ChargePoint, 0, len(m.chargePoints))
	for _, cp := range m.chargePoints {
		result = append(result, cp.clone())
	}
	m.mutex.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetStats 获取统计信息
func (m *Manager) GetStats() ManagerStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := ManagerStats{TotalChargePoints: len(m.chargePoints)}
	for _, cp := range m.chargePoints {
		switch cp.Status {
		case ChargePointStatusOnline:
			stats.OnlineChargePoints++
		case ChargePointStatusOffline:
			stats.OfflineChargePoints++
		case ChargePointStatusDisconnected:
			stats.DisconnectedChargePoints++
		}
		stats.TotalConnectors += len(cp.Connectors)
	}
	return stats
}

// statusCheckRoutine 状态检查协程
func (m *Manager) statusCheckRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.StatusCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkChargePointStatus()
		}
	}
}

// checkChargePointStatus 将长时间静默的在线充电桩标记为离线，返回本次标记数
func (m *Manager) checkChargePointStatus() int {
	missed := m.config.MissedHeartbeats
	if missed <= 0 {
		missed = 1
	}
	cutoff := m.now().Add(-m.config.HeartbeatInterval * time.Duration(missed))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	marked := 0
	for _, cp := range m.chargePoints {
		if cp.Status == ChargePointStatusOnline && cp.LastSeen.Before(cutoff) {
			cp.Status = ChargePointStatusOffline
			marked++
			m.logger.Warnf("Charge point %s silent since %s, marking offline", cp.ID, cp.LastSeen.Format(time.RFC3339))
		}
	}
	return marked
}

func (cp *ChargePoint) clone() *ChargePoint {
	c := *cp
	if cp.ConnectedAt != nil {
		t := *cp.ConnectedAt
		c.ConnectedAt = &t
	}
	c.Connectors = make(map[int]*Connector, len(cp.Connectors))
	for id, conn := range cp.Connectors {
		copied := *conn
		c.Connectors[id] = &copied
	}
	return &c
}
