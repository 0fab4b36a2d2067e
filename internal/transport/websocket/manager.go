package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/protocol"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/transport"
)

// MessageProcessor 处理充电桩发起的 CALL 帧，返回应答帧
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, cc transport.CallContext, data []byte) ([]byte, error)
}

// PingService 单一定时器向所有会话发送 ping，避免每个连接一个协程
type PingService struct {
	sessions sync.Map // map[string]*Session
	interval time.Duration
	logger   *logger.Logger

	totalPings   int64
	skippedPings int64
	mutex        sync.RWMutex
}

// NewPingService 创建 ping 服务
func NewPingService(interval time.Duration, log *logger.Logger) *PingService {
	return &PingService{interval: interval, logger: log}
}

func (p *PingService) run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pingAll()
		}
	}
}

func (p *PingService) add(s *Session) {
	p.sessions.Store(s.ChargePointID(), s)
}

func (p *PingService) remove(s *Session) {
	p.sessions.CompareAndDelete(s.ChargePointID(), s)
}

// pingAll 发送队列满时跳过
func (p *PingService) pingAll() {
	var sent, skipped int64
	p.sessions.Range(func(key, value interface{}) bool {
		if err := value.(*Session).enqueue(outbound{Type: MessageTypePing}); err != nil {
			skipped++
		} else {
			sent++
		}
		return true
	})

	p.mutex.Lock()
	p.totalPings += sent
	p.skippedPings += skipped
	p.mutex.Unlock()

	if skipped > 0 {
		p.logger.Debugf("Ping round: %d sent, %d skipped", sent, skipped)
	}
}

// GetStats ping 统计
func (p *PingService) GetStats() map[string]interface{} {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return map[string]interface{}{
		"total_pings":   p.totalPings,
		"skipped_pings": p.skippedPings,
		"ping_interval": p.interval.String(),
	}
}

// Config WebSocket管理器配置
type Config struct {
	// 升级路径，充电桩ID为路径最后一段
	Path string `json:"path"`

	// 对外地址，为空时使用请求的 Host
	AdvertiseAddr string `json:"advertise_addr"`

	ReadBufferSize   int           `json:"read_buffer_size"`
	WriteBufferSize  int           `json:"write_buffer_size"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	PingInterval     time.Duration `json:"ping_interval"`
	MaxMessageSize   int64         `json:"max_message_size"`
	SendQueueSize    int           `json:"send_queue_size"`

	// 连接管理
	MaxConnections int           `json:"max_connections"`
	SweepInterval  time.Duration `json:"sweep_interval"`

	// 安全配置
	CheckOrigin    bool     `json:"check_origin"`
	AllowedOrigins []string `json:"allowed_origins"`
	Subprotocols   []string `json:"subprotocols"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Path: "/ocpp",

		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   1024 * 1024,
		SendQueueSize:    256,

		MaxConnections: 20000,
		SweepInterval:  time.Second,

		Subprotocols: []string{protocol.OCPP_VERSION_1_6},
	}
}

// ConfigFrom 由服务配置生成管理器配置
func ConfigFrom(server config.ServerConfig, ws config.WebSocketConfig) *Config {
	cfg := DefaultConfig()
	if server.WebSocketPath != "" {
		cfg.Path = strings.TrimRight(server.WebSocketPath, "/")
	}
	cfg.AdvertiseAddr = server.AdvertiseAddr
	if server.MaxConnections > 0 {
		cfg.MaxConnections = server.MaxConnections
	}
	if ws.ReadBufferSize > 0 {
		cfg.ReadBufferSize = ws.ReadBufferSize
	}
	if ws.WriteBufferSize > 0 {
		cfg.WriteBufferSize = ws.WriteBufferSize
	}
	if ws.MaxMessageSize > 0 {
		cfg.MaxMessageSize = ws.MaxMessageSize
	}
	if ws.PingInterval > 0 {
		cfg.PingInterval = ws.PingInterval
	}
	if ws.PingInterval > 0 && ws.PongTimeout > 0 {
		cfg.ReadTimeout = ws.PingInterval + ws.PongTimeout
	}
	cfg.CheckOrigin = ws.CheckOrigin
	return cfg
}

// Manager 管理充电桩 OCPP-J 会话，同时作为 ws/wss 回调地址的 transport.Invoker
type Manager struct {
	config     *Config
	upgrader   *websocket.Upgrader
	processor  MessageProcessor
	serializer *serialization.Serializer

	sessions map[string]*Session
	mutex    sync.RWMutex
	pending  *pendingCalls

	eventFactory *events.EventFactory
	eventChan    chan events.Event
	eventMu      sync.RWMutex
	stopped      bool

	pingService *PingService

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time

	logger *logger.Logger
}

// NewManager 创建WebSocket管理器
func NewManager(cfg *Config, processor MessageProcessor, log *logger.Logger, eventChannelSize int) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultConfig().SendQueueSize
	}
	if eventChannelSize <= 0 {
		eventChannelSize = 1000
	}
	log = log.Component("websocket")

	ctx, cancel := context.WithCancel(context.Background())
	upgrader := &websocket.Upgrader{
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     cfg.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.CheckOrigin || len(cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	return &Manager{
		config:       cfg,
		upgrader:     upgrader,
		processor:    processor,
		serializer:   serialization.NewSerializer(),
		sessions:     make(map[string]*Session),
		pending:      newPendingCalls(),
		eventFactory: events.NewEventFactory(),
		eventChan:    make(chan events.Event, eventChannelSize),
		pingService:  NewPingService(cfg.PingInterval, log),
		ctx:          ctx,
		cancel:       cancel,
		startTime:    time.Now(),
		logger:       log,
	}
}

// Start 启动 ping 与过期清理协程
func (m *Manager) Start() {
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.pingService.run(m.ctx)
	}()
	go m.sweepRoutine()
	m.logger.Infof("WebSocket manager started on %s", m.config.Path)
}

// ServeWS HTTP处理器，路径最后一段为充电桩ID
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	chargePointID := m.extractChargePointID(r.URL.Path)
	if chargePointID == "" {
		http.Error(w, "Invalid charge point ID", http.StatusBadRequest)
		return
	}
	if err := m.HandleConnection(w, r, chargePointID); err != nil {
		m.logger.Warnf("Rejected WebSocket connection for %s: %v", chargePointID, err)
	}
}

// extractChargePointID "/ocpp/CP-001" -> "CP-001"
func (m *Manager) extractChargePointID(path string) string {
	prefix := m.config.Path + "/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id, err := url.PathUnescape(strings.TrimPrefix(path, prefix))
	if err != nil || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// HandleConnection 升级连接并启动会话；同一充电桩重连时替换旧会话
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, chargePointID string) error {
	if m.GetConnectionCount() >= m.config.MaxConnections && !m.HasConnection(chargePointID) {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return fmt.Errorf("connection limit exceeded")
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}
	if conn.Subprotocol() == "" {
		m.logger.Warnf("No subprotocol negotiated for %s, assuming %s", chargePointID, protocol.OCPP_VERSION_1_6)
	}

	conn.SetReadLimit(m.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
	})

	session := newSession(m.ctx, conn, transport.CallContext{
		ChargePointID:   chargePointID,
		Endpoint:        m.endpointFor(r, chargePointID),
		ProtocolVersion: protocol.OCPP16_JSON,
		Transport:       transport.TransportJSON,
		RemoteAddr:      r.RemoteAddr,
	}, m.config, m.logger)

	m.mutex.Lock()
	previous := m.sessions[chargePointID]
	m.sessions[chargePointID] = session
	m.mutex.Unlock()

	if previous != nil {
		m.logger.Infof("Charge point %s reconnected, closing previous session", chargePointID)
		previous.Close()
		if n := m.pending.failSession(previous, ErrSessionClosed); n > 0 {
			m.logger.Warnf("Failed %d pending calls of the replaced session for %s", n, chargePointID)
		}
	} else {
		metrics.ActiveConnections.Inc()
	}
	m.pingService.add(session)

	m.wg.Add(1)
	go m.serveSession(session)

	m.emit(m.eventFactory.CreateChargePointConnectedEvent(chargePointID, r.RemoteAddr, m.metadata()))
	m.logger.Infof("WebSocket connection established for %s from %s", chargePointID, r.RemoteAddr)
	return nil
}

// endpointFor 会话回调地址，经由此管理器投递
func (m *Manager) endpointFor(r *http.Request, chargePointID string) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	host := m.config.AdvertiseAddr
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, host, m.config.Path, url.PathEscape(chargePointID))
}

func (m *Manager) serveSession(s *Session) {
	defer m.wg.Done()
	defer m.removeSession(s)
	defer s.Close()

	go s.sendRoutine()
	s.receiveRoutine(m.handleFrame)
}

// handleFrame CALL 交给处理器，CALLRESULT/CALLERROR 投递给等待中的调用
func (m *Manager) handleFrame(s *Session, data []byte) {
	frame, err := m.serializer.DeserializeMessage(data)
	if err != nil {
		m.logger.Warnf("Dropping malformed frame from %s: %v", s.ChargePointID(), err)
		return
	}

	switch frame.MessageType {
	case ocpp16.Call:
		if m.processor == nil {
			return
		}
		reply, err := m.processor.ProcessMessage(s.ctx, s.callContext, data)
		if err != nil {
			m.logger.Warnf("Failed to process %s from %s: %v", frame.Action, s.ChargePointID(), err)
			return
		}
		if reply != nil {
			if err := s.Send(reply); err != nil {
				m.logger.Errorf("Failed to send reply to %s: %v", s.ChargePointID(), err)
			}
		}

	case ocpp16.CallResult:
		if !m.pending.resolve(s, frame.MessageID, callResult{payload: frame.Payload}) {
			m.logger.Warnf("Unsolicited or late CALLRESULT %s from %s", frame.MessageID, s.ChargePointID())
		}

	case ocpp16.CallError:
		callErr := &transport.CallError{Code: frame.ErrorCode, Description: frame.ErrorDescription}
		if !m.pending.resolve(s, frame.MessageID, callResult{err: callErr}) {
			m.logger.Warnf("Unsolicited or late CALLERROR %s from %s", frame.MessageID, s.ChargePointID())
		}
	}
}

// Invoke 实现 transport.Invoker，按充电桩ID查找会话
func (m *Manager) Invoke(ctx context.Context, req *transport.Request, response interface{}) error {
	session, ok := m.GetSession(req.ChargePointID)
	if !ok {
		return transport.ErrSessionNotFound
	}

	messageID := uuid.NewString()
	data, err := m.serializer.SerializeCall(messageID, req.Action, req.Payload)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(req.Timeout)
	}
	call := newPendingCall(session, req.Action, deadline)
	m.pending.add(messageID, call)

	if err := session.Send(data); err != nil {
		m.pending.remove(messageID)
		return fmt.Errorf("send %s to %s: %w", req.Action, req.ChargePointID, err)
	}

	select {
	case <-ctx.Done():
		m.pending.remove(messageID)
		return ctx.Err()
	case res := <-call.ResponseChan:
		if res.err != nil {
			return res.err
		}
		return m.serializer.DeserializePayload(res.payload, response)
	}
}

// sweepRoutine 使超时未应答的调用失败
func (m *Manager) sweepRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.pending.expire(now, context.DeadlineExceeded); n > 0 {
				m.logger.Warnf("Expired %d pending calls without reply", n)
			}
		}
	}
}

// removeSession 使会话上的调用失败，仅移除仍为当前会话的记录
func (m *Manager) removeSession(s *Session) {
	id := s.ChargePointID()
	m.pingService.remove(s)
	if n := m.pending.failSession(s, ErrSessionClosed); n > 0 {
		m.logger.Warnf("Failed %d pending calls for %s after disconnect", n, id)
	}

	m.mutex.Lock()
	current, ok := m.sessions[id]
	replaced := !ok || current != s
	if !replaced {
		delete(m.sessions, id)
	}
	m.mutex.Unlock()
	if replaced {
		return
	}

	metrics.ActiveConnections.Dec()
	m.emit(m.eventFactory.CreateChargePointDisconnectedEvent(id, "connection closed", m.metadata()))
	m.logger.Infof("Connection removed for charge point: %s", id)
}

// GetSession 获取会话
func (m *Manager) GetSession(chargePointID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[chargePointID]
	return s, ok
}

// HasConnection 检查连接是否存在
func (m *Manager) HasConnection(chargePointID string) bool {
	_, ok := m.GetSession(chargePointID)
	return ok
}

// GetConnectionCount 获取连接数
func (m *Manager) GetConnectionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sessions 所有会话快照
func (m *Manager) Sessions() []SessionInfo {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

// Stats 健康检查信息
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connections":   m.GetConnectionCount(),
		"pending_calls": m.pending.len(),
		"uptime":        time.Since(m.startTime).String(),
		"ping_service":  m.pingService.GetStats(),
	}
}

// GetEventChannel 连接与断开事件
func (m *Manager) GetEventChannel() <-chan events.Event {
	return m.eventChan
}

// Shutdown 关闭所有会话并等待协程退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down WebSocket manager...")
	m.cancel()

	m.mutex.RLock()
	for _, s := range m.sessions {
		s.Close()
	}
	m.mutex.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		m.logger.Info("WebSocket manager shutdown completed")
	case <-ctx.Done():
		m.logger.Warn("WebSocket manager shutdown timeout")
		err = ctx.Err()
	}

	m.eventMu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.eventChan)
	}
	m.eventMu.Unlock()
	return err
}

func (m *Manager) metadata() events.Metadata {
	return events.Metadata{
		Source:          "websocket",
		Transport:       transport.TransportJSON,
		ProtocolVersion: protocol.OCPP16_JSON,
	}
}

func (m *Manager) emit(event events.Event) {
	m.eventMu.RLock()
	defer m.eventMu.RUnlock()
	if m.stopped {
		return
	}
	select {
	case m.eventChan <- event:
	default:
		m.logger.Warnf("Event channel full, dropping %s event", event.GetType())
	}
}

var _ transport.Invoker = (*Manager)(nil)
