package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/transport"
)

var (
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("websocket: session closed")

	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("websocket: send queue full")
)

// MessageType 出站消息类型
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypePing
)

// outbound 出站消息，所有写操作都经由 sendRoutine
type outbound struct {
	Type MessageType
	Data []byte
}

// Session 单个充电桩的 OCPP-J 连接
type Session struct {
	conn        *websocket.Conn
	callContext transport.CallContext
	connectedAt time.Time
	subprotocol string

	sendChan  chan outbound
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	lastActivity time.Time
	mutex        sync.RWMutex

	config *Config
	logger *logger.Logger
}

// SessionInfo 会话快照
type SessionInfo struct {
	ChargePointID string    `json:"charge_point_id"`
	Endpoint      string    `json:"endpoint"`
	RemoteAddr    string    `json:"remote_addr"`
	Subprotocol   string    `json:"subprotocol"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActivity  time.Time `json:"last_activity"`
}

func newSession(parent context.Context, conn *websocket.Conn, cc transport.CallContext, config *Config, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Session{
		conn:         conn,
		callContext:  cc,
		connectedAt:  now,
		subprotocol:  conn.Subprotocol(),
		sendChan:     make(chan outbound, config.SendQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: now,
		config:       config,
		logger: log.With(map[string]interface{}{
			"charge_point_id": cc.ChargePointID,
			"transport":       cc.Transport,
		}),
	}
}

// ChargePointID 会话所属充电桩
func (s *Session) ChargePointID() string {
	return s.callContext.ChargePointID
}

// Send 将文本帧放入发送队列，不阻塞
func (s *Session) Send(data []byte) error {
	return s.enqueue(outbound{Type: MessageTypeText, Data: data})
}

func (s *Session) enqueue(msg outbound) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}
	select {
	case s.sendChan <- msg:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// Close 关闭连接，可重复调用
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
}

// Info 会话快照
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ChargePointID: s.callContext.ChargePointID,
		Endpoint:      s.callContext.Endpoint,
		RemoteAddr:    s.callContext.RemoteAddr,
		Subprotocol:   s.subprotocol,
		ConnectedAt:   s.connectedAt,
		LastActivity:  s.LastActivity(),
	}
}

// LastActivity 最后一次收发时间
func (s *Session) LastActivity() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// sendRoutine 唯一的写协程
func (s *Session) sendRoutine() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.sendChan:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))

			var err error
			switch msg.Type {
			case MessageTypeText:
				err = s.conn.WriteMessage(websocket.TextMessage, msg.Data)
			case MessageTypePing:
				err = s.conn.WriteMessage(websocket.PingMessage, msg.Data)
			}
			if err != nil {
				s.logger.Errorf("Failed to write frame: %v", err)
				s.Close()
				return
			}
			s.touch()
		}
	}
}

// receiveRoutine 读取文本帧直到连接关闭
func (s *Session) receiveRoutine(handle func(*Session, []byte)) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.ctx.Err() == nil {
				s.logger.Warnf("Connection closed unexpectedly: %v", err)
			}
			return
		}
		s.touch()
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		if messageType != websocket.TextMessage {
			s.logger.Debugf("Ignoring non-text frame of type %d", messageType)
			continue
		}
		handle(s, data)
	}
}
