package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/gateway"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport/websocket"
)

const maxBodyBytes = 1 << 20

// CommandExecutor 执行运维命令
type CommandExecutor interface {
	Execute(ctx context.Context, cmd gateway.OperatorCommand) (*gateway.Aggregate, error)
}

// PresenceView 充电桩在线视图
type PresenceView interface {
	GetChargePoint(chargePointID string) (*chargepoint.ChargePoint, bool)
	GetStats() chargepoint.ManagerStats
}

// ConnectionCounter 当前 OCPP-J 连接数
type ConnectionCounter interface {
	GetConnectionCount() int
}

// SessionLister 当前 OCPP-J 会话快照
type SessionLister interface {
	Sessions() []websocket.SessionInfo
}

// DispatcherStats 下行分发统计
type DispatcherStats interface {
	GetStats() gateway.DispatcherStats
}

// CorrelatorStats 电表数据归属统计
type CorrelatorStats interface {
	GetStats() transaction.CorrelatorStats
}

// ReservationLookup 查询有效预约
type ReservationLookup interface {
	Get(ctx context.Context, reservationID int) (*storage.Reservation, error)
}

// Options 服务依赖，SOAP 与 WebSocket 处理器为空时不挂载，统计来源为空时不输出
type Options struct {
	Commands    CommandExecutor
	Store       storage.Store
	Presence    PresenceView
	Connections ConnectionCounter
	Sessions    SessionLister
	Dispatcher  DispatcherStats
	Correlator  CorrelatorStats

	Reservations ReservationLookup

	SOAPPath         string
	SOAPHandler      http.Handler
	WebSocketPath    string
	WebSocketHandler http.Handler
}

// Server 运维 HTTP 接口，同时挂载充电桩的 SOAP 与 WebSocket 入口
type Server struct {
	opts      Options
	validator *validation.Validator
	logger    *logger.Logger
}

func NewServer(opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		opts:      opts,
		validator: validation.NewValidator(),
		logger:    log.Component("api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/api/v1/commands", s.ExecuteCommand)
	r.Post("/api/v1/chargepoints/{chargePointId}/commands/{command}", s.ExecuteChargePointCommand)
	r.Post("/api/v1/chargepoints/{chargePointId}/reservations", s.CreateReservation)
	r.Delete("/api/v1/chargepoints/{chargePointId}/reservations/{reservationId}", s.CancelReservation)
	r.Get("/api/v1/chargepoints/{chargePointId}", s.GetChargePoint)
	r.Get("/api/v1/transactions/{transactionId}", s.GetTransaction)
	r.Get("/api/v1/reservations/{reservationId}", s.GetReservation)
	r.Put("/api/v1/idtags/{idTag}", s.PutIdTag)
	r.Get("/api/v1/sessions", s.ListSessions)

	if s.opts.SOAPHandler != nil && s.opts.SOAPPath != "" {
		r.Handle(s.opts.SOAPPath, s.opts.SOAPHandler)
	}
	if s.opts.WebSocketHandler != nil && s.opts.WebSocketPath != "" {
		r.Handle(s.opts.WebSocketPath+"/*", s.opts.WebSocketHandler)
	}

	r.Get("/healthz", s.Health)
	return r
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.opts.Connections != nil {
		body["connections"] = s.opts.Connections.GetConnectionCount()
	}
	if s.opts.Presence != nil {
		body["chargePoints"] = s.opts.Presence.GetStats()
	}
	if s.opts.Dispatcher != nil {
		body["dispatcher"] = s.opts.Dispatcher.GetStats()
	}
	if s.opts.Correlator != nil {
		body["correlator"] = s.opts.Correlator.GetStats()
	}
	writeJSON(w, http.StatusOK, body)
}

// ListSessions 按充电桩ID排序的会话列表
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []websocket.SessionInfo{}
	if s.opts.Sessions != nil {
		sessions = s.opts.Sessions.Sessions()
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ChargePointID < sessions[j].ChargePointID })
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		// 升级后的 WebSocket 连接在关闭时才返回
		s.logger.Debugf("%s %s %d %s request_id=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
