package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

var (
	// ErrNoEndpoint 充电桩没有已知的回调地址
	ErrNoEndpoint = errors.New("transport: no endpoint known for charge point")

	// ErrUnsupportedScheme 回调地址协议不受支持
	ErrUnsupportedScheme = errors.New("transport: unsupported endpoint scheme")

	// ErrSessionNotFound 充电桩当前没有 WebSocket 会话
	ErrSessionNotFound = errors.New("transport: no active session for charge point")
)

// 传输方式，用于日志、指标与事件元数据
const (
	TransportJSON = "json"
	TransportSOAP = "soap"
)

// CallError 协议级错误（OCPP-J CALLERROR 或 SOAP Fault）
type CallError struct {
	Code        ocpp16.ErrorCode
	Description string
}

// NewCallError 创建协议级错误
func NewCallError(code ocpp16.ErrorCode, format string, args ...interface{}) *CallError {
	return &CallError{Code: code, Description: fmt.Sprintf(format, args...)}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// CallContext 入站调用上下文，由传输层填充
type CallContext struct {
	ChargePointID   string
	Endpoint        string
	ProtocolVersion string
	Transport       string
	MessageID       string
	RemoteAddr      string
}

// Handler 处理充电桩发起的请求
type Handler interface {
	HandleRequest(ctx context.Context, cc CallContext, action ocpp16.Action, payload interface{}) (interface{}, error)
}

// Request 一次下行调用
type Request struct {
	ChargePointID string
	Endpoint      string
	Action        ocpp16.Action
	Payload       interface{}
	Timeout       time.Duration
}

// Invoker 向充电桩发送请求并将应答解码到 response
type Invoker interface {
	Invoke(ctx context.Context, req *Request, response interface{}) error
}

// InvokerFunc 函数适配器
type InvokerFunc func(ctx context.Context, req *Request, response interface{}) error

// Invoke 实现 Invoker
func (f InvokerFunc) Invoke(ctx context.Context, req *Request, response interface{}) error {
	return f(ctx, req, response)
}

// Mux 按回调地址协议选择传输实现
type Mux struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

// NewMux 创建传输路由
func NewMux() *Mux {
	return &Mux{invokers: make(map[string]Invoker)}
}

// Handle 注册协议对应的传输实现
func (m *Mux) Handle(scheme string, invoker Invoker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokers[strings.ToLower(scheme)] = invoker
}

// Invoke 实现 Invoker
func (m *Mux) Invoke(ctx context.Context, req *Request, response interface{}) error {
	if req.Endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(req.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}

	m.mu.RLock()
	invoker, ok := m.invokers[strings.ToLower(u.Scheme)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return invoker.Invoke(ctx, req, response)
}
