package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/logger"
)

// Config HTTP服务器配置，WebSocket、SOAP 与运维接口共用一个监听端口
type Config struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	MaxHeaderBytes  int           `json:"max_header_bytes"`
	KeepAlivePeriod time.Duration `json:"keep_alive_period"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		KeepAlivePeriod: 30 * time.Second,
	}
}

// ConfigFrom 由服务配置生成
func ConfigFrom(cfg config.ServerConfig) *Config {
	c := DefaultConfig()
	c.Host = cfg.Host
	c.Port = cfg.Port
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	return c
}

// HTTPServer 带 TCP Keep-Alive 的 HTTP 服务器
type HTTPServer struct {
	config   *Config
	server   *http.Server
	listener net.Listener
	mu       sync.RWMutex
	logger   *logger.Logger
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(cfg *Config, handler http.Handler, log *logger.Logger) *HTTPServer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &HTTPServer{
		config: cfg,
		server: &http.Server{
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		logger: log.Component("http-server"),
	}
}

// Listen 绑定端口，端口为 0 时由系统分配
func (s *HTTPServer) Listen() error {
	lc := net.ListenConfig{KeepAlive: s.config.KeepAlivePeriod}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Infof("HTTP server listening on %s", listener.Addr())
	return nil
}

// Serve 阻塞处理请求，Stop 之后返回 nil
func (s *HTTPServer) Serve() error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener == nil {
		return net.ErrClosed
	}

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start 绑定并处理请求
func (s *HTTPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop 优雅关闭，超时后强制关闭
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("Error during server shutdown: %v", err)
		return s.server.Close()
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// GetAddr 获取监听地址
func (s *HTTPServer) GetAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// HealthCheck 未监听时返回错误
func (s *HTTPServer) HealthCheck() error {
	if s.GetAddr() == nil {
		return net.ErrClosed
	}
	return nil
}
