package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/central-system/internal/api"
	"github.com/charging-platform/central-system/internal/business/chargepoint"
	"github.com/charging-platform/central-system/internal/business/locallist"
	"github.com/charging-platform/central-system/internal/business/reservation"
	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/gateway"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/message"
	"github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/storage/memory"
	"github.com/charging-platform/central-system/internal/storage/postgres"
	"github.com/charging-platform/central-system/internal/transport"
	"github.com/charging-platform/central-system/internal/transport/server"
	"github.com/charging-platform/central-system/internal/transport/soap"
	"github.com/charging-platform/central-system/internal/transport/websocket"
)

const eventBufferSize = 4096

func main() {
	configFile := flag.String("config", "", "path to the config file")
	flag.Parse()

	// 1. 加载配置
	if err := config.Init(*configFile); err != nil {
		fmt.Printf("Failed to initialize configuration: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.With(map[string]interface{}{"pod_id": cfg.PodID})
	log.Info("Logger initialized")

	// 3. 初始化存储
	store, err := openStore(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	log.Infof("Store initialized (driver: %s)", cfg.Database.Driver)

	// 4. 端点注册表与本地缓存
	var registry storage.EndpointRegistry
	if cfg.Redis.Enabled {
		redisRegistry, err := storage.NewRedisEndpointRegistry(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize Redis endpoint registry: %v", err)
		}
		registry = redisRegistry
		log.Infof("Redis endpoint registry initialized at %s", cfg.Redis.Addr)
	}
	endpointCache := cache.NewEndpointCache(cfg.Cache.EndpointTTL, cfg.Cache.CleanupInterval)
	resolver := gateway.NewEndpointResolver(endpointCache, registry, store, log)

	// 5. 初始化 OCPP 1.6 处理器
	processorConfig := ocpp16.DefaultProcessorConfig()
	if cfg.OCPP.HeartbeatInterval > 0 {
		processorConfig.HeartbeatInterval = cfg.OCPP.HeartbeatInterval
	}
	if cfg.OCPP.IdTagValidity > 0 {
		processorConfig.IdTagValidity = cfg.OCPP.IdTagValidity
	}
	processorConfig.MaxMessageSize = int(cfg.WebSocket.MaxMessageSize)
	processorConfig.EventChannelSize = eventBufferSize
	correlator := transaction.NewCorrelator(store, log)
	processor := ocpp16.NewProcessor(processorConfig, store, correlator, resolver, log)
	log.Info("OCPP 1.6 processor initialized")

	// 6. 初始化传输层：OCPP-J 会话管理与 OCPP-S 客户端/服务端
	wsConfig := websocket.ConfigFrom(cfg.Server, cfg.WebSocket)
	wsManager := websocket.NewManager(wsConfig, processor, log, eventBufferSize)
	wsManager.Start()
	soapClient := soap.NewClient(cfg.SOAP, cfg.GetSOAPAddress(), log)
	soapServer := soap.NewServer(processor, cfg.SOAP.MaxBodyBytes, log)

	invoker := transport.NewMux()
	invoker.Handle("ws", wsManager)
	invoker.Handle("wss", wsManager)
	invoker.Handle("http", soapClient)
	invoker.Handle("https", soapClient)
	log.Info("Transports initialized")

	// 7. 下行分发与业务组件
	dispatcher := gateway.NewDispatcher(&gateway.DispatcherConfig{
		CommandTimeout: cfg.OCPP.CommandTimeout,
		EnableStats:    true,
	}, resolver, invoker, log)
	fanout := gateway.NewFanOut(cfg.OCPP.FanoutConcurrency, cfg.OCPP.CommandTimeout, cfg.OCPP.FanoutGrace, log)
	localList := locallist.NewSynchronizer(dispatcher, store, cfg.OCPP.LocalListVersionStrategy, log)
	reservations := reservation.NewManager(dispatcher, store, log)
	commands := gateway.NewCommandService(dispatcher, fanout, localList, reservations, eventBufferSize, log)
	log.Info("Command service initialized")

	// 8. 事件汇聚：清理断开连接的缓存地址、更新在线状态视图后发布到 Kafka
	presenceConfig := chargepoint.DefaultManagerConfig()
	presenceConfig.HeartbeatInterval = processorConfig.HeartbeatInterval
	presence := chargepoint.NewManager(presenceConfig, log)
	presence.Start()

	hub := gateway.NewEventHub(eventBufferSize, log)
	hub.Attach("processor", processor.GetEventChannel())
	hub.Attach("websocket", wsManager.GetEventChannel())
	hub.Attach("commands", commands.GetEventChannel())

	var producer message.EventProducer = message.NewLogProducer(log)
	var consumer *message.KafkaConsumer
	if cfg.Kafka.Enabled {
		kafkaProducer, err := message.NewKafkaProducer(cfg.Kafka, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		producer = kafkaProducer
		log.Infof("Kafka producer initialized, events topic: %s", cfg.Kafka.EventsTopic)

		consumer, err = message.NewKafkaConsumer(cfg.Kafka, commands, 3*cfg.OCPP.CommandTimeout+cfg.OCPP.FanoutGrace, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		consumer.Start()
		log.Infof("Kafka consumer started with brokers: %v, group: %s", cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	}
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		message.Forward(producer, presence.Tap(resolver.Tap(hub.Events(), eventBufferSize)), log)
	}()

	var responder *message.NATSResponder
	if cfg.NATS.Enabled {
		responder, err = message.NewNATSResponder(cfg.NATS, commands, log)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		if err := responder.Start(); err != nil {
			log.Fatalf("Failed to start NATS responder: %v", err)
		}
	}

	// 9. HTTP 服务：运维接口、SOAP 与 WebSocket 入口
	apiServer := api.NewServer(api.Options{
		Commands:         commands,
		Store:            store,
		Presence:         presence,
		Connections:      wsManager,
		Sessions:         wsManager,
		Dispatcher:       dispatcher,
		Correlator:       correlator,
		Reservations:     reservations,
		SOAPPath:         cfg.Server.SOAPPath,
		SOAPHandler:      soapServer,
		WebSocketPath:    wsConfig.Path,
		WebSocketHandler: http.HandlerFunc(wsManager.ServeWS),
	}, log)
	httpServer := server.NewHTTPServer(server.ConfigFrom(cfg.Server), apiServer.Routes(), log)
	if err := httpServer.Listen(); err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.GetServerAddr(), err)
	}
	go func() {
		if err := httpServer.Serve(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	metricsServer := startMetricsServer(cfg.GetMetricsAddr(), log)

	log.Infof("Central system started, advertising %s", cfg.GetAdvertiseAddr())

	// 10. 监听并处理优雅停机，按初始化的逆序关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := httpServer.Stop(ctx); err != nil {
		log.Errorf("Error stopping HTTP server: %v", err)
	}
	if responder != nil {
		if err := responder.Close(); err != nil {
			log.Errorf("Error closing NATS responder: %v", err)
		}
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Errorf("Error closing Kafka consumer: %v", err)
		}
	}
	if err := wsManager.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down WebSocket manager: %v", err)
	}
	commands.Stop()
	processor.Stop()
	hub.Close()

	// 等待剩余事件发布完毕
	select {
	case <-forwarded:
	case <-ctx.Done():
		log.Warn("Timed out draining events")
	}
	if err := producer.Close(); err != nil {
		log.Errorf("Error closing event producer: %v", err)
	}
	presence.Stop()
	endpointCache.Flush()
	if registry != nil {
		if err := registry.Close(); err != nil {
			log.Errorf("Error closing endpoint registry: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		log.Errorf("Error closing store: %v", err)
	}

	log.Info("Server gracefully stopped.")
}

// openStore 按配置选择存储后端
func openStore(cfg config.DatabaseConfig, log *logger.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn("Using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// startMetricsServer 启动监控服务器，地址为空时不启动
func startMetricsServer(addr string, log *logger.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("Metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()
	return srv
}
