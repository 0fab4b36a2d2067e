package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 CSMS_SERVER_PORT
const EnvPrefix = "CSMS"

// Config 应用程序配置结构
type Config struct {
	PodID     string          `mapstructure:"pod_id"`
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	SOAP      SOAPConfig      `mapstructure:"soap"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	OCPP      OCPPConfig      `mapstructure:"ocpp"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	WebSocketPath   string        `mapstructure:"websocket_path"`
	SOAPPath        string        `mapstructure:"soap_path"`
	AdvertiseAddr   string        `mapstructure:"advertise_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxConnections  int           `mapstructure:"max_connections"`
}

// WebSocketConfig OCPP-J 传输配置
type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	CheckOrigin     bool          `mapstructure:"check_origin"`
}

// SOAPConfig OCPP-S 传输配置
type SOAPConfig struct {
	ClientTimeout      time.Duration `mapstructure:"client_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig 存储配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig Redis配置，用于端点注册表
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Prefix       string        `mapstructure:"prefix"`
	EndpointTTL  time.Duration `mapstructure:"endpoint_ttl"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Brokers       []string       `mapstructure:"brokers"`
	EventsTopic   string         `mapstructure:"events_topic"`
	CommandsTopic string         `mapstructure:"commands_topic"`
	ConsumerGroup string         `mapstructure:"consumer_group"`
	Producer      ProducerConfig `mapstructure:"producer"`
	Consumer      ConsumerConfig `mapstructure:"consumer"`
}

// ProducerConfig Kafka生产者配置
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// ConsumerConfig Kafka消费者配置
type ConsumerConfig struct {
	OffsetsInitial string `mapstructure:"offsets_initial"`
}

// NATSConfig NATS请求应答配置
type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	CommandSubject string        `mapstructure:"command_subject"`
	QueueGroup     string        `mapstructure:"queue_group"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// CacheConfig 本地端点缓存配置
type CacheConfig struct {
	EndpointTTL     time.Duration `mapstructure:"endpoint_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// OCPPConfig OCPP协议配置
type OCPPConfig struct {
	HeartbeatInterval        time.Duration `mapstructure:"heartbeat_interval"`
	IdTagValidity            time.Duration `mapstructure:"id_tag_validity"`
	CommandTimeout           time.Duration `mapstructure:"command_timeout"`
	FanoutConcurrency        int           `mapstructure:"fanout_concurrency"`
	FanoutGrace              time.Duration `mapstructure:"fanout_grace"`
	LocalListVersionStrategy string        `mapstructure:"local_list_version_strategy"`
}

// SetDefaults 设置默认配置
func SetDefaults() {
	viper.SetDefault("pod_id", "central-system-0")

	// 服务器配置
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.websocket_path", "/ocpp")
	viper.SetDefault("server.soap_path", "/services/CentralSystemService")
	viper.SetDefault("server.advertise_addr", "")
	viper.SetDefault("server.read_timeout", "60s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("server.max_connections", 10000)

	// WebSocket配置
	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.max_message_size", 65536)
	viper.SetDefault("websocket.ping_interval", "30s")
	viper.SetDefault("websocket.pong_timeout", "60s")
	viper.SetDefault("websocket.check_origin", false)

	// SOAP配置
	viper.SetDefault("soap.client_timeout", "30s")
	viper.SetDefault("soap.insecure_skip_verify", false)
	viper.SetDefault("soap.max_body_bytes", 1<<20)

	// 存储配置
	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.min_conns", 1)
	viper.SetDefault("database.max_conn_idle_time", "5m")

	// Redis配置
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 50)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.prefix", "csms:endpoint:")
	viper.SetDefault("redis.endpoint_ttl", "24h")

	// Kafka配置
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.events_topic", "ocpp-events")
	viper.SetDefault("kafka.commands_topic", "ocpp-commands")
	viper.SetDefault("kafka.consumer_group", "central-system")
	viper.SetDefault("kafka.producer.retry_max", 3)
	viper.SetDefault("kafka.producer.flush_frequency", "500ms")
	viper.SetDefault("kafka.consumer.offsets_initial", "newest")

	// NATS配置
	viper.SetDefault("nats.enabled", false)
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.command_subject", "csms.commands")
	viper.SetDefault("nats.queue_group", "central-system")
	viper.SetDefault("nats.timeout", "60s")

	// 缓存配置
	viper.SetDefault("cache.endpoint_ttl", "10m")
	viper.SetDefault("cache.cleanup_interval", "5m")

	// 日志配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	// 监控配置
	viper.SetDefault("metrics.addr", ":9090")

	// OCPP配置
	viper.SetDefault("ocpp.heartbeat_interval", "300s")
	viper.SetDefault("ocpp.id_tag_validity", "1h")
	viper.SetDefault("ocpp.command_timeout", "30s")
	viper.SetDefault("ocpp.fanout_concurrency", 64)
	viper.SetDefault("ocpp.fanout_grace", "2s")
	viper.SetDefault("ocpp.local_list_version_strategy", LocalListVersionIncrement)
}

// 本地列表重试版本策略
const (
	LocalListVersionIncrement = "increment"
	LocalListVersionQuery     = "query"
)

// Init 初始化viper：默认值、配置文件与环境变量
func Init(configFile string) error {
	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile == "" {
		configFile = os.Getenv("APP_CONFIG")
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load 加载配置
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.OCPP.LocalListVersionStrategy {
	case LocalListVersionIncrement, LocalListVersionQuery:
	default:
		return fmt.Errorf("unsupported ocpp.local_list_version_strategy %q", c.OCPP.LocalListVersionStrategy)
	}

	if c.OCPP.CommandTimeout <= 0 {
		return errors.New("ocpp.command_timeout must be positive")
	}
	if c.OCPP.FanoutConcurrency <= 0 {
		return errors.New("ocpp.fanout_concurrency must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}

// GetAdvertiseAddr 获取对外通告的 host:port，用于拼接回调地址
func (c *Config) GetAdvertiseAddr() string {
	if c.Server.AdvertiseAddr != "" {
		return strings.TrimRight(c.Server.AdvertiseAddr, "/")
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

// GetSOAPAddress 中央系统 SOAP 服务地址，作为下行请求的 WS-Addressing From
func (c *Config) GetSOAPAddress() string {
	return "http://" + c.GetAdvertiseAddr() + c.Server.SOAPPath
}
