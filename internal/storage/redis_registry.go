package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/go-redis/redis/v8"
)

// RedisEndpointRegistry 使用 Redis 保存充电桩回调地址，多实例共享
type RedisEndpointRegistry struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisEndpointRegistry 创建 Redis 端点注册表并验证连接
func NewRedisEndpointRegistry(cfg config.RedisConfig) (*RedisEndpointRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "csms:endpoint:"
	}
	return &RedisEndpointRegistry{Client: client, Prefix: prefix, TTL: cfg.EndpointTTL}, nil
}

func (r *RedisEndpointRegistry) key(chargePointID string) string {
	return r.Prefix + chargePointID
}

// SetEndpoint 记录充电桩回调地址
func (r *RedisEndpointRegistry) SetEndpoint(ctx context.Context, chargePointID, endpoint string) error {
	if err := r.Client.Set(ctx, r.key(chargePointID), endpoint, r.TTL).Err(); err != nil {
		return WrapError("redis set endpoint", err)
	}
	return nil
}

// GetEndpoint 查询充电桩回调地址，键不存在时 found 为 false
func (r *RedisEndpointRegistry) GetEndpoint(ctx context.Context, chargePointID string) (string, bool, error) {
	val, err := r.Client.Get(ctx, r.key(chargePointID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, WrapError("redis get endpoint", err)
	}
	return val, true, nil
}

// DeleteEndpoint 删除充电桩回调地址
func (r *RedisEndpointRegistry) DeleteEndpoint(ctx context.Context, chargePointID string) error {
	if err := r.Client.Del(ctx, r.key(chargePointID)).Err(); err != nil {
		return WrapError("redis delete endpoint", err)
	}
	return nil
}

// Close 关闭与 Redis 的连接
func (r *RedisEndpointRegistry) Close() error {
	return r.Client.Close()
}
