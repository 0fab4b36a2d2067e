package gateway

import (
	"context"
	"fmt"

	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport"
)

// EndpointResolver 按 本地缓存 -> Redis -> 存储 顺序解析充电桩回调地址，命中后回填更快的层级
type EndpointResolver struct {
	cache    *cache.EndpointCache
	registry storage.EndpointRegistry
	store    storage.Store
	logger   *logger.Logger
}

// NewEndpointResolver 创建解析器，registry 可为 nil（未启用 Redis）
func NewEndpointResolver(endpointCache *cache.EndpointCache, registry storage.EndpointRegistry, store storage.Store, log *logger.Logger) *EndpointResolver {
	if log == nil {
		log = logger.Default()
	}
	return &EndpointResolver{
		cache:    endpointCache,
		registry: registry,
		store:    store,
		logger:   log.Component("endpoint-resolver"),
	}
}

// Resolve 解析回调地址，未知时返回 transport.ErrNoEndpoint
func (r *EndpointResolver) Resolve(ctx context.Context, chargePointID string) (string, error) {
	if endpoint, ok := r.cache.Get(chargePointID); ok {
		return endpoint, nil
	}

	if r.registry != nil {
		endpoint, found, err := r.registry.GetEndpoint(ctx, chargePointID)
		if err != nil {
			// Redis 故障不阻断，继续查存储
			r.logger.Warnf("Endpoint registry lookup for %s failed: %v", chargePointID, err)
		} else if found {
			r.cache.Set(chargePointID, endpoint)
			return endpoint, nil
		}
	}

	endpoint, found, err := r.store.ChargePointEndpoint(ctx, chargePointID)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint for %s: %w", chargePointID, err)
	}
	if !found || endpoint == "" {
		return "", transport.ErrNoEndpoint
	}

	r.cache.Set(chargePointID, endpoint)
	if r.registry != nil {
		if err := r.registry.SetEndpoint(ctx, chargePointID, endpoint); err != nil {
			r.logger.Warnf("Failed to backfill endpoint registry for %s: %v", chargePointID, err)
		}
	}
	return endpoint, nil
}

// RecordEndpoint 注册成功后写入缓存与共享注册表
func (r *EndpointResolver) RecordEndpoint(ctx context.Context, chargePointID, endpoint string) error {
	r.cache.Set(chargePointID, endpoint)
	if r.registry == nil {
		return nil
	}
	return r.registry.SetEndpoint(ctx, chargePointID, endpoint)
}

// Tap 充电桩断开时清除其缓存地址，事件原样转发，事件源关闭时关闭输出
func (r *EndpointResolver) Tap(source <-chan events.Event, buffer int) <-chan events.Event {
	out := make(chan events.Event, buffer)
	go func() {
		defer close(out)
		for event := range source {
			if event.GetType() == events.EventTypeChargePointDisconnected {
				r.Forget(context.Background(), event.GetChargePointID())
			}
			out <- event
		}
	}()
	return out
}

// Forget 移除缓存的回调地址，存储中的记录保留
func (r *EndpointResolver) Forget(ctx context.Context, chargePointID string) {
	r.cache.Delete(chargePointID)
	if r.registry == nil {
		return
	}
	if err := r.registry.DeleteEndpoint(ctx, chargePointID); err != nil {
		r.logger.Warnf("Failed to delete endpoint for %s from registry: %v", chargePointID, err)
	}
}
