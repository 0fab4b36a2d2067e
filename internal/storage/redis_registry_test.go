package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/storage"
)

func TestNewRedisEndpointRegistry_Unreachable(t *testing.T) {
	cfg := config.RedisConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	}

	registry, err := storage.NewRedisEndpointRegistry(cfg)
	assert.Error(t, err)
	assert.Nil(t, registry)
}

func TestRedisEndpointRegistry_SetGetDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := &storage.RedisEndpointRegistry{Client: db, Prefix: "csms:endpoint:", TTL: time.Hour}
	ctx := context.Background()

	key := "csms:endpoint:CP001"
	endpoint := "http://10.0.0.5:8080/ocpp"

	mock.ExpectSet(key, endpoint, time.Hour).SetVal("OK")
	require.NoError(t, registry.SetEndpoint(ctx, "CP001", endpoint))

	mock.ExpectGet(key).SetVal(endpoint)
	got, found, err := registry.GetEndpoint(ctx, "CP001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, endpoint, got)

	mock.ExpectGet(key).SetErr(redis.Nil)
	got, found, err = registry.GetEndpoint(ctx, "CP001")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got)

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, registry.DeleteEndpoint(ctx, "CP001"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisEndpointRegistry_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := &storage.RedisEndpointRegistry{Client: db, Prefix: "csms:endpoint:"}
	ctx := context.Background()

	key := "csms:endpoint:CP002"
	backendErr := errors.New("connection reset")

	mock.ExpectSet(key, "ws://cp", time.Duration(0)).SetErr(backendErr)
	err := registry.SetEndpoint(ctx, "CP002", "ws://cp")
	assert.ErrorIs(t, err, backendErr)
	assert.True(t, storage.IsStoreError(err))

	mock.ExpectGet(key).SetErr(backendErr)
	_, found, err := registry.GetEndpoint(ctx, "CP002")
	assert.False(t, found)
	assert.ErrorIs(t, err, backendErr)

	var se *storage.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "redis get endpoint", se.Op)

	mock.ExpectDel(key).SetErr(backendErr)
	assert.ErrorIs(t, registry.DeleteEndpoint(ctx, "CP002"), backendErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, storage.WrapError("op", nil))
	assert.Same(t, storage.ErrNotFound, storage.WrapError("op", storage.ErrNotFound))
	assert.Same(t, storage.ErrTransactionClosed, storage.WrapError("op", storage.ErrTransactionClosed))

	wrapped := storage.WrapError("insert", errors.New("boom"))
	assert.True(t, storage.IsStoreError(wrapped))
	assert.Equal(t, "storage insert: boom", wrapped.Error())

	// 已包装的错误不重复包装
	assert.Same(t, wrapped, storage.WrapError("outer", wrapped))
}
