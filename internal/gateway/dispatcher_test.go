package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/transport"
)

// staticResolver 固定地址表
type staticResolver map[string]string

func (r staticResolver) Resolve(ctx context.Context, chargePointID string) (string, error) {
	if endpoint, ok := r[chargePointID]; ok {
		return endpoint, nil
	}
	return "", transport.ErrNoEndpoint
}

func newTestDispatcher(resolver Resolver, invoker transport.Invoker, timeout time.Duration) *Dispatcher {
	return NewDispatcher(&DispatcherConfig{CommandTimeout: timeout, EnableStats: true}, resolver, invoker, logger.Nop())
}

func TestDispatcher_DispatchSucceeded(t *testing.T) {
	var got *transport.Request
	invoker := transport.InvokerFunc(func(ctx context.Context, req *transport.Request, response interface{}) error {
		got = req
		response.(*ocpp16.ResetResponse).Status = ocpp16.ResetStatusAccepted
		return nil
	})
	d := newTestDispatcher(staticResolver{"CP001": "http://10.0.0.5:8080/ocpp"}, invoker, time.Second)

	result := d.Dispatch(context.Background(), "CP001", &Command{
		Action:  ocpp16.ActionReset,
		Request: &ocpp16.ResetRequest{Type: ocpp16.ResetTypeHard},
	})

	assert.Equal(t, ResultSucceeded, result.Status)
	assert.Equal(t, "Accepted", result.Outcome)
	assert.Equal(t, "Charge point: CP001, Request: Reset, Response: Accepted", result.String())
	require.NotNil(t, got)
	assert.Equal(t, "http://10.0.0.5:8080/ocpp", got.Endpoint)
	assert.Equal(t, ocpp16.ActionReset, got.Action)
	assert.Equal(t, time.Second, got.Timeout)

	stats := d.GetStats()
	assert.Equal(t, int64(1), stats.TotalCommands)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.CommandsByAction["Reset"])
}

func TestDispatcher_NoEndpointNeverInvokes(t *testing.T) {
	var calls int32
	invoker := transport.InvokerFunc(func(ctx context.Context, req *transport.Request, response interface{}) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	d := newTestDispatcher(staticResolver{}, invoker, time.Second)

	result := d.Dispatch(context.Background(), "CP404", &Command{Action: ocpp16.ActionClearCache, Request: &ocpp16.ClearCacheRequest{}})

	assert.Equal(t, ResultFailed, result.Status)
	assert.Equal(t, "No endpoint known", result.Outcome)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatcher_TimeoutStatus(t *testing.T) {
	invoker := transport.InvokerFunc(func(ctx context.Context, req *transport.Request, response interface{}) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := newTestDispatcher(staticResolver{"CP001": "ws://cp001"}, invoker, 50*time.Millisecond)

	result := d.Dispatch(context.Background(), "CP001", &Command{Action: ocpp16.ActionClearCache, Request: &ocpp16.ClearCacheRequest{}})

	assert.Equal(t, ResultTimeout, result.Status)
	assert.Equal(t, "Timed out", result.Outcome)
	assert.Equal(t, int64(1), d.GetStats().TimedOut)
}

func TestDispatcher_CallerCancellationDoesNotAbortCall(t *testing.T) {
	invoker := transport.InvokerFunc(func(ctx context.Context, req *transport.Request, response interface{}) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(30 * time.Millisecond):
		}
		response.(*ocpp16.ClearCacheResponse).Status = ocpp16.ClearCacheStatusAccepted
		return nil
	})
	d := newTestDispatcher(staticResolver{"CP001": "ws://cp001"}, invoker, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Dispatch(ctx, "CP001", &Command{Action: ocpp16.ActionClearCache, Request: &ocpp16.ClearCacheRequest{}})
	assert.Equal(t, ResultSucceeded, result.Status)
}

func TestFailedResult(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  ResultStatus
		outcome string
	}{
		{"deadline", context.DeadlineExceeded, ResultTimeout, "Timed out"},
		{"wrapped deadline", errors.Join(errors.New("post"), context.DeadlineExceeded), ResultTimeout, "Timed out"},
		{"no endpoint", transport.ErrNoEndpoint, ResultFailed, "No endpoint known"},
		{"call error", transport.NewCallError(ocpp16.ErrorCodeNotSupported, "nope"), ResultFailed, "Error: NotSupported"},
		{"other", errors.New("connection refused"), ResultFailed, "Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FailedResult("CP001", "Reset", tt.err)
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.err.Error(), r.Error)
		})
	}
}
