package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/transport"
)

// Resolver 解析充电桩回调地址
type Resolver interface {
	Resolve(ctx context.Context, chargePointID string) (string, error)
}

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	// 单次下发超时
	CommandTimeout time.Duration `json:"command_timeout"`

	// 是否启用统计信息收集
	EnableStats bool `json:"enable_stats"`
}

// DefaultDispatcherConfig 默认分发器配置
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		CommandTimeout: 30 * time.Second,
		EnableStats:    true,
	}
}

// DispatcherStats 分发器统计信息
type DispatcherStats struct {
	TotalCommands    int64            `json:"total_commands"`
	Succeeded        int64            `json:"succeeded"`
	Failed           int64            `json:"failed"`
	TimedOut         int64            `json:"timed_out"`
	CommandsByAction map[string]int64 `json:"commands_by_action"`
	AverageDuration  time.Duration    `json:"average_duration"`
	MaxDuration      time.Duration    `json:"max_duration"`
	StartTime        time.Time        `json:"start_time"`
	Uptime           time.Duration    `json:"uptime"`
}

// Dispatcher 下行命令分发：解析地址、带超时调用、归一化结果
type Dispatcher struct {
	config   *DispatcherConfig
	resolver Resolver
	invoker  transport.Invoker

	stats      DispatcherStats
	statsMutex sync.RWMutex

	logger *logger.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(config *DispatcherConfig, resolver Resolver, invoker transport.Invoker, log *logger.Logger) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		config:   config,
		resolver: resolver,
		invoker:  invoker,
		stats: DispatcherStats{
			CommandsByAction: make(map[string]int64),
			StartTime:        time.Now(),
		},
		logger: log.Component("dispatcher"),
	}
}

// Send 向单个充电桩发送请求并解码应答
//
// 调用与调用方的取消解耦，只有超时会结束一次已发出的调用。
func (d *Dispatcher) Send(ctx context.Context, chargePointID string, action ocpp16.Action, request, response interface{}) error {
	endpoint, err := d.resolver.Resolve(ctx, chargePointID)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.CommandTimeout)
	defer cancel()

	return d.invoker.Invoke(callCtx, &transport.Request{
		ChargePointID: chargePointID,
		Endpoint:      endpoint,
		Action:        action,
		Payload:       request,
		Timeout:       d.config.CommandTimeout,
	}, response)
}

// Dispatch 下发已校验的命令，总是返回一个结果
func (d *Dispatcher) Dispatch(ctx context.Context, chargePointID string, cmd *Command) *Result {
	start := time.Now()
	response := serialization.CreatePayloadInstance(cmd.Action, false)

	err := d.Send(ctx, chargePointID, cmd.Action, cmd.Request, response)

	var result *Result
	if err != nil {
		result = FailedResult(chargePointID, string(cmd.Action), err)
	} else {
		result = &Result{
			ChargePointID: chargePointID,
			Command:       string(cmd.Action),
			Status:        ResultSucceeded,
			Outcome:       OutcomeOf(cmd.Action, response),
			Response:      response,
		}
	}
	d.Observe(result, time.Since(start))
	return result
}

// Observe 记录一个结果的指标、统计与日志
func (d *Dispatcher) Observe(result *Result, duration time.Duration) {
	metrics.Commands.WithLabelValues(result.Command, string(result.Status)).Inc()
	metrics.CommandDuration.WithLabelValues(result.Command).Observe(duration.Seconds())

	if result.Status != ResultSucceeded {
		d.logger.With(map[string]interface{}{
			"charge_point_id": result.ChargePointID,
			"command":         result.Command,
		}).Warnf("Command %s: %s", result.Status, result.Error)
	} else {
		d.logger.Debugf("%s", result)
	}

	d.updateStats(result, duration)
}

// FailedResult 由错误生成失败或超时结果
func FailedResult(chargePointID, command string, err error) *Result {
	status := ResultFailed
	outcome := "Failed"
	var callErr *transport.CallError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = ResultTimeout
		outcome = "Timed out"
	case errors.Is(err, transport.ErrNoEndpoint):
		outcome = "No endpoint known"
	case errors.As(err, &callErr):
		outcome = "Error: " + string(callErr.Code)
	}
	return &Result{
		ChargePointID: chargePointID,
		Command:       command,
		Status:        status,
		Outcome:       outcome,
		Error:         err.Error(),
	}
}

// GetStats 获取分发器统计信息
func (d *Dispatcher) GetStats() DispatcherStats {
	d.statsMutex.RLock()
	defer d.statsMutex.RUnlock()

	stats := d.stats
	stats.Uptime = time.Since(d.stats.StartTime)
	stats.CommandsByAction = make(map[string]int64, len(d.stats.CommandsByAction))
	for action, count := range d.stats.CommandsByAction {
		stats.CommandsByAction[action] = count
	}
	return stats
}

func (d *Dispatcher) updateStats(result *Result, duration time.Duration) {
	if !d.config.EnableStats {
		return
	}

	d.statsMutex.Lock()
	defer d.statsMutex.Unlock()

	d.stats.TotalCommands++
	switch result.Status {
	case ResultSucceeded:
		d.stats.Succeeded++
	case ResultTimeout:
		d.stats.TimedOut++
	default:
		d.stats.Failed++
	}
	d.stats.CommandsByAction[result.Command]++

	if duration > d.stats.MaxDuration {
		d.stats.MaxDuration = duration
	}
	total := time.Duration(d.stats.AverageDuration.Nanoseconds()*(d.stats.TotalCommands-1)) + duration
	d.stats.AverageDuration = total / time.Duration(d.stats.TotalCommands)
}
