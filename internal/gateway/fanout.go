package gateway

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

// TargetFunc 对单个目标执行命令，必须总是返回结果
type TargetFunc func(chargePointID string) *Result

// FanOut 多目标并发下发，单个目标失败不影响其他目标
type FanOut struct {
	concurrency int
	perTarget   time.Duration
	grace       time.Duration
	logger      *logger.Logger
}

// NewFanOut 创建并发下发器
func NewFanOut(concurrency int, perTarget, grace time.Duration, log *logger.Logger) *FanOut {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &FanOut{
		concurrency: concurrency,
		perTarget:   perTarget,
		grace:       grace,
		logger:      log.Component("fanout"),
	}
}

// Run 执行并在全部完成或截止时间到达时封存结果，calls 为每个目标最多的顺序调用次数
func (f *FanOut) Run(command string, targets []string, calls int, fn TargetFunc) *Aggregate {
	agg := NewAggregate(command, targets)
	ids := agg.targets
	if len(ids) == 0 {
		agg.Seal()
		return agg
	}

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, cp := range ids {
			cp := cp
			g.Go(func() error {
				r := fn(cp)
				if !agg.Record(r) {
					metrics.FanoutDiscardedResults.Inc()
					f.logger.Warnf("Discarding late %s result from %s: %s", command, cp, r.Outcome)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	timer := time.NewTimer(f.deadline(len(ids), calls))
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		f.logger.Warnf("Fan-out deadline reached for %s with %d targets", command, len(ids))
	}
	agg.Seal()
	return agg
}

// deadline 受并发上限影响，目标按批次执行
func (f *FanOut) deadline(targets, calls int) time.Duration {
	if calls < 1 {
		calls = 1
	}
	waves := (targets + f.concurrency - 1) / f.concurrency
	return time.Duration(waves*calls)*f.perTarget + f.grace
}
