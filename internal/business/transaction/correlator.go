package transaction

import (
	"context"
	"sync"

	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
)

// Correlator 交易与连接器的关联查询，决定电表数据的归属
type Correlator struct {
	store  storage.Store
	logger *logger.Logger

	stats *CorrelatorStats
	mutex sync.RWMutex
}

// CorrelatorStats 关联统计
type CorrelatorStats struct {
	Lookups        int64 `json:"lookups"`
	NotFound       int64 `json:"not_found"`
	SamplesStored  int64 `json:"samples_stored"`
	SamplesSkipped int64 `json:"samples_skipped"`
}

// NewCorrelator 创建交易关联器
func NewCorrelator(store storage.Store, log *logger.Logger) *Correlator {
	if log == nil {
		log = logger.Default()
	}
	return &Correlator{
		store:  store,
		logger: log.Component("correlator"),
		stats:  &CorrelatorStats{},
	}
}

// ConnectorFor 查询交易所属的连接器与充电桩，未找到不是错误
func (c *Correlator) ConnectorFor(ctx context.Context, transactionID int) (int, string, bool, error) {
	connectorID, chargePointID, found, err := c.store.ConnectorForTransaction(ctx, transactionID)

	c.mutex.Lock()
	c.stats.Lookups++
	if err == nil && !found {
		c.stats.NotFound++
	}
	c.mutex.Unlock()

	return connectorID, chargePointID, found, err
}

// AttributeSamples 将一批采样归属到交易所在的连接器后写入；交易未找到或属于其他充电桩时整批跳过
func (c *Correlator) AttributeSamples(ctx context.Context, chargePointID string, transactionID int, samples []storage.MeterSample) (stored, skipped int, err error) {
	if len(samples) == 0 {
		return 0, 0, nil
	}

	connectorID, owner, found, err := c.ConnectorFor(ctx, transactionID)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		c.logger.Warnf("transaction %d not found, skipping %d meter samples from %s", transactionID, len(samples), chargePointID)
		c.record(0, len(samples))
		return 0, len(samples), nil
	}
	if owner != chargePointID {
		c.logger.Warnf("transaction %d belongs to %s, skipping %d meter samples from %s", transactionID, owner, len(samples), chargePointID)
		c.record(0, len(samples))
		return 0, len(samples), nil
	}

	txID := transactionID
	if err := c.store.AppendMeterSamples(ctx, chargePointID, connectorID, &txID, samples); err != nil {
		return 0, 0, err
	}
	c.record(len(samples), 0)
	return len(samples), 0, nil
}

func (c *Correlator) record(stored, skipped int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stats.SamplesStored += int64(stored)
	c.stats.SamplesSkipped += int64(skipped)
}

// GetStats 获取统计信息
func (c *Correlator) GetStats() CorrelatorStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return *c.stats
}
