package locallist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
)

// ErrInvalidRequest 同步请求参数错误
var ErrInvalidRequest = errors.New("locallist: invalid request")

// CommandSender 向充电桩发送一次下行调用
type CommandSender interface {
	Send(ctx context.Context, chargePointID string, action ocpp16.Action, request, response interface{}) error
}

// SyncRequest 本地授权列表同步请求
type SyncRequest struct {
	ChargePointID string
	ListVersion   int
	UpdateType    ocpp16.UpdateType
	// AddUpdate 仅差分模式使用，需要新增或更新的标签
	AddUpdate []string
	// Delete 仅差分模式使用，需要删除的标签
	Delete []string
}

// SyncResult 同步结果，重试时为第二次的应答
type SyncResult struct {
	Status      ocpp16.UpdateStatus
	Hash        *string
	ListVersion int
	UpdateType  ocpp16.UpdateType
	Retried     bool
}

// Synchronizer 本地授权列表同步
type Synchronizer struct {
	sender   CommandSender
	store    storage.Store
	strategy string
	logger   *logger.Logger
	now      func() time.Time
}

// NewSynchronizer 创建同步器，strategy 为空时按 increment 处理
func NewSynchronizer(sender CommandSender, store storage.Store, strategy string, log *logger.Logger) *Synchronizer {
	if strategy == "" {
		strategy = config.LocalListVersionIncrement
	}
	if log == nil {
		log = logger.Default()
	}
	return &Synchronizer{
		sender:   sender,
		store:    store,
		strategy: strategy,
		logger:   log.Component("locallist"),
		now:      time.Now,
	}
}

// Sync 发送 SendLocalList；差分更新被拒（Failed/VersionMismatch）时以完整列表重试一次
func (s *Synchronizer) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	if req.ListVersion < 0 {
		return nil, fmt.Errorf("%w: listVersion must not be negative", ErrInvalidRequest)
	}
	switch req.UpdateType {
	case ocpp16.UpdateTypeFull:
		if len(req.AddUpdate) > 0 || len(req.Delete) > 0 {
			return nil, fmt.Errorf("%w: full update takes no idTag lists", ErrInvalidRequest)
		}
	case ocpp16.UpdateTypeDifferential:
	default:
		return nil, fmt.Errorf("%w: unknown update type %q", ErrInvalidRequest, req.UpdateType)
	}

	payload, err := s.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.send(ctx, req.ChargePointID, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != ocpp16.UpdateStatusFailed && resp.Status != ocpp16.UpdateStatusVersionMismatch {
		return &SyncResult{Status: resp.Status, Hash: resp.Hash, ListVersion: req.ListVersion, UpdateType: req.UpdateType}, nil
	}

	version := s.retryVersion(ctx, req.ChargePointID, req.ListVersion)
	s.logger.Warnf("SendLocalList to %s answered %s, resending full list at version %d", req.ChargePointID, resp.Status, version)

	full, err := s.buildRequest(ctx, SyncRequest{
		ChargePointID: req.ChargePointID,
		ListVersion:   version,
		UpdateType:    ocpp16.UpdateTypeFull,
	})
	if err != nil {
		return nil, err
	}
	retry, err := s.send(ctx, req.ChargePointID, full)
	if err != nil {
		metrics.LocalListRetries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("full list retry: %w", err)
	}
	metrics.LocalListRetries.WithLabelValues(string(retry.Status)).Inc()

	return &SyncResult{Status: retry.Status, Hash: retry.Hash, ListVersion: version, UpdateType: ocpp16.UpdateTypeFull, Retried: true}, nil
}

func (s *Synchronizer) send(ctx context.Context, chargePointID string, payload *ocpp16.SendLocalListRequest) (*ocpp16.SendLocalListResponse, error) {
	resp := &ocpp16.SendLocalListResponse{}
	if err := s.sender.Send(ctx, chargePointID, ocpp16.ActionSendLocalList, payload, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// buildRequest 组装列表；差分模式先放删除项再放新增/更新项
func (s *Synchronizer) buildRequest(ctx context.Context, req SyncRequest) (*ocpp16.SendLocalListRequest, error) {
	out := &ocpp16.SendLocalListRequest{
		ListVersion: req.ListVersion,
		UpdateType:  req.UpdateType,
	}

	var entries []storage.LocalListEntry
	var err error
	switch req.UpdateType {
	case ocpp16.UpdateTypeFull:
		entries, err = s.store.CurrentLocalListEntries(ctx, req.ChargePointID, nil)
	case ocpp16.UpdateTypeDifferential:
		for _, tag := range req.Delete {
			out.LocalAuthorizationList = append(out.LocalAuthorizationList, ocpp16.AuthorizationData{IdTag: tag})
		}
		if len(req.AddUpdate) > 0 {
			entries, err = s.store.CurrentLocalListEntries(ctx, req.ChargePointID, req.AddUpdate)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load local list entries: %w", err)
	}

	now := s.now()
	for _, e := range entries {
		info := IdTagInfoFor(e, now)
		out.LocalAuthorizationList = append(out.LocalAuthorizationList, ocpp16.AuthorizationData{IdTag: e.IdTag, IdTagInfo: &info})
	}
	return out, nil
}

// retryVersion 计算完整列表重试使用的版本号，不低于 V+1
func (s *Synchronizer) retryVersion(ctx context.Context, chargePointID string, current int) int {
	next := current + 1
	if s.strategy != config.LocalListVersionQuery {
		return next
	}

	resp := &ocpp16.GetLocalListVersionResponse{}
	if err := s.sender.Send(ctx, chargePointID, ocpp16.ActionGetLocalListVersion, &ocpp16.GetLocalListVersionRequest{}, resp); err != nil {
		s.logger.Warnf("GetLocalListVersion on %s failed, using version %d: %v", chargePointID, next, err)
		return next
	}
	if resp.ListVersion+1 > next {
		return resp.ListVersion + 1
	}
	return next
}

// IdTagInfoFor 由本地列表数据生成授权信息
func IdTagInfoFor(e storage.LocalListEntry, now time.Time) ocpp16.IdTagInfo {
	switch {
	case e.Blocked:
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusBlocked}
	case e.ExpiryDate != nil && e.ExpiryDate.Before(now):
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusExpired}
	}

	info := ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted, ParentIdTag: e.ParentIdTag}
	if e.ExpiryDate != nil {
		info.ExpiryDate = ocpp16.NewDateTimePtr(*e.ExpiryDate)
	}
	return info
}
