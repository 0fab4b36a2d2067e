package ocpp16

import (
	"context"
	"time"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport"
)

// DecideIdTag 根据标签记录判定授权结果
//
// 优先级：未知 > 交易中 > 已封禁 > 已过期 > 通过。
func DecideIdTag(record *storage.IdTagRecord, now time.Time, validity time.Duration) ocpp16.IdTagInfo {
	switch {
	case record == nil:
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusInvalid}
	case record.InTransaction:
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusConcurrentTx}
	case record.Blocked:
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusBlocked}
	case record.ExpiryDate != nil && record.ExpiryDate.Before(now):
		return ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusExpired}
	default:
		return ocpp16.IdTagInfo{
			Status:      ocpp16.AuthorizationStatusAccepted,
			ExpiryDate:  ocpp16.NewDateTimePtr(now.Add(validity)),
			ParentIdTag: record.ParentIdTag,
		}
	}
}

// evaluateIdTag 查询标签并判定，存储故障以错误返回而不是授权结果
func (p *Processor) evaluateIdTag(ctx context.Context, cc transport.CallContext, idTag string, trigger ocpp16.Action) (ocpp16.IdTagInfo, error) {
	record, err := p.store.GetIdTagRecord(ctx, idTag)
	if err != nil {
		return ocpp16.IdTagInfo{}, err
	}

	info := DecideIdTag(record, p.now(), p.config.IdTagValidity)
	metrics.AuthorizationDecisions.WithLabelValues(string(info.Status)).Inc()

	p.logger.Debugf("idTag %s from %s (%s): %s", idTag, cc.ChargePointID, trigger, info.Status)
	p.emit(p.eventFactory.CreateAuthorizationDecidedEvent(cc.ChargePointID, authorizationInfo(idTag, info, trigger), p.metadata(cc)))
	return info, nil
}

func authorizationInfo(idTag string, info ocpp16.IdTagInfo, trigger ocpp16.Action) events.AuthorizationInfo {
	auth := events.AuthorizationInfo{
		IdTag:       idTag,
		Result:      string(info.Status),
		ParentIdTag: info.ParentIdTag,
		Trigger:     string(trigger),
	}
	if info.ExpiryDate != nil {
		expiry := info.ExpiryDate.Time
		auth.ExpiryDate = &expiry
	}
	return auth
}
