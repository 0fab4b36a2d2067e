package ocpp16

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/transport"
)

func (p *Processor) handleBootNotification(ctx context.Context, cc transport.CallContext, req *ocpp16.BootNotificationRequest) (*ocpp16.BootNotificationResponse, error) {
	now := p.now()
	device := storage.DeviceInfo{
		Vendor:                  req.ChargePointVendor,
		Model:                   req.ChargePointModel,
		ChargePointSerialNumber: req.ChargePointSerialNumber,
		ChargeBoxSerialNumber:   req.ChargeBoxSerialNumber,
		FirmwareVersion:         req.FirmwareVersion,
		Iccid:                   req.Iccid,
		Imsi:                    req.Imsi,
		MeterType:               req.MeterType,
		MeterSerialNumber:       req.MeterSerialNumber,
	}

	status := ocpp16.RegistrationStatusAccepted
	ok, err := p.store.UpsertChargePoint(ctx, cc.ChargePointID, cc.Endpoint, cc.ProtocolVersion, device, now)
	switch {
	case err != nil:
		p.logger.Errorf("Failed to register charge point %s: %v", cc.ChargePointID, err)
		status = ocpp16.RegistrationStatusRejected
	case !ok:
		p.logger.Warnf("Registration of charge point %s was not accepted by the store", cc.ChargePointID)
		status = ocpp16.RegistrationStatusRejected
	case p.endpoints != nil && cc.Endpoint != "":
		if err := p.endpoints.RecordEndpoint(ctx, cc.ChargePointID, cc.Endpoint); err != nil {
			p.logger.Warnf("Failed to record endpoint for %s: %v", cc.ChargePointID, err)
		}
	}

	interval := int(p.config.HeartbeatInterval / time.Second)
	p.logger.Infof("BootNotification from %s (%s %s): %s", cc.ChargePointID, req.ChargePointVendor, req.ChargePointModel, status)

	serial := req.ChargePointSerialNumber
	if serial == nil {
		serial = req.ChargeBoxSerialNumber
	}
	info := events.ChargePointInfo{
		ID:              cc.ChargePointID,
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		SerialNumber:    serial,
		FirmwareVersion: req.FirmwareVersion,
		Endpoint:        cc.Endpoint,
		LastSeen:        now.UTC(),
		ProtocolVersion: cc.ProtocolVersion,
	}
	p.emit(p.eventFactory.CreateChargePointRegisteredEvent(info, string(status), interval, p.metadata(cc)))

	return &ocpp16.BootNotificationResponse{
		Status:      status,
		CurrentTime: ocpp16.NewDateTime(now),
		Interval:    interval,
	}, nil
}

func (p *Processor) handleHeartbeat(ctx context.Context, cc transport.CallContext) (*ocpp16.HeartbeatResponse, error) {
	now := p.now()
	if err := p.store.UpdateHeartbeat(ctx, cc.ChargePointID, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.logger.Warnf("Heartbeat from unregistered charge point %s", cc.ChargePointID)
		} else {
			p.logger.Errorf("Failed to update heartbeat for %s: %v", cc.ChargePointID, err)
		}
	}

	p.emit(p.eventFactory.CreateHeartbeatEvent(cc.ChargePointID, p.metadata(cc)))
	return &ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(now)}, nil
}

func (p *Processor) handleStatusNotification(ctx context.Context, cc transport.CallContext, req *ocpp16.StatusNotificationRequest) (*ocpp16.StatusNotificationResponse, error) {
	ts := p.now()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.Time
	}

	status := storage.ConnectorStatus{
		ChargePointID:   cc.ChargePointID,
		ConnectorID:     req.ConnectorId,
		Status:          string(req.Status),
		ErrorCode:       string(req.ErrorCode),
		Info:            req.Info,
		VendorID:        req.VendorId,
		VendorErrorCode: req.VendorErrorCode,
		Timestamp:       ts,
	}
	if err := p.store.UpsertConnectorStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("store connector status: %w", err)
	}

	p.emit(p.eventFactory.CreateConnectorStatusChangedEvent(events.ConnectorInfo{
		ID:              req.ConnectorId,
		ChargePointID:   cc.ChargePointID,
		Status:          string(req.Status),
		ErrorCode:       string(req.ErrorCode),
		Info:            req.Info,
		VendorID:        req.VendorId,
		VendorErrorCode: req.VendorErrorCode,
		Timestamp:       ts.UTC(),
	}, p.metadata(cc)))

	return &ocpp16.StatusNotificationResponse{}, nil
}

func (p *Processor) handleMeterValues(ctx context.Context, cc transport.CallContext, req *ocpp16.MeterValuesRequest) (*ocpp16.MeterValuesResponse, error) {
	samples := toSamples(req.MeterValue)
	if len(samples) == 0 {
		return &ocpp16.MeterValuesResponse{}, nil
	}

	if err := p.store.AppendMeterSamples(ctx, cc.ChargePointID, req.ConnectorId, req.TransactionId, samples); err != nil {
		return nil, fmt.Errorf("store meter values: %w", err)
	}

	p.emit(p.eventFactory.CreateMeterValuesReceivedEvent(cc.ChargePointID, req.ConnectorId, req.TransactionId, toEventValues(samples), p.metadata(cc)))
	return &ocpp16.MeterValuesResponse{}, nil
}

func (p *Processor) handleAuthorize(ctx context.Context, cc transport.CallContext, req *ocpp16.AuthorizeRequest) (*ocpp16.AuthorizeResponse, error) {
	info, err := p.evaluateIdTag(ctx, cc, req.IdTag, ocpp16.ActionAuthorize)
	if err != nil {
		return nil, fmt.Errorf("evaluate idTag: %w", err)
	}
	return &ocpp16.AuthorizeResponse{IdTagInfo: info}, nil
}

func (p *Processor) handleStartTransaction(ctx context.Context, cc transport.CallContext, req *ocpp16.StartTransactionRequest) (*ocpp16.StartTransactionResponse, error) {
	info, err := p.evaluateIdTag(ctx, cc, req.IdTag, ocpp16.ActionStartTransaction)
	if err != nil {
		return nil, fmt.Errorf("evaluate idTag: %w", err)
	}

	resp := &ocpp16.StartTransactionResponse{IdTagInfo: info}
	if info.Status != ocpp16.AuthorizationStatusAccepted {
		p.logger.Infof("StartTransaction from %s connector %d refused: idTag %s is %s", cc.ChargePointID, req.ConnectorId, req.IdTag, info.Status)
		return resp, nil
	}

	start := req.Timestamp.Time
	id, err := p.store.InsertTransaction(ctx, cc.ChargePointID, req.ConnectorId, req.IdTag, start, req.MeterStart, req.ReservationId)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	resp.TransactionId = &id

	p.logger.Infof("Transaction %d started on %s connector %d", id, cc.ChargePointID, req.ConnectorId)
	meterStart := req.MeterStart
	startUTC := start.UTC()
	p.emit(p.eventFactory.CreateTransactionStartedEvent(events.TransactionInfo{
		ID:            id,
		ChargePointID: cc.ChargePointID,
		ConnectorID:   req.ConnectorId,
		IdTag:         req.IdTag,
		StartTime:     &startUTC,
		MeterStart:    &meterStart,
		ReservationID: req.ReservationId,
	}, authorizationInfo(req.IdTag, info, ocpp16.ActionStartTransaction), p.metadata(cc)))

	return resp, nil
}

func (p *Processor) handleStopTransaction(ctx context.Context, cc transport.CallContext, req *ocpp16.StopTransactionRequest) (*ocpp16.StopTransactionResponse, error) {
	stop := req.Timestamp.Time
	err := p.store.CloseTransaction(ctx, req.TransactionId, stop, req.MeterStop)
	// 应答丢失后充电桩会重发，重复的停止不再写入采样与事件
	duplicate := errors.Is(err, storage.ErrTransactionClosed)
	switch {
	case duplicate:
		p.logger.Warnf("Transaction %d from %s already stopped, keeping first stop values", req.TransactionId, cc.ChargePointID)
	case errors.Is(err, storage.ErrNotFound):
		p.logger.Warnf("StopTransaction from %s for unknown transaction %d", cc.ChargePointID, req.TransactionId)
	case err != nil:
		return nil, fmt.Errorf("close transaction: %w", err)
	}

	var stored, skipped int
	if !duplicate {
		stored, skipped = p.attributeTransactionData(ctx, cc, req)
	}

	resp := &ocpp16.StopTransactionResponse{}
	var idTag string
	if req.IdTag != nil && *req.IdTag != "" {
		idTag = *req.IdTag
		info, err := p.evaluateIdTag(ctx, cc, idTag, ocpp16.ActionStopTransaction)
		if err != nil {
			return nil, fmt.Errorf("evaluate idTag: %w", err)
		}
		resp.IdTagInfo = &info
	}
	if duplicate {
		return resp, nil
	}

	meterStop := req.MeterStop
	stopUTC := stop.UTC()
	txInfo := events.TransactionInfo{
		ID:            req.TransactionId,
		ChargePointID: cc.ChargePointID,
		IdTag:         idTag,
		EndTime:       &stopUTC,
		MeterStop:     &meterStop,
	}
	if req.Reason != nil {
		reason := string(*req.Reason)
		txInfo.StopReason = &reason
	}
	if connectorID, _, found, err := p.correlator.ConnectorFor(ctx, req.TransactionId); err == nil && found {
		txInfo.ConnectorID = connectorID
	}
	p.emit(p.eventFactory.CreateTransactionStoppedEvent(txInfo, stored, skipped, p.metadata(cc)))

	return resp, nil
}

// attributeTransactionData 逐批写入 StopTransaction 附带的采样
func (p *Processor) attributeTransactionData(ctx context.Context, cc transport.CallContext, req *ocpp16.StopTransactionRequest) (stored, skipped int) {
	for _, mv := range req.TransactionData {
		s, k, err := p.correlator.AttributeSamples(ctx, cc.ChargePointID, req.TransactionId, toSamples([]ocpp16.MeterValue{mv}))
		if err != nil {
			p.logger.Errorf("Failed to store transaction data for %d: %v", req.TransactionId, err)
			skipped += len(mv.SampledValue)
			continue
		}
		stored += s
		skipped += k
	}
	return stored, skipped
}

func (p *Processor) handleFirmwareStatusNotification(ctx context.Context, cc transport.CallContext, req *ocpp16.FirmwareStatusNotificationRequest) (*ocpp16.FirmwareStatusNotificationResponse, error) {
	if err := p.store.UpdateFirmwareStatus(ctx, cc.ChargePointID, string(req.Status)); err != nil {
		p.logger.Warnf("Failed to update firmware status for %s: %v", cc.ChargePointID, err)
	}
	p.emit(p.eventFactory.CreateFirmwareStatusEvent(cc.ChargePointID, string(req.Status), p.metadata(cc)))
	return &ocpp16.FirmwareStatusNotificationResponse{}, nil
}

func (p *Processor) handleDiagnosticsStatusNotification(ctx context.Context, cc transport.CallContext, req *ocpp16.DiagnosticsStatusNotificationRequest) (*ocpp16.DiagnosticsStatusNotificationResponse, error) {
	if err := p.store.UpdateDiagnosticsStatus(ctx, cc.ChargePointID, string(req.Status)); err != nil {
		p.logger.Warnf("Failed to update diagnostics status for %s: %v", cc.ChargePointID, err)
	}
	p.emit(p.eventFactory.CreateDiagnosticsStatusEvent(cc.ChargePointID, string(req.Status), p.metadata(cc)))
	return &ocpp16.DiagnosticsStatusNotificationResponse{}, nil
}

// handleDataTransfer 不支持厂商扩展，统一应答 UnknownVendorId
func (p *Processor) handleDataTransfer(ctx context.Context, cc transport.CallContext, req *ocpp16.DataTransferRequest) (*ocpp16.DataTransferResponse, error) {
	status := ocpp16.DataTransferStatusUnknownVendorId
	p.logger.Infof("DataTransfer from %s for vendor %s: %s", cc.ChargePointID, req.VendorId, status)

	p.emit(p.eventFactory.CreateDataTransferReceivedEvent(cc.ChargePointID, events.DataTransferInfo{
		VendorID:  req.VendorId,
		MessageID: req.MessageId,
		Data:      req.Data,
		Status:    string(status),
	}, p.metadata(cc)))

	return &ocpp16.DataTransferResponse{Status: status}, nil
}

// toSamples 展开采样，每个采样继承所在 MeterValue 的时间戳
func toSamples(values []ocpp16.MeterValue) []storage.MeterSample {
	var samples []storage.MeterSample
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			samples = append(samples, storage.MeterSample{
				Timestamp: mv.Timestamp.Time,
				Value:     sv.Value,
				Context:   stringOf(sv.Context),
				Format:    stringOf(sv.Format),
				Measurand: stringOf(sv.Measurand),
				Phase:     stringOf(sv.Phase),
				Location:  stringOf(sv.Location),
				Unit:      stringOf(sv.Unit),
			})
		}
	}
	return samples
}

func toEventValues(samples []storage.MeterSample) []events.MeterValue {
	values := make([]events.MeterValue, 0, len(samples))
	for _, s := range samples {
		values = append(values, events.MeterValue{
			Measurand: s.Measurand,
			Value:     s.Value,
			Unit:      s.Unit,
			Phase:     s.Phase,
			Location:  s.Location,
			Context:   s.Context,
			Timestamp: s.Timestamp.UTC(),
		})
	}
	return values
}

func stringOf[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
