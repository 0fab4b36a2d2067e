package serialization

import (
	"reflect"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

type payloadPair struct {
	request  reflect.Type
	response reflect.Type
}

func pair(req, resp interface{}) payloadPair {
	return payloadPair{request: reflect.TypeOf(req), response: reflect.TypeOf(resp)}
}

var payloadTypes = map[ocpp16.Action]payloadPair{
	// 充电桩发起
	ocpp16.ActionBootNotification:              pair(ocpp16.BootNotificationRequest{}, ocpp16.BootNotificationResponse{}),
	ocpp16.ActionHeartbeat:                     pair(ocpp16.HeartbeatRequest{}, ocpp16.HeartbeatResponse{}),
	ocpp16.ActionStatusNotification:            pair(ocpp16.StatusNotificationRequest{}, ocpp16.StatusNotificationResponse{}),
	ocpp16.ActionAuthorize:                     pair(ocpp16.AuthorizeRequest{}, ocpp16.AuthorizeResponse{}),
	ocpp16.ActionStartTransaction:              pair(ocpp16.StartTransactionRequest{}, ocpp16.StartTransactionResponse{}),
	ocpp16.ActionStopTransaction:               pair(ocpp16.StopTransactionRequest{}, ocpp16.StopTransactionResponse{}),
	ocpp16.ActionMeterValues:                   pair(ocpp16.MeterValuesRequest{}, ocpp16.MeterValuesResponse{}),
	ocpp16.ActionFirmwareStatusNotification:    pair(ocpp16.FirmwareStatusNotificationRequest{}, ocpp16.FirmwareStatusNotificationResponse{}),
	ocpp16.ActionDiagnosticsStatusNotification: pair(ocpp16.DiagnosticsStatusNotificationRequest{}, ocpp16.DiagnosticsStatusNotificationResponse{}),
	ocpp16.ActionDataTransfer:                  pair(ocpp16.DataTransferRequest{}, ocpp16.DataTransferResponse{}),

	// 中心系统发起
	ocpp16.ActionReset:                  pair(ocpp16.ResetRequest{}, ocpp16.ResetResponse{}),
	ocpp16.ActionChangeAvailability:     pair(ocpp16.ChangeAvailabilityRequest{}, ocpp16.ChangeAvailabilityResponse{}),
	ocpp16.ActionGetConfiguration:       pair(ocpp16.GetConfigurationRequest{}, ocpp16.GetConfigurationResponse{}),
	ocpp16.ActionChangeConfiguration:    pair(ocpp16.ChangeConfigurationRequest{}, ocpp16.ChangeConfigurationResponse{}),
	ocpp16.ActionClearCache:             pair(ocpp16.ClearCacheRequest{}, ocpp16.ClearCacheResponse{}),
	ocpp16.ActionUnlockConnector:        pair(ocpp16.UnlockConnectorRequest{}, ocpp16.UnlockConnectorResponse{}),
	ocpp16.ActionRemoteStartTransaction: pair(ocpp16.RemoteStartTransactionRequest{}, ocpp16.RemoteStartTransactionResponse{}),
	ocpp16.ActionRemoteStopTransaction:  pair(ocpp16.RemoteStopTransactionRequest{}, ocpp16.RemoteStopTransactionResponse{}),
	ocpp16.ActionGetDiagnostics:         pair(ocpp16.GetDiagnosticsRequest{}, ocpp16.GetDiagnosticsResponse{}),
	ocpp16.ActionUpdateFirmware:         pair(ocpp16.UpdateFirmwareRequest{}, ocpp16.UpdateFirmwareResponse{}),
	ocpp16.ActionGetLocalListVersion:    pair(ocpp16.GetLocalListVersionRequest{}, ocpp16.GetLocalListVersionResponse{}),
	ocpp16.ActionSendLocalList:          pair(ocpp16.SendLocalListRequest{}, ocpp16.SendLocalListResponse{}),
	ocpp16.ActionReserveNow:             pair(ocpp16.ReserveNowRequest{}, ocpp16.ReserveNowResponse{}),
	ocpp16.ActionCancelReservation:      pair(ocpp16.CancelReservationRequest{}, ocpp16.CancelReservationResponse{}),
}

// GetPayloadType 根据action获取对应的payload类型
func GetPayloadType(action ocpp16.Action, isRequest bool) reflect.Type {
	p, ok := payloadTypes[action]
	if !ok {
		return nil
	}
	if isRequest {
		return p.request
	}
	return p.response
}

// CreatePayloadInstance 创建payload实例（指针）
func CreatePayloadInstance(action ocpp16.Action, isRequest bool) interface{} {
	payloadType := GetPayloadType(action, isRequest)
	if payloadType == nil {
		return nil
	}
	return reflect.New(payloadType).Interface()
}
