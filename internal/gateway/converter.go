package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
)

var (
	// ErrUnknownCommand 不支持的运维命令
	ErrUnknownCommand = errors.New("gateway: unknown command")

	// ErrInvalidParams 运维命令参数错误，未发生任何网络调用
	ErrInvalidParams = errors.New("gateway: invalid command parameters")
)

var paramValidator = validation.NewValidator()

// Command 已校验、可直接下发的 OCPP 请求
type Command struct {
	Action  ocpp16.Action
	Request interface{}
}

// ChangeAvailabilityParams 运维参数
type ChangeAvailabilityParams struct {
	ConnectorID int    `json:"connectorId" validate:"min=0"`
	Type        string `json:"type" validate:"required,oneof=Inoperative Operative"`
}

// ChangeConfigurationParams 运维参数
type ChangeConfigurationParams struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=500"`
}

// GetDiagnosticsParams 运维参数，时间支持 2006-01-02 或 RFC3339
type GetDiagnosticsParams struct {
	Location      string `json:"location" validate:"required,uri"`
	Retries       *int   `json:"retries,omitempty" validate:"omitempty,min=0"`
	RetryInterval *int   `json:"retryInterval,omitempty" validate:"omitempty,min=0"`
	Start         string `json:"start,omitempty"`
	Stop          string `json:"stop,omitempty"`
}

// RemoteStartParams 运维参数，connectorId 为 0 时不下发该字段
type RemoteStartParams struct {
	ConnectorID int    `json:"connectorId" validate:"min=0"`
	IdTag       string `json:"idTag" validate:"required,max=20"`
}

// RemoteStopParams 运维参数
type RemoteStopParams struct {
	TransactionID int `json:"transactionId" validate:"gt=0"`
}

// ResetParams 运维参数
type ResetParams struct {
	Type string `json:"type" validate:"required,oneof=Hard Soft"`
}

// UnlockConnectorParams 运维参数
type UnlockConnectorParams struct {
	ConnectorID int `json:"connectorId" validate:"min=1"`
}

// UpdateFirmwareParams 运维参数
type UpdateFirmwareParams struct {
	Location      string `json:"location" validate:"required,uri"`
	Retries       *int   `json:"retries,omitempty" validate:"omitempty,min=0"`
	RetryInterval *int   `json:"retryInterval,omitempty" validate:"omitempty,min=0"`
	RetrieveDate  string `json:"retrieveDate" validate:"required"`
}

// DataTransferParams 运维参数
type DataTransferParams struct {
	VendorID  string `json:"vendorId" validate:"required,max=255"`
	MessageID string `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      string `json:"data,omitempty"`
}

// GetConfigurationParams 运维参数，keys 为空时查询全部
type GetConfigurationParams struct {
	Keys []string `json:"keys,omitempty" validate:"omitempty,dive,required,max=50"`
}

// SendLocalListParams 运维参数
type SendLocalListParams struct {
	ListVersion int      `json:"listVersion" validate:"min=0"`
	UpdateType  string   `json:"updateType" validate:"required,oneof=Full Differential"`
	AddUpdate   []string `json:"addUpdate,omitempty" validate:"omitempty,dive,required,max=20"`
	Delete      []string `json:"delete,omitempty" validate:"omitempty,dive,required,max=20"`
}

// ReserveNowParams 运维参数，connectorId 为 0 表示任意连接器
type ReserveNowParams struct {
	ConnectorID int    `json:"connectorId" validate:"min=0"`
	IdTag       string `json:"idTag" validate:"required,max=20"`
	ParentIdTag string `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Expiry      string `json:"expiry" validate:"required"`
}

// CancelReservationParams 运维参数
type CancelReservationParams struct {
	ReservationID int `json:"reservationId" validate:"gt=0"`
}

// DecodeParams 严格解析并校验运维参数
func DecodeParams(raw json.RawMessage, target interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := paramValidator.ValidateStruct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// BuildCommand 将运维参数转换为 OCPP 请求，所有校验在此完成
func BuildCommand(name string, params json.RawMessage, now time.Time) (*Command, error) {
	switch ocpp16.Action(name) {
	case ocpp16.ActionChangeAvailability:
		var p ChangeAvailabilityParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionChangeAvailability, &ocpp16.ChangeAvailabilityRequest{
			ConnectorId: p.ConnectorID,
			Type:        ocpp16.AvailabilityType(p.Type),
		}}, nil

	case ocpp16.ActionChangeConfiguration:
		var p ChangeConfigurationParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionChangeConfiguration, &ocpp16.ChangeConfigurationRequest{Key: p.Key, Value: p.Value}}, nil

	case ocpp16.ActionClearCache:
		if err := DecodeParams(params, &struct{}{}); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionClearCache, &ocpp16.ClearCacheRequest{}}, nil

	case ocpp16.ActionGetDiagnostics:
		var p GetDiagnosticsParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		req, err := buildGetDiagnostics(p, now)
		if err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionGetDiagnostics, req}, nil

	case ocpp16.ActionRemoteStartTransaction:
		var p RemoteStartParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		req := &ocpp16.RemoteStartTransactionRequest{IdTag: p.IdTag}
		if p.ConnectorID > 0 {
			connector := p.ConnectorID
			req.ConnectorId = &connector
		}
		return &Command{ocpp16.ActionRemoteStartTransaction, req}, nil

	case ocpp16.ActionRemoteStopTransaction:
		var p RemoteStopParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionRemoteStopTransaction, &ocpp16.RemoteStopTransactionRequest{TransactionId: p.TransactionID}}, nil

	case ocpp16.ActionReset:
		var p ResetParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionReset, &ocpp16.ResetRequest{Type: ocpp16.ResetType(p.Type)}}, nil

	case ocpp16.ActionUnlockConnector:
		var p UnlockConnectorParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionUnlockConnector, &ocpp16.UnlockConnectorRequest{ConnectorId: p.ConnectorID}}, nil

	case ocpp16.ActionUpdateFirmware:
		var p UpdateFirmwareParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		retrieve, err := validation.ParseOperatorTime(p.RetrieveDate)
		if err != nil {
			return nil, fmt.Errorf("%w: retrieveDate: %v", ErrInvalidParams, err)
		}
		return &Command{ocpp16.ActionUpdateFirmware, &ocpp16.UpdateFirmwareRequest{
			Location:      p.Location,
			Retries:       p.Retries,
			RetrieveDate:  ocpp16.NewDateTime(retrieve),
			RetryInterval: p.RetryInterval,
		}}, nil

	case ocpp16.ActionDataTransfer:
		var p DataTransferParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		req := &ocpp16.DataTransferRequest{VendorId: p.VendorID}
		if p.MessageID != "" {
			req.MessageId = &p.MessageID
		}
		if p.Data != "" {
			req.Data = &p.Data
		}
		return &Command{ocpp16.ActionDataTransfer, req}, nil

	case ocpp16.ActionGetConfiguration:
		var p GetConfigurationParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionGetConfiguration, &ocpp16.GetConfigurationRequest{Key: p.Keys}}, nil

	case ocpp16.ActionGetLocalListVersion:
		if err := DecodeParams(params, &struct{}{}); err != nil {
			return nil, err
		}
		return &Command{ocpp16.ActionGetLocalListVersion, &ocpp16.GetLocalListVersionRequest{}}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// buildGetDiagnostics 校验时间窗口：开始与结束都必须早于当前时间，且开始早于结束
func buildGetDiagnostics(p GetDiagnosticsParams, now time.Time) (*ocpp16.GetDiagnosticsRequest, error) {
	req := &ocpp16.GetDiagnosticsRequest{
		Location:      p.Location,
		Retries:       p.Retries,
		RetryInterval: p.RetryInterval,
	}

	var start, stop time.Time
	var err error
	if p.Start != "" {
		if start, err = validation.ParseOperatorTime(p.Start); err != nil {
			return nil, fmt.Errorf("%w: start: %v", ErrInvalidParams, err)
		}
		if !start.Before(now) {
			return nil, fmt.Errorf("%w: start time must be in the past", ErrInvalidParams)
		}
		req.StartTime = ocpp16.NewDateTimePtr(start)
	}
	if p.Stop != "" {
		if stop, err = validation.ParseOperatorTime(p.Stop); err != nil {
			return nil, fmt.Errorf("%w: stop: %v", ErrInvalidParams, err)
		}
		if !stop.Before(now) {
			return nil, fmt.Errorf("%w: stop time must be in the past", ErrInvalidParams)
		}
		req.StopTime = ocpp16.NewDateTimePtr(stop)
	}
	if p.Start != "" && p.Stop != "" && !start.Before(stop) {
		return nil, fmt.Errorf("%w: start time must be before stop time", ErrInvalidParams)
	}
	return req, nil
}

// OutcomeOf 将充电桩应答归一化为结果文本
func OutcomeOf(action ocpp16.Action, response interface{}) string {
	switch r := response.(type) {
	case *ocpp16.ChangeAvailabilityResponse:
		return string(r.Status)
	case *ocpp16.ChangeConfigurationResponse:
		return string(r.Status)
	case *ocpp16.ClearCacheResponse:
		return string(r.Status)
	case *ocpp16.RemoteStartTransactionResponse:
		return string(r.Status)
	case *ocpp16.RemoteStopTransactionResponse:
		return string(r.Status)
	case *ocpp16.ResetResponse:
		return string(r.Status)
	case *ocpp16.UnlockConnectorResponse:
		return string(r.Status)
	case *ocpp16.ReserveNowResponse:
		return string(r.Status)
	case *ocpp16.CancelReservationResponse:
		return string(r.Status)
	case *ocpp16.UpdateFirmwareResponse:
		return "OK"
	case *ocpp16.GetDiagnosticsResponse:
		if r.FileName == nil {
			return "No diagnostics file"
		}
		return *r.FileName
	case *ocpp16.GetLocalListVersionResponse:
		return strconv.Itoa(r.ListVersion)
	case *ocpp16.SendLocalListResponse:
		if r.Hash != nil {
			return fmt.Sprintf("%s (hash: %s)", r.Status, *r.Hash)
		}
		return string(r.Status)
	case *ocpp16.DataTransferResponse:
		if r.Data != nil {
			return fmt.Sprintf("%s / Data: %s", r.Status, *r.Data)
		}
		return string(r.Status)
	case *ocpp16.GetConfigurationResponse:
		return configurationListing(r)
	}
	return fmt.Sprintf("%s: unexpected response %T", action, response)
}

func configurationListing(r *ocpp16.GetConfigurationResponse) string {
	var b strings.Builder
	for _, kv := range r.ConfigurationKey {
		value := "NOT_SET"
		if kv.Value != nil {
			value = *kv.Value
		}
		fmt.Fprintf(&b, "+ %s (read-only:%t) : %s\n", kv.Key, kv.Readonly, value)
	}
	if len(r.UnknownKey) > 0 {
		fmt.Fprintf(&b, "Unknown keys: %s", strings.Join(r.UnknownKey, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
