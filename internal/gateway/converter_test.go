package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

var buildNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func stringPtr(s string) *string {
	return &s
}

func TestBuildCommand_Valid(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		action  ocpp16.Action
		request interface{}
	}{
		{"ChangeAvailability", `{"connectorId":0,"type":"Inoperative"}`, ocpp16.ActionChangeAvailability,
			&ocpp16.ChangeAvailabilityRequest{ConnectorId: 0, Type: ocpp16.AvailabilityTypeInoperative}},
		{"ChangeConfiguration", `{"key":"HeartbeatInterval","value":"60"}`, ocpp16.ActionChangeConfiguration,
			&ocpp16.ChangeConfigurationRequest{Key: "HeartbeatInterval", Value: "60"}},
		{"ClearCache", ``, ocpp16.ActionClearCache, &ocpp16.ClearCacheRequest{}},
		{"RemoteStartTransaction", `{"connectorId":2,"idTag":"TAG1"}`, ocpp16.ActionRemoteStartTransaction,
			&ocpp16.RemoteStartTransactionRequest{ConnectorId: func() *int { v := 2; return &v }(), IdTag: "TAG1"}},
		{"RemoteStopTransaction", `{"transactionId":17}`, ocpp16.ActionRemoteStopTransaction,
			&ocpp16.RemoteStopTransactionRequest{TransactionId: 17}},
		{"Reset", `{"type":"Soft"}`, ocpp16.ActionReset, &ocpp16.ResetRequest{Type: ocpp16.ResetTypeSoft}},
		{"UnlockConnector", `{"connectorId":1}`, ocpp16.ActionUnlockConnector, &ocpp16.UnlockConnectorRequest{ConnectorId: 1}},
		{"DataTransfer", `{"vendorId":"com.acme","data":"x"}`, ocpp16.ActionDataTransfer,
			&ocpp16.DataTransferRequest{VendorId: "com.acme", Data: stringPtr("x")}},
		{"GetConfiguration", `{"keys":["A","B"]}`, ocpp16.ActionGetConfiguration,
			&ocpp16.GetConfigurationRequest{Key: []string{"A", "B"}}},
		{"GetLocalListVersion", `{}`, ocpp16.ActionGetLocalListVersion, &ocpp16.GetLocalListVersionRequest{}},
		{"UpdateFirmware", `{"location":"ftp://fw.example.com/v2.bin","retrieveDate":"2024-06-02"}`, ocpp16.ActionUpdateFirmware,
			&ocpp16.UpdateFirmwareRequest{Location: "ftp://fw.example.com/v2.bin", RetrieveDate: ocpp16.NewDateTime(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := BuildCommand(tt.name, json.RawMessage(tt.params), buildNow)
			require.NoError(t, err)
			assert.Equal(t, tt.action, cmd.Action)
			assert.Equal(t, tt.request, cmd.Request)
		})
	}
}

func TestBuildCommand_RemoteStartAnyConnectorOmitsField(t *testing.T) {
	cmd, err := BuildCommand("RemoteStartTransaction", json.RawMessage(`{"connectorId":0,"idTag":"TAG1"}`), buildNow)
	require.NoError(t, err)

	req := cmd.Request.(*ocpp16.RemoteStartTransactionRequest)
	assert.Nil(t, req.ConnectorId)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "connectorId")
}

func TestBuildCommand_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  string
	}{
		{"bad availability type", "ChangeAvailability", `{"connectorId":1,"type":"Maybe"}`},
		{"missing key", "ChangeConfiguration", `{"value":"1"}`},
		{"unknown field", "Reset", `{"type":"Hard","force":true}`},
		{"not json", "Reset", `{type`},
		{"unlock connector zero", "UnlockConnector", `{"connectorId":0}`},
		{"idTag too long", "RemoteStartTransaction", `{"idTag":"ABCDEFGHIJKLMNOPQRSTUVWXYZ"}`},
		{"stop transaction zero", "RemoteStopTransaction", `{}`},
		{"firmware bad date", "UpdateFirmware", `{"location":"ftp://x/y","retrieveDate":"tomorrow"}`},
		{"clear cache takes nothing", "ClearCache", `{"all":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCommand(tt.command, json.RawMessage(tt.params), buildNow)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}

	_, err := BuildCommand("Teleport", nil, buildNow)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestBuildCommand_GetDiagnosticsTimeWindow(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		wantErr bool
	}{
		{"no window", `{"location":"ftp://logs.example.com/"}`, false},
		{"both past and ordered", `{"location":"ftp://logs.example.com/","start":"2000-01-01","stop":"2000-01-02"}`, false},
		{"rfc3339 accepted", `{"location":"ftp://logs.example.com/","start":"2024-05-31T08:00:00Z"}`, false},
		{"stop in the future", `{"location":"ftp://logs.example.com/","stop":"2030-01-01"}`, true},
		{"start in the future", `{"location":"ftp://logs.example.com/","start":"2030-01-01"}`, true},
		{"start after stop", `{"location":"ftp://logs.example.com/","start":"2000-01-02","stop":"2000-01-01"}`, true},
		{"start equal to stop", `{"location":"ftp://logs.example.com/","start":"2000-01-01","stop":"2000-01-01"}`, true},
		{"bad location", `{"location":"not a uri"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := BuildCommand("GetDiagnostics", json.RawMessage(tt.params), buildNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
				assert.Nil(t, cmd)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ocpp16.ActionGetDiagnostics, cmd.Action)
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	hash := "abc123"
	tests := []struct {
		name     string
		action   ocpp16.Action
		response interface{}
		want     string
	}{
		{"status", ocpp16.ActionReset, &ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}, "Accepted"},
		{"firmware", ocpp16.ActionUpdateFirmware, &ocpp16.UpdateFirmwareResponse{}, "OK"},
		{"diagnostics file", ocpp16.ActionGetDiagnostics, &ocpp16.GetDiagnosticsResponse{FileName: stringPtr("diag.zip")}, "diag.zip"},
		{"list version", ocpp16.ActionGetLocalListVersion, &ocpp16.GetLocalListVersionResponse{ListVersion: 12}, "12"},
		{"list hash", ocpp16.ActionSendLocalList, &ocpp16.SendLocalListResponse{Status: ocpp16.UpdateStatusAccepted, Hash: &hash}, "Accepted (hash: abc123)"},
		{"data transfer", ocpp16.ActionDataTransfer, &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusAccepted, Data: stringPtr("pong")}, "Accepted / Data: pong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.action, tt.response))
		})
	}
}

func TestOutcomeOf_GetConfiguration(t *testing.T) {
	resp := &ocpp16.GetConfigurationResponse{
		ConfigurationKey: []ocpp16.KeyValue{
			{Key: "HeartbeatInterval", Readonly: false, Value: stringPtr("300")},
			{Key: "ChargeProfileMaxStackLevel", Readonly: true},
		},
		UnknownKey: []string{"Foo", "Bar"},
	}

	want := "+ HeartbeatInterval (read-only:false) : 300\n" +
		"+ ChargeProfileMaxStackLevel (read-only:true) : NOT_SET\n" +
		"Unknown keys: Foo, Bar"
	assert.Equal(t, want, OutcomeOf(ocpp16.ActionGetConfiguration, resp))
}
