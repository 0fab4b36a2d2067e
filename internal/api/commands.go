package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/gateway"
)

const correlationHeader = "X-Correlation-ID"

// ExecuteCommand 多目标下发，返回完整结果集合
func (s *Server) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var cmd gateway.OperatorCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "command.format.not.valid", "invalid json")
		return
	}
	if cmd.Command == "" {
		writeError(w, http.StatusBadRequest, "command.format.not.valid", "missing command")
		return
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = r.Header.Get(correlationHeader)
	}

	agg, err := s.opts.Commands.Execute(r.Context(), cmd)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// ExecuteChargePointCommand 单目标下发，请求体即命令参数
func (s *Server) ExecuteChargePointCommand(w http.ResponseWriter, r *http.Request) {
	if params, ok := readParams(w, r); ok {
		s.executeSingle(w, r, chi.URLParam(r, "command"), params)
	}
}

// CreateReservation 等价于单目标 ReserveNow
func (s *Server) CreateReservation(w http.ResponseWriter, r *http.Request) {
	if params, ok := readParams(w, r); ok {
		s.executeSingle(w, r, string(ocpp16.ActionReserveNow), params)
	}
}

// CancelReservation 等价于单目标 CancelReservation
func (s *Server) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "reservationId"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "command.params.not.valid", "reservationId must be a positive integer")
		return
	}
	raw, _ := json.Marshal(gateway.CancelReservationParams{ReservationID: id})
	s.executeSingle(w, r, string(ocpp16.ActionCancelReservation), raw)
}

func (s *Server) executeSingle(w http.ResponseWriter, r *http.Request, command string, params json.RawMessage) {
	chargePointID := chi.URLParam(r, "chargePointId")
	if err := s.validator.ValidateChargePointID(chargePointID); err != nil {
		writeError(w, http.StatusBadRequest, "command.params.not.valid", err.Error())
		return
	}

	agg, err := s.opts.Commands.Execute(r.Context(), gateway.OperatorCommand{
		Command:        command,
		ChargePointIDs: []string{chargePointID},
		Params:         params,
		CorrelationID:  r.Header.Get(correlationHeader),
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}
	result, _ := agg.Get(chargePointID)
	writeJSON(w, http.StatusOK, result)
}

func readParams(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := readAll(r, maxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "command.format.not.valid", "bad body")
		return nil, false
	}
	if len(data) > 0 && !json.Valid(data) {
		writeError(w, http.StatusBadRequest, "command.format.not.valid", "invalid json")
		return nil, false
	}
	return data, true
}
