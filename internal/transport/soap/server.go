package soap

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/protocol"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/transport"
)

const (
	faultSender   = "Sender"
	faultReceiver = "Receiver"
)

// Server 接收充电桩发起的 OCPP-S 调用
type Server struct {
	handler      transport.Handler
	serializer   *serialization.SOAPSerializer
	maxBodyBytes int64
	logger       *logger.Logger
}

// NewServer 创建SOAP服务端
func NewServer(handler transport.Handler, maxBodyBytes int64, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		handler:      handler,
		serializer:   serialization.NewSOAPSerializer(),
		maxBodyBytes: maxBodyBytes,
		logger:       log.Component("soap-server"),
	}
}

// ServeHTTP 实现 http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeFault(w, serialization.SOAPHeader{}, ocpp16.ErrorCodeFormationViolation, "request body too large or unreadable")
		return
	}

	env, err := s.serializer.Deserialize(data)
	if err != nil {
		s.logger.Warnf("Rejecting malformed SOAP request from %s: %v", r.RemoteAddr, err)
		s.writeFault(w, serialization.SOAPHeader{}, ocpp16.ErrorCodeFormationViolation, err.Error())
		return
	}
	reply := serialization.SOAPHeader{RelatesTo: env.Header.MessageID}

	if env.Fault != nil || env.IsResponse {
		s.writeFault(w, reply, ocpp16.ErrorCodeProtocolError, "expected a request body")
		return
	}
	if env.Header.ChargeBoxIdentity == "" {
		s.writeFault(w, reply, ocpp16.ErrorCodeProtocolError, "missing chargeBoxIdentity header")
		return
	}

	payload := serialization.CreatePayloadInstance(env.Action, true)
	if payload == nil {
		s.writeFault(w, reply, ocpp16.ErrorCodeNotImplemented, "action "+string(env.Action)+" is not supported by the central system")
		return
	}
	if err := s.serializer.DeserializeBody(env, payload); err != nil {
		s.writeFault(w, reply, ocpp16.ErrorCodeFormationViolation, err.Error())
		return
	}

	endpoint := env.Header.From
	if endpoint == serialization.AnonymousAddress {
		endpoint = ""
	}
	cc := transport.CallContext{
		ChargePointID:   env.Header.ChargeBoxIdentity,
		Endpoint:        endpoint,
		ProtocolVersion: protocol.OCPP16_SOAP,
		Transport:       transport.TransportSOAP,
		MessageID:       env.Header.MessageID,
		RemoteAddr:      r.RemoteAddr,
	}

	response, err := s.handler.HandleRequest(r.Context(), cc, env.Action, payload)
	if err != nil {
		code, description := ocpp16.ErrorCodeInternalError, "internal error while processing request"
		var callErr *transport.CallError
		if errors.As(err, &callErr) {
			code, description = callErr.Code, callErr.Description
		}
		s.logger.Warnf("%s from %s failed: %v", env.Action, cc.ChargePointID, err)
		s.writeFault(w, reply, code, description)
		return
	}

	reply.MessageID = "urn:uuid:" + uuid.NewString()
	reply.To = serialization.AnonymousAddress
	body, err := s.serializer.SerializeResponse(serialization.CentralSystemNamespace, reply, env.Action, response)
	if err != nil {
		s.logger.ErrorWithErr(err, "Failed to serialize SOAP response")
		s.writeFault(w, reply, ocpp16.ErrorCodeInternalError, "failed to serialize response")
		return
	}
	w.Header().Set("Content-Type", serialization.SOAPContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeFault(w http.ResponseWriter, header serialization.SOAPHeader, code ocpp16.ErrorCode, reason string) {
	faultCode, status := faultReceiver, http.StatusInternalServerError
	switch code {
	case ocpp16.ErrorCodeFormationViolation, ocpp16.ErrorCodeProtocolError,
		ocpp16.ErrorCodePropertyConstraintViolation, ocpp16.ErrorCodeTypeConstraintViolation,
		ocpp16.ErrorCodeOccurrenceConstraintViolation:
		faultCode, status = faultSender, http.StatusBadRequest
	}

	body, err := s.serializer.SerializeFault(header, serialization.SOAPFault{
		Code:    faultCode,
		Subcode: string(code),
		Reason:  reason,
	})
	if err != nil {
		http.Error(w, reason, status)
		return
	}
	w.Header().Set("Content-Type", serialization.SOAPContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
