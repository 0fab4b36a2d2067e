package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

// SerializationError 序列化错误
type SerializationError struct {
	Operation string
	Message   string
	Cause     error
}

// Error 实现error接口
func (e SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap 返回底层错误
func (e SerializationError) Unwrap() error {
	return e.Cause
}

// Frame OCPP-J 消息帧
type Frame struct {
	MessageType      ocpp16.MessageType
	MessageID        string
	Action           ocpp16.Action
	Payload          json.RawMessage
	ErrorCode        ocpp16.ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Serializer OCPP-J 消息序列化器
type Serializer struct{}

// NewSerializer 创建新的序列化器
func NewSerializer() *Serializer {
	return &Serializer{}
}

// SerializeCall 序列化Call帧
func (s *Serializer) SerializeCall(messageID string, action ocpp16.Action, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return s.marshal("SerializeCall", []interface{}{ocpp16.Call, messageID, action, payload})
}

// SerializeCallResult 序列化CallResult帧
func (s *Serializer) SerializeCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return s.marshal("SerializeCallResult", []interface{}{ocpp16.CallResult, messageID, payload})
}

// SerializeCallError 序列化CallError帧
func (s *Serializer) SerializeCallError(messageID string, code ocpp16.ErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = struct{}{}
	}
	return s.marshal("SerializeCallError", []interface{}{ocpp16.CallError, messageID, code, description, details})
}

func (s *Serializer) marshal(op string, message []interface{}) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, SerializationError{
			Operation: op,
			Message:   "Failed to marshal JSON",
			Cause:     err,
		}
	}
	return data, nil
}

// DeserializeMessage 反序列化OCPP-J消息帧
func (s *Serializer) DeserializeMessage(data []byte) (*Frame, error) {
	var message []json.RawMessage

	if err := json.Unmarshal(data, &message); err != nil {
		return nil, SerializationError{
			Operation: "DeserializeMessage",
			Message:   "Failed to unmarshal JSON array",
			Cause:     err,
		}
	}

	if len(message) < 3 {
		return nil, SerializationError{
			Operation: "DeserializeMessage",
			Message:   "Message array too short",
		}
	}

	frame := &Frame{}
	if err := json.Unmarshal(message[0], &frame.MessageType); err != nil {
		return nil, SerializationError{
			Operation: "DeserializeMessage",
			Message:   "Failed to parse message type",
			Cause:     err,
		}
	}

	if err := json.Unmarshal(message[1], &frame.MessageID); err != nil {
		return nil, SerializationError{
			Operation: "DeserializeMessage",
			Message:   "Failed to parse message ID",
			Cause:     err,
		}
	}

	switch frame.MessageType {
	case ocpp16.Call:
		if len(message) != 4 {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "Call message must have exactly 4 elements",
			}
		}
		if err := json.Unmarshal(message[2], &frame.Action); err != nil {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "Failed to parse action",
				Cause:     err,
			}
		}
		frame.Payload = message[3]

	case ocpp16.CallResult:
		if len(message) != 3 {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "CallResult message must have exactly 3 elements",
			}
		}
		frame.Payload = message[2]

	case ocpp16.CallError:
		if len(message) < 4 || len(message) > 5 {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "CallError message must have 4 or 5 elements",
			}
		}
		if err := json.Unmarshal(message[2], &frame.ErrorCode); err != nil {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "Failed to parse error code",
				Cause:     err,
			}
		}
		if err := json.Unmarshal(message[3], &frame.ErrorDescription); err != nil {
			return nil, SerializationError{
				Operation: "DeserializeMessage",
				Message:   "Failed to parse error description",
				Cause:     err,
			}
		}
		if len(message) == 5 {
			frame.ErrorDetails = message[4]
		}

	default:
		return nil, SerializationError{
			Operation: "DeserializeMessage",
			Message:   fmt.Sprintf("Invalid message type: %d", frame.MessageType),
		}
	}

	return frame, nil
}

// DeserializePayload 反序列化载荷到指定类型
func (s *Serializer) DeserializePayload(data []byte, target interface{}) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return SerializationError{
			Operation: "DeserializePayload",
			Message:   "Failed to unmarshal payload",
			Cause:     err,
		}
	}
	return nil
}
