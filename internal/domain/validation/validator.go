package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/protocol"
	"github.com/go-playground/validator/v10"
)

var (
	idTagPattern         = regexp.MustCompile(`^[\x20-\x7E]+$`)
	chargePointIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_.:]+$`)
)

// Validator OCPP消息验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// IsValidationError 判断错误是否来自校验
func IsValidationError(err error) bool {
	var single ValidationError
	var multi ValidationErrors
	return errors.As(err, &single) || errors.As(err, &multi)
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	// 错误中的字段名使用json名称
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 验证结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return ValidationError{
			Field:   "payload",
			Tag:     "struct",
			Value:   fmt.Sprintf("%T", s),
			Message: "Payload must be a struct",
		}
	}

	var validationErrors ValidationErrors
	var validatorErrors validator.ValidationErrors
	if errors.As(err, &validatorErrors) {
		for _, validatorError := range validatorErrors {
			validationErrors = append(validationErrors, ValidationError{
				Field:   validatorError.Field(),
				Tag:     validatorError.Tag(),
				Value:   fmt.Sprintf("%v", validatorError.Value()),
				Message: getErrorMessage(validatorError),
			})
		}
	}
	if len(validationErrors) == 0 {
		return err
	}

	return validationErrors
}

// ValidateJSON 验证JSON格式
func (v *Validator) ValidateJSON(data []byte) error {
	var temp interface{}
	return json.Unmarshal(data, &temp)
}

// ValidateOCPPMessage 验证OCPP消息格式
func (v *Validator) ValidateOCPPMessage(messageType int, messageID string, action string, payload interface{}) error {
	if messageType < int(ocpp16.Call) || messageType > int(ocpp16.CallError) {
		return ValidationError{
			Field:   "messageType",
			Tag:     "range",
			Value:   strconv.Itoa(messageType),
			Message: "Message type must be 2 (Call), 3 (CallResult), or 4 (CallError)",
		}
	}

	if messageID == "" {
		return ValidationError{
			Field:   "messageId",
			Tag:     "required",
			Value:   "",
			Message: "Message ID is required",
		}
	}

	if len(messageID) > 36 {
		return ValidationError{
			Field:   "messageId",
			Tag:     "max",
			Value:   messageID,
			Message: "Message ID must not exceed 36 characters",
		}
	}

	if messageType == int(ocpp16.Call) {
		if action == "" {
			return ValidationError{
				Field:   "action",
				Tag:     "required",
				Value:   "",
				Message: "Action is required for Call messages",
			}
		}

		if !isValidAction(action) {
			return ValidationError{
				Field:   "action",
				Tag:     "invalid",
				Value:   action,
				Message: "Invalid OCPP action",
			}
		}
	}

	if payload != nil {
		return v.ValidateStruct(payload)
	}

	return nil
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("ocpp_datetime", validateOCPPDateTime)
	validate.RegisterValidation("ocpp_id_tag", validateOCPPIdTag)
	validate.RegisterValidation("ocpp_connector_id", validateOCPPConnectorId)
	validate.RegisterValidation("ocpp_meter_value", validateOCPPMeterValue)
	validate.RegisterValidation("ocpp_status", validateOCPPStatus)
	validate.RegisterValidation("ocpp_action", func(fl validator.FieldLevel) bool {
		return isValidAction(fl.Field().String())
	})
}

// validateOCPPDateTime 验证日期时间，接受RFC3339或纯日期
func validateOCPPDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := ParseOperatorTime(value)
	return err == nil
}

// validateOCPPIdTag 验证idTag（CiString20，可打印ASCII）
func validateOCPPIdTag(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if len(value) > 20 {
		return false
	}
	return idTagPattern.MatchString(value)
}

// validateOCPPConnectorId 验证连接器ID
func validateOCPPConnectorId(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= 0
}

// validateOCPPMeterValue 验证电表值
func validateOCPPMeterValue(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// validateOCPPStatus 验证连接器状态
func validateOCPPStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	switch ocpp16.ChargePointStatus(value) {
	case ocpp16.ChargePointStatusAvailable,
		ocpp16.ChargePointStatusPreparing,
		ocpp16.ChargePointStatusCharging,
		ocpp16.ChargePointStatusSuspendedEVSE,
		ocpp16.ChargePointStatusSuspendedEV,
		ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusReserved,
		ocpp16.ChargePointStatusUnavailable,
		ocpp16.ChargePointStatusFaulted:
		return true
	}
	return false
}

var validActions = map[ocpp16.Action]bool{
	ocpp16.ActionAuthorize:                     true,
	ocpp16.ActionBootNotification:              true,
	ocpp16.ActionChangeAvailability:            true,
	ocpp16.ActionChangeConfiguration:           true,
	ocpp16.ActionClearCache:                    true,
	ocpp16.ActionDataTransfer:                  true,
	ocpp16.ActionGetConfiguration:              true,
	ocpp16.ActionHeartbeat:                     true,
	ocpp16.ActionMeterValues:                   true,
	ocpp16.ActionRemoteStartTransaction:        true,
	ocpp16.ActionRemoteStopTransaction:         true,
	ocpp16.ActionReset:                         true,
	ocpp16.ActionStartTransaction:              true,
	ocpp16.ActionStatusNotification:            true,
	ocpp16.ActionStopTransaction:               true,
	ocpp16.ActionUnlockConnector:               true,
	ocpp16.ActionGetDiagnostics:                true,
	ocpp16.ActionDiagnosticsStatusNotification: true,
	ocpp16.ActionFirmwareStatusNotification:    true,
	ocpp16.ActionUpdateFirmware:                true,
	ocpp16.ActionGetLocalListVersion:           true,
	ocpp16.ActionSendLocalList:                 true,
	ocpp16.ActionCancelReservation:             true,
	ocpp16.ActionReserveNow:                    true,
}

// isValidAction 检查是否为支持的OCPP动作
func isValidAction(action string) bool {
	return validActions[ocpp16.Action(action)]
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "url", "uri":
		return fmt.Sprintf("Field '%s' must be a valid URL", fe.Field())
	case "ocpp_datetime":
		return fmt.Sprintf("Field '%s' must be a date (2006-01-02) or RFC3339 datetime", fe.Field())
	case "ocpp_id_tag":
		return fmt.Sprintf("Field '%s' must be a valid idTag (max 20 printable characters)", fe.Field())
	case "ocpp_connector_id":
		return fmt.Sprintf("Field '%s' must be a valid connector ID (>= 0)", fe.Field())
	case "ocpp_meter_value":
		return fmt.Sprintf("Field '%s' must be a valid numeric meter value", fe.Field())
	case "ocpp_status":
		return fmt.Sprintf("Field '%s' must be a valid OCPP status", fe.Field())
	case "ocpp_action":
		return fmt.Sprintf("Field '%s' must be a supported OCPP action", fe.Field())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

// ParseOperatorTime 解析运维侧输入的时间，支持纯日期与RFC3339
func ParseOperatorTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", value)
	}
	return t.UTC(), nil
}

// ValidateMessageSize 验证消息大小
func (v *Validator) ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return ValidationError{
			Field:   "message",
			Tag:     "max_size",
			Value:   fmt.Sprintf("%d bytes", len(data)),
			Message: fmt.Sprintf("Message size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize),
		}
	}
	return nil
}

// ValidateChargePointID 验证充电桩ID
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	if chargePointID == "" {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "required",
			Value:   "",
			Message: "Charge point ID is required",
		}
	}

	if len(chargePointID) > 64 {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "max",
			Value:   chargePointID,
			Message: "Charge point ID must not exceed 64 characters",
		}
	}

	if !chargePointIDPattern.MatchString(chargePointID) {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "format",
			Value:   chargePointID,
			Message: "Charge point ID can only contain alphanumeric characters and - _ . :",
		}
	}

	return nil
}

// ValidateProtocolVersion 验证协议版本
func (v *Validator) ValidateProtocolVersion(version string) error {
	if !protocol.IsVersionSupported(version) {
		return ValidationError{
			Field:   "protocolVersion",
			Tag:     "invalid",
			Value:   version,
			Message: "Unsupported protocol version",
		}
	}
	return nil
}
