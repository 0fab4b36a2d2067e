package protocol

import "strings"

// OCPP协议版本常量
const (
	// WebSocket子协议标识
	OCPP_VERSION_1_6 = "ocpp1.6"

	// 充电桩记录中保存的协议标识，区分JSON与SOAP两种传输
	OCPP16_JSON = "ocpp1.6J"
	OCPP16_SOAP = "ocpp1.6S"

	// 默认版本
	DEFAULT_VERSION = OCPP16_JSON
)

// 支持的协议版本列表
var SupportedVersions = []string{
	OCPP16_JSON,
	OCPP16_SOAP,
}

// 版本映射表 - 处理各种格式的版本号
var VersionMapping = map[string]string{
	"1.6":      OCPP16_JSON,
	"ocpp1.6":  OCPP16_JSON,
	"ocpp1.6j": OCPP16_JSON,
	"ocpp1.6s": OCPP16_SOAP,
}

// NormalizeVersion 规范化协议版本
func NormalizeVersion(version string) string {
	if normalized, exists := VersionMapping[strings.ToLower(strings.TrimSpace(version))]; exists {
		return normalized
	}
	return ""
}

// IsVersionSupported 检查版本是否支持
func IsVersionSupported(version string) bool {
	return NormalizeVersion(version) != ""
}

// GetSupportedVersions 获取支持的版本列表
func GetSupportedVersions() []string {
	result := make([]string, len(SupportedVersions))
	copy(result, SupportedVersions)
	return result
}
