package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ocpp1.6", OCPP16_JSON},
		{"OCPP1.6", OCPP16_JSON},
		{"1.6", OCPP16_JSON},
		{"ocpp1.6S", OCPP16_SOAP},
		{" ocpp1.6J ", OCPP16_JSON},
		{"ocpp2.0.1", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVersion(tt.input))
			assert.Equal(t, tt.want != "", IsVersionSupported(tt.input))
		})
	}
}

func TestGetSupportedVersions_ReturnsCopy(t *testing.T) {
	versions := GetSupportedVersions()
	versions[0] = "mutated"

	assert.Equal(t, OCPP16_JSON, SupportedVersions[0])
}
