package validation

import (
	"testing"

	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stretchr/testify/assert"
)

const (
	tronAddr = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"
	evmAddr  = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		address string
		want    Network
		wantErr bool
	}{
		{"tron", tronAddr, NetworkTRC20, false},
		{"tron with whitespace", "  " + tronAddr + "\n", NetworkTRC20, false},
		{"evm", evmAddr, NetworkEVM, false},
		{"evm lowercase", "0x52908400098527886e0f7030069857d2e4169ee7", NetworkEVM, false},
		{"empty", "", "", true},
		{"tron too short", "TQn9Y2khEsLJW1ChVWFMSMeRDow5Kcb", "", true},
		{"tron with zero", "T0n9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", "", true},
		{"evm without prefix", "52908400098527886E0F7030069857D2E4169EE7", "", true},
		{"evm too short", "0x5290840009852788", "", true},
		{"garbage", "not-an-address", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.address)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatorRestrictedToTron(t *testing.T) {
	v := NewValidator(NetworkTRC20)

	_, err := v.Validate(evmAddr)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := v.Validate(tronAddr)
	assert.NoError(t, err)
	assert.Equal(t, NetworkTRC20, got)
}
