package approval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackDataRoundTrip(t *testing.T) {
	id := uuid.New()
	data := CallbackData(KindWithdrawal, Reject, id)
	assert.Equal(t, "withdrawal:reject:"+id.String(), data)

	d, err := ParseCallbackData(data)
	require.NoError(t, err)
	assert.Equal(t, Decision{Kind: KindWithdrawal, ID: id, Verdict: Reject}, d)
}

func TestParseCallbackDataRejectsGarbage(t *testing.T) {
	id := uuid.New().String()
	for _, data := range []string{
		"",
		"investment:approve",
		"payment:approve:" + id,
		"upgrade:maybe:" + id,
		"upgrade:approve:not-a-uuid",
	} {
		t.Run(data, func(t *testing.T) {
			_, err := ParseCallbackData(data)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}
