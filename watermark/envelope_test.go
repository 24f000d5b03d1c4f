package watermark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrmark-backend/models"
)

func TestSecureEnvelopeRoundTrip(t *testing.T) {
	text, err := SecureEnvelope("the payload", "the-token", time.Unix(1700000000, 0))
	require.NoError(t, err)

	data, b := ParsePayload(text)
	assert.Equal(t, "the payload", data)
	assert.Equal(t, models.SecuritySecure, b.Level)
	assert.Equal(t, "the-token", b.Token)
}

func TestParsePayloadLegacy(t *testing.T) {
	for _, text := range []string{
		"plain payload text",
		`{"some":"json","but":"not a secure envelope"}`,
		`{"type":"secure","data":"x"}`, // secure shape but no token
	} {
		data, b := ParsePayload(text)
		assert.Equal(t, text, data)
		assert.Equal(t, models.SecurityLegacy, b.Level)
		assert.Empty(t, b.Token)
	}
}
