package watermark

import (
	"encoding/json"
	"time"

	"qrmark-backend/models"
)

const (
	envelopeVersion = "2.0"
	envelopeSecure  = "secure"
)

// payloadEnvelope is the QR text layout for bound payloads. Plain text
// that does not parse as a secure envelope is a legacy payload.
type payloadEnvelope struct {
	Version   string `json:"version"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	Binding   string `json:"binding"`
	CreatedAt int64  `json:"created_at"`
}

// SecureEnvelope wraps payload data and its binding token into the
// compact JSON carried by the QR symbol.
func SecureEnvelope(data, token string, now time.Time) (string, error) {
	env := payloadEnvelope{
		Version:   envelopeVersion,
		Type:      envelopeSecure,
		Data:      data,
		Binding:   token,
		CreatedAt: now.Unix(),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParsePayload splits QR text into the original payload data and its
// binding classification. Anything that is not a secure envelope is
// legacy, with no cryptographic guarantee attached.
func ParsePayload(text string) (string, models.Binding) {
	var env payloadEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && env.Type == envelopeSecure && env.Binding != "" {
		return env.Data, models.SecureBinding(env.Binding)
	}
	return text, models.LegacyBinding()
}
