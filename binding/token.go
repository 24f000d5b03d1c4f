// Package binding issues and verifies the authenticated, time-bounded
// tokens that tie a payload to one specific document fingerprint.
package binding

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"qrmark-backend/fingerprint"
	"qrmark-backend/models"
)

const (
	// Version identifies the token wire format.
	Version = "2.0"
	// DefaultExpiry applies when the caller gives no expiry duration.
	DefaultExpiry = 24 * time.Hour
)

// tokenPayload is the canonical field set the authentication tag is
// computed over. Field order fixes the serialization.
type tokenPayload struct {
	Version       string `json:"version"`
	PayloadData   string `json:"payload_data"`
	FingerprintID string `json:"fingerprint_id"`
	ContentHash   string `json:"content_hash"`
	IssuedAt      int64  `json:"issued_at"`
	ExpiresAt     int64  `json:"expires_at"`
	SecurityLevel string `json:"security_level"`
}

// envelope wraps the serialized payload with its authentication tag.
type envelope struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Version   string `json:"version"`
}

// Authority signs and verifies binding tokens with a server-held key.
// Construct one per process and inject it; the key is read-only state.
type Authority struct {
	key []byte
	now func() time.Time
}

func NewAuthority(key []byte) (*Authority, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeyLength, len(key))
	}
	return &Authority{key: key, now: time.Now}, nil
}

// Issue builds a token binding payloadData to the fingerprint, valid
// from now until now+ttl (DefaultExpiry when ttl is zero or negative).
// The token is an immutable value from here on.
func (a *Authority) Issue(payloadData string, fp *fingerprint.Fingerprint, ttl time.Duration) (string, error) {
	if fp == nil {
		return "", fmt.Errorf("fingerprint is required")
	}
	if ttl <= 0 {
		ttl = DefaultExpiry
	}

	issued := a.now()
	payload := tokenPayload{
		Version:       Version,
		PayloadData:   payloadData,
		FingerprintID: fp.FingerprintID,
		ContentHash:   fp.ContentHash,
		IssuedAt:      issued.Unix(),
		ExpiresAt:     issued.Add(ttl).Unix(),
		SecurityLevel: string(models.SecuritySecure),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token payload: %v", err)
	}

	env := envelope{
		Payload:   base64.StdEncoding.EncodeToString(raw),
		Signature: base64.StdEncoding.EncodeToString(a.sign(raw)),
		Version:   Version,
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %v", err)
	}
	return base64.StdEncoding.EncodeToString(envJSON), nil
}

// VerificationResult reports the outcome of one verification call.
type VerificationResult struct {
	Valid         bool
	Level         models.SecurityLevel
	Reasons       []string
	PayloadData   string
	FingerprintID string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Verify checks, in order: the authentication tag in constant time, the
// expiry, the presented document's content hash against the hash
// captured at issuance, and the extracted payload against the bound
// payload. The first failure is terminal for this call and is returned
// both as a typed error and inside the result.
func (a *Authority) Verify(token string, document []byte, extractedPayload string) (*VerificationResult, error) {
	payload, raw, sig, err := decodeToken(token)
	if err != nil {
		return compromised(err), err
	}

	expected := a.sign(raw)
	if !hmac.Equal(sig, expected) {
		return compromised(ErrTokenTampered), ErrTokenTampered
	}

	res := &VerificationResult{
		PayloadData:   payload.PayloadData,
		FingerprintID: payload.FingerprintID,
		IssuedAt:      time.Unix(payload.IssuedAt, 0),
		ExpiresAt:     time.Unix(payload.ExpiresAt, 0),
	}

	if a.now().After(res.ExpiresAt) {
		res.Level = models.SecurityCompromised
		res.Reasons = []string{ErrTokenExpired.Error()}
		return res, ErrTokenExpired
	}
	if fingerprint.ContentHash(document) != payload.ContentHash {
		res.Level = models.SecurityCompromised
		res.Reasons = []string{ErrDocumentMismatch.Error()}
		return res, ErrDocumentMismatch
	}
	if extractedPayload != payload.PayloadData {
		res.Level = models.SecurityCompromised
		res.Reasons = []string{ErrPayloadMismatch.Error() + " (possibly moved to a different document)"}
		return res, ErrPayloadMismatch
	}

	res.Valid = true
	res.Level = models.SecuritySecure
	return res, nil
}

func (a *Authority) sign(message []byte) []byte {
	h := hmac.New(sha256.New, a.key)
	h.Write(message)
	return h.Sum(nil)
}

func decodeToken(token string) (*tokenPayload, []byte, []byte, error) {
	envJSON, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	var env envelope
	if err := json.Unmarshal(envJSON, &env); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad payload encoding", ErrTokenMalformed)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad signature encoding", ErrTokenMalformed)
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return &payload, raw, sig, nil
}

func compromised(err error) *VerificationResult {
	return &VerificationResult{
		Level:   models.SecurityCompromised,
		Reasons: []string{err.Error()},
	}
}
