// Package models contain needed models
package models

// SecurityLevel classifies a payload's binding state.
type SecurityLevel string

const (
	SecurityLegacy      SecurityLevel = "legacy"
	SecuritySecure      SecurityLevel = "secure"
	SecurityCompromised SecurityLevel = "compromised"
)

// Binding is the closed classification of how a payload relates to a
// document. Token is set for secure bindings, Reason for compromised
// ones; a legacy binding carries neither.
type Binding struct {
	Level  SecurityLevel `json:"level"`
	Token  string        `json:"token,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

func LegacyBinding() Binding {
	return Binding{Level: SecurityLegacy}
}

func SecureBinding(token string) Binding {
	return Binding{Level: SecuritySecure, Token: token}
}

func CompromisedBinding(reason string) Binding {
	return Binding{Level: SecurityCompromised, Reason: reason}
}

// DocumentMetadata is the structural metadata supplied by the
// document-parsing collaborator alongside the raw document bytes.
type DocumentMetadata struct {
	Type           string `json:"type"`
	ParagraphCount int    `json:"paragraph_count"`
	ImageCount     int    `json:"image_count"`
	Author         string `json:"author"`
	Size           int64  `json:"size"`
	ModifiedTime   int64  `json:"modified_time"`
}

// Dimensions of a payload raster in modules.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EmbedImageResult reports the outcome for a single cover image.
type EmbedImageResult struct {
	Index         int      `json:"index"`
	Success       bool     `json:"success"`
	Message       string   `json:"message,omitempty"`
	StegoPNG      string   `json:"stego_png,omitempty"`
	MSE           float64  `json:"mse"`
	PSNR          *float64 `json:"psnr"`
	Quality       string   `json:"quality,omitempty"`
	PayloadWidth  int      `json:"payload_width,omitempty"`
	PayloadHeight int      `json:"payload_height,omitempty"`
	Resized       bool     `json:"resized,omitempty"`
}

// EmbedResponse represents the response after embedding
type EmbedResponse struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	SecurityLevel SecurityLevel      `json:"security_level,omitempty"`
	BindingToken  string             `json:"binding_token,omitempty"`
	FingerprintID string             `json:"fingerprint_id,omitempty"`
	Results       []EmbedImageResult `json:"results,omitempty"`
}

// ExtractImageResult reports the payload recovered from one stego image.
type ExtractImageResult struct {
	Index    int     `json:"index"`
	Success  bool    `json:"success"`
	Message  string  `json:"message,omitempty"`
	Payload  string  `json:"payload,omitempty"`
	Security Binding `json:"security"`
}

// ExtractResponse represents the response after extraction
type ExtractResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Results []ExtractImageResult `json:"results,omitempty"`
}

// CapacityResponse reports how much payload a cover image can hold.
type CapacityResponse struct {
	Success                bool       `json:"success"`
	Message                string     `json:"message,omitempty"`
	TotalPixels            int        `json:"total_pixels"`
	UsableBits             int        `json:"usable_bits"`
	HeaderBits             int        `json:"header_bits"`
	MaxPayloadBits         int        `json:"max_payload_bits"`
	MaxPayloadSize         Dimensions `json:"max_payload_size"`
	RecommendedPayloadSize Dimensions `json:"recommended_payload_size"`
}

// PreRegisterResponse represents the response after pre-registration
type PreRegisterResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	FingerprintID  string `json:"fingerprint_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	BindingToken   string `json:"binding_token,omitempty"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
}

// VerifyResponse represents the response of a binding verification
type VerifyResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	Valid         bool          `json:"valid"`
	SecurityLevel SecurityLevel `json:"security_level"`
	Reasons       []string      `json:"reasons,omitempty"`
	PayloadData   string        `json:"payload_data,omitempty"`
	IssuedAt      int64         `json:"issued_at,omitempty"`
	ExpiresAt     int64         `json:"expires_at,omitempty"`
}
