// Package fingerprint derives document identities used by the binding
// protocol: a stable content hash plus a per-issuance fingerprint id.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"qrmark-backend/models"
)

const (
	// IDHexLength is the length of a fingerprint id in hex characters.
	IDHexLength = 16
	// MaxDocumentSize bounds the raw document input.
	MaxDocumentSize = 50 * 1024 * 1024
)

// Fingerprint identifies a document at a point in time.
//
// FingerprintID is derived from the content hash, the metadata and the
// creation time, so fingerprinting an unchanged document twice yields
// different ids. That is intentional freshness, not a bug: use
// ContentHash when deciding whether document content changed.
type Fingerprint struct {
	FingerprintID string                  `json:"fingerprint_id"`
	ContentHash   string                  `json:"content_hash"`
	Metadata      models.DocumentMetadata `json:"metadata"`
	CreatedAt     int64                   `json:"created_at"`
}

// Compute fingerprints raw document bytes together with the structural
// metadata supplied by the document-parsing collaborator.
func Compute(document []byte, meta models.DocumentMetadata, now time.Time) (*Fingerprint, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("document is empty")
	}
	if len(document) > MaxDocumentSize {
		return nil, fmt.Errorf("document too large: %d bytes (max %d)", len(document), MaxDocumentSize)
	}

	fp := &Fingerprint{
		ContentHash: ContentHash(document),
		Metadata:    meta,
		CreatedAt:   now.Unix(),
	}

	// The id hashes the canonical serialization of everything above;
	// struct field order keeps the serialization deterministic.
	source, err := json.Marshal(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize fingerprint: %v", err)
	}
	sum := sha256.Sum256(source)
	fp.FingerprintID = hex.EncodeToString(sum[:])[:IDHexLength]
	return fp, nil
}

// ContentHash returns the SHA-256 hex digest of the raw document bytes.
// It is the idempotent identity of the document content.
func ContentHash(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}
