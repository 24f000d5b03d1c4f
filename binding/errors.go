package binding

import "errors"

var (
	ErrTokenMalformed   = errors.New("binding token is malformed")
	ErrTokenTampered    = errors.New("binding token signature mismatch: tamper detected")
	ErrTokenExpired     = errors.New("binding token expired")
	ErrDocumentMismatch = errors.New("document content hash mismatch: document modified")
	ErrPayloadMismatch  = errors.New("payload does not match bound payload")

	ErrRecordNotFound = errors.New("registration record not found")
)
