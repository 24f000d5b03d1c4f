package stego

import "errors"

var (
	// ErrCapacityExceeded means the payload, even after best-effort
	// resizing, cannot fit in the cover image.
	ErrCapacityExceeded = errors.New("payload does not fit in cover image capacity")

	// ErrInvalidHeader means extraction decoded a structurally
	// impossible payload width or height.
	ErrInvalidHeader = errors.New("embedded header is structurally invalid")

	// ErrNoWatermarkFound means extraction ran but found a zero-sized
	// payload header.
	ErrNoWatermarkFound = errors.New("no embedded watermark detected")
)
