package stego

import (
	"fmt"
	"image"
	"math"
)

const (
	// DimensionBits is the header field width for each payload dimension.
	DimensionBits = 20
	// HeaderBits is the fixed frame header size: width + height.
	HeaderBits = 2 * DimensionBits
	// MaxPayloadDimension is the largest dimension a header field can carry.
	MaxPayloadDimension = 1<<DimensionBits - 1

	// recommendedRatio leaves headroom below the hard maximum so the
	// symbol stays comfortably decodable.
	recommendedRatio = 0.7
)

// CapacityReport describes how many payload bits a cover image can hold
// through the blue-channel LSB scheme: one bit per pixel regardless of
// channel count or bit depth.
type CapacityReport struct {
	TotalPixels    int
	UsableBits     int
	HeaderBits     int
	MaxPayloadBits int
}

// Analyze computes the capacity report for a cover image.
func Analyze(cover image.Image) CapacityReport {
	b := cover.Bounds()
	total := b.Dx() * b.Dy()
	return CapacityReport{
		TotalPixels:    total,
		UsableBits:     total,
		HeaderBits:     HeaderBits,
		MaxPayloadBits: total - HeaderBits,
	}
}

// Fits reports whether a payload of the given dimensions can be framed
// and embedded.
func (r CapacityReport) Fits(width, height int) bool {
	if r.MaxPayloadBits < 0 {
		return false
	}
	return int64(width)*int64(height) <= int64(r.MaxPayloadBits)
}

// MaxSquareDimension is the side of the largest square payload that fits.
func (r CapacityReport) MaxSquareDimension() int {
	if r.MaxPayloadBits <= 0 {
		return 0
	}
	return int(math.Sqrt(float64(r.MaxPayloadBits)))
}

// RecommendedDimension is a conservative square payload side, using a
// fraction of the hard maximum.
func (r CapacityReport) RecommendedDimension() int {
	if r.MaxPayloadBits <= 0 {
		return 0
	}
	return int(math.Sqrt(float64(r.MaxPayloadBits) * recommendedRatio))
}

// FitDimensions returns the largest payload dimensions that fit the
// capacity while preserving the given aspect ratio, rounding down. A
// cover too small to hold even the header plus one bit is a hard
// failure, not a resize suggestion.
func (r CapacityReport) FitDimensions(width, height int) (int, int, error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("payload dimensions must be positive, got %dx%d", width, height)
	}
	if r.MaxPayloadBits < 1 {
		return 0, 0, fmt.Errorf("%w: cover image holds %d usable bits, header alone needs %d",
			ErrCapacityExceeded, r.UsableBits, HeaderBits)
	}
	if r.Fits(width, height) {
		return width, height, nil
	}

	scale := math.Sqrt(float64(r.MaxPayloadBits) / (float64(width) * float64(height)))
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	// Guard against rounding pushing the area back over the limit.
	for w > 0 && h > 0 && int64(w)*int64(h) > int64(r.MaxPayloadBits) {
		if w >= h {
			w--
		} else {
			h--
		}
	}
	if w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("%w: capacity of %d bits cannot hold any %d:%d payload",
			ErrCapacityExceeded, r.MaxPayloadBits, width, height)
	}
	return w, h, nil
}
