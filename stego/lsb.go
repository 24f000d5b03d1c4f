// Package stego implements the blue-channel LSB frame codec: a 40-bit
// dimension header followed by the payload raster, one bit per pixel.
package stego

import (
	"fmt"
	"image"

	"qrmark-backend/imaging"
)

const blueOffset = 2 // NRGBA pixel layout: R, G, B, A

// Embed writes the framed payload into the least significant bits of
// the blue channel, pixel by pixel in row-major order. The cover is
// never mutated; every pixel beyond the frame is copied bit-for-bit.
func Embed(cover image.Image, payload *imaging.Bitmap) (*image.NRGBA, error) {
	if payload == nil || payload.Width <= 0 || payload.Height <= 0 {
		return nil, fmt.Errorf("payload dimensions must be positive")
	}
	if payload.Width > MaxPayloadDimension || payload.Height > MaxPayloadDimension {
		return nil, fmt.Errorf("payload dimension %dx%d exceeds the %d-bit header field",
			payload.Width, payload.Height, DimensionBits)
	}

	report := Analyze(cover)
	needed := HeaderBits + payload.Width*payload.Height
	if !report.Fits(payload.Width, payload.Height) {
		return nil, fmt.Errorf("%w: need %d bits, cover provides %d",
			ErrCapacityExceeded, needed, report.UsableBits)
	}

	bits := make([]byte, 0, needed)
	bits = appendUintBits(bits, uint32(payload.Width), DimensionBits)
	bits = appendUintBits(bits, uint32(payload.Height), DimensionBits)
	for _, b := range payload.Bits {
		bits = append(bits, b&1)
	}

	stego := imaging.CloneNRGBA(cover)
	width := stego.Bounds().Dx()
	for i, bit := range bits {
		off := stego.PixOffset(i%width, i/width)
		stego.Pix[off+blueOffset] = stego.Pix[off+blueOffset]&0xFE | bit
	}
	return stego, nil
}

// Extract reads the 40-bit header, validates the claimed dimensions and
// recovers the payload raster. A zero-sized header means no watermark;
// dimensions beyond the remaining capacity mean a corrupt header.
func Extract(stegoImg image.Image) (*imaging.Bitmap, error) {
	bounds := stegoImg.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total < HeaderBits {
		return nil, fmt.Errorf("%w: image holds only %d pixels, header needs %d",
			ErrNoWatermarkFound, total, HeaderBits)
	}

	img := imaging.CloneNRGBA(stegoImg)
	width := img.Bounds().Dx()
	readBit := func(i int) byte {
		off := img.PixOffset(i%width, i/width)
		return img.Pix[off+blueOffset] & 1
	}

	payloadWidth := readUintBits(readBit, 0, DimensionBits)
	payloadHeight := readUintBits(readBit, DimensionBits, DimensionBits)
	if payloadWidth == 0 || payloadHeight == 0 {
		return nil, ErrNoWatermarkFound
	}
	payloadBits := int64(payloadWidth) * int64(payloadHeight)
	if payloadBits > int64(total-HeaderBits) {
		return nil, fmt.Errorf("%w: header claims %dx%d payload but only %d bits remain",
			ErrInvalidHeader, payloadWidth, payloadHeight, total-HeaderBits)
	}

	bm := imaging.NewBitmap(int(payloadWidth), int(payloadHeight))
	for i := range bm.Bits {
		bm.Bits[i] = readBit(HeaderBits + i)
	}
	return bm, nil
}

// appendUintBits appends the value MSB-first using exactly n bits.
func appendUintBits(bits []byte, v uint32, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		bits = append(bits, byte(v>>uint(i))&1)
	}
	return bits
}

// readUintBits reads n bits MSB-first starting at bit offset start.
func readUintBits(readBit func(int) byte, start, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<1 | uint32(readBit(start+i))
	}
	return v
}
