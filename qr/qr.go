// Package qr wraps the external QR symbol codec behind bitmap-in,
// bitmap-out functions.
package qr

import (
	"fmt"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"

	"qrmark-backend/imaging"
)

// decodeScale upsamples each module before decoding; single-pixel
// modules are below what the reader's sampler tolerates.
const decodeScale = 4

// RecoveryLevel re-exports the symbol error correction levels.
type RecoveryLevel = qrcode.RecoveryLevel

const (
	RecoveryLow     = qrcode.Low
	RecoveryMedium  = qrcode.Medium
	RecoveryHigh    = qrcode.High
	RecoveryHighest = qrcode.Highest
)

// Render encodes text as a QR symbol and returns the module bitmap,
// quiet zone included.
func Render(text string, level RecoveryLevel) (*imaging.Bitmap, error) {
	code, err := qrcode.New(text, level)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR symbol: %v", err)
	}
	return imaging.BitmapFromBools(code.Bitmap()), nil
}

// Decode reads the text out of a QR symbol bitmap.
func Decode(bm *imaging.Bitmap) (string, error) {
	if bm == nil || bm.Width == 0 || bm.Height == 0 {
		return "", fmt.Errorf("empty QR symbol bitmap")
	}
	img := bm.ToImage(decodeScale)
	bbm, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to prepare QR symbol for decoding: %v", err)
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bbm, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decode QR symbol: %v", err)
	}
	return result.GetText(), nil
}
