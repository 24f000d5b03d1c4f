// Package quality computes reconstruction quality metrics between a
// cover image and its stego counterpart.
package quality

import (
	"image"
	"math"

	"qrmark-backend/imaging"
)

const maxChannelValue = 255.0

// Metrics holds the distortion measurements for one embed call. They
// are derived values, recomputed per image and never cached.
type Metrics struct {
	MSE  float64
	PSNR float64
}

// Measure computes MSE and PSNR over every pixel and color channel of
// both images, not just the modified region, to reflect perceptual
// impact. PSNR is +Inf when the images are identical.
func Measure(original, stegoImg image.Image) Metrics {
	a := imaging.CloneNRGBA(original)
	b := imaging.CloneNRGBA(stegoImg)
	if a.Bounds() != b.Bounds() || a.Bounds().Empty() {
		return Metrics{}
	}

	var sum float64
	count := 0
	for i := 0; i < len(a.Pix); i += 4 {
		// R, G, B only; alpha is not a cover channel.
		for c := 0; c < 3; c++ {
			diff := float64(a.Pix[i+c]) - float64(b.Pix[i+c])
			sum += diff * diff
			count++
		}
	}

	mse := sum / float64(count)
	if mse == 0 {
		return Metrics{MSE: 0, PSNR: math.Inf(1)}
	}
	psnr := 20*math.Log10(maxChannelValue) - 10*math.Log10(mse)
	return Metrics{MSE: mse, PSNR: psnr}
}

// Band maps a PSNR value to its reporting band. Bands describe quality
// only, they never gate acceptance.
func Band(psnr float64) string {
	switch {
	case math.IsInf(psnr, 1), psnr >= 40:
		return "excellent"
	case psnr >= 30:
		return "good"
	case psnr >= 20:
		return "fair"
	default:
		return "poor"
	}
}

// Validate checks whether PSNR meets a caller-supplied threshold.
func Validate(psnr float64, threshold float64) bool {
	if math.IsInf(psnr, 1) {
		return true
	}
	return psnr >= threshold
}
