package imaging

import (
	"image"
	"image/color"
)

// Bitmap is a binary raster: one byte per module in row-major order,
// 1 for a dark module, 0 for a light one.
type Bitmap struct {
	Width  int
	Height int
	Bits   []byte
}

func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		Width:  width,
		Height: height,
		Bits:   make([]byte, width*height),
	}
}

// BitmapFromBools converts a bool module matrix (true = dark) into a
// Bitmap. Rows must all have the same length.
func BitmapFromBools(modules [][]bool) *Bitmap {
	height := len(modules)
	width := 0
	if height > 0 {
		width = len(modules[0])
	}
	bm := NewBitmap(width, height)
	for y, row := range modules {
		for x, dark := range row {
			if dark {
				bm.Bits[y*width+x] = 1
			}
		}
	}
	return bm
}

// BitmapFromImage thresholds an image into a binary raster. Pixels
// darker than mid-gray become dark modules.
func BitmapFromImage(img image.Image) *Bitmap {
	b := img.Bounds()
	bm := NewBitmap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if g.Y < 128 {
				bm.Bits[y*bm.Width+x] = 1
			}
		}
	}
	return bm
}

func (b *Bitmap) At(x, y int) byte {
	return b.Bits[y*b.Width+x]
}

func (b *Bitmap) Set(x, y int, v byte) {
	b.Bits[y*b.Width+x] = v & 1
}

func (b *Bitmap) Equal(o *Bitmap) bool {
	if o == nil || b.Width != o.Width || b.Height != o.Height {
		return false
	}
	for i := range b.Bits {
		if b.Bits[i]&1 != o.Bits[i]&1 {
			return false
		}
	}
	return true
}

// Resize scales the bitmap to the given dimensions with nearest
// neighbour sampling, keeping modules strictly binary.
func (b *Bitmap) Resize(width, height int) *Bitmap {
	out := NewBitmap(width, height)
	for y := 0; y < height; y++ {
		srcY := y * b.Height / height
		for x := 0; x < width; x++ {
			srcX := x * b.Width / width
			out.Bits[y*width+x] = b.Bits[srcY*b.Width+srcX] & 1
		}
	}
	return out
}

// ToImage renders the bitmap as a grayscale image with scale pixels
// per module, dark modules black.
func (b *Bitmap) ToImage(scale int) *image.Gray {
	if scale < 1 {
		scale = 1
	}
	img := image.NewGray(image.Rect(0, 0, b.Width*scale, b.Height*scale))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			v := uint8(255)
			if b.Bits[y*b.Width+x]&1 == 1 {
				v = 0
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetGray(x*scale+dx, y*scale+dy, color.Gray{Y: v})
				}
			}
		}
	}
	return img
}
