package convert

import (
	"image"

	"github.com/disintegration/gift"

	"cbx/internal/config"
)

// Preprocess applies the configured filter pass to img before encoding.
// unsharp_mask sharpens linework; reduce_noise runs a median filter first to
// knock out scan grain, then sharpens more gently.
func Preprocess(img *image.NRGBA, mode string) *image.NRGBA {
	var g *gift.GIFT
	switch mode {
	case config.PreprocessUnsharpMask:
		g = gift.New(gift.UnsharpMask(2.0, 1.5, 0.01))
	case config.PreprocessReduceNoise:
		g = gift.New(gift.Median(3, true), gift.UnsharpMask(1.0, 0.8, 0.02))
	default:
		return img
	}
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// autoContrast stretches each channel linearly to the full 0-255 range,
// leaving channels with no spread untouched.
func autoContrast(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}

	var lo, hi [3]uint8
	for c := range lo {
		lo[c], hi[c] = 255, 0
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		idx := img.PixOffset(bounds.Min.X, y)
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				v := img.Pix[idx+c]
				if v < lo[c] {
					lo[c] = v
				}
				if v > hi[c] {
					hi[c] = v
				}
			}
			idx += 4
		}
	}

	var scale [3]float64
	stretch := false
	for c := range scale {
		if hi[c] > lo[c] && (lo[c] > 0 || hi[c] < 255) {
			scale[c] = 255.0 / float64(hi[c]-lo[c])
			stretch = true
		}
	}
	if !stretch {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		src := img.PixOffset(bounds.Min.X, y)
		dst := out.PixOffset(0, y-bounds.Min.Y)
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				out.Pix[dst+c] = remap(img.Pix[src+c], lo[c], scale[c])
			}
			out.Pix[dst+3] = img.Pix[src+3]
			src += 4
			dst += 4
		}
	}
	return out
}

func remap(v, lo uint8, scale float64) uint8 {
	if scale == 0 {
		return v
	}
	if v <= lo {
		return 0
	}
	stretched := float64(v-lo) * scale
	if stretched >= 255 {
		return 255
	}
	return uint8(stretched + 0.5)
}
