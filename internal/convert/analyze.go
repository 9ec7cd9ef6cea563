package convert

import (
	"image"

	"github.com/disintegration/imaging"
)

// Analysis summarizes per-pixel color variation for one image. The diff for
// a pixel is max(R,G,B) minus min(R,G,B); a pure greyscale image has zero
// diff everywhere.
type Analysis struct {
	MaxDiff      int
	MeanDiff     float64
	ColoredRatio float64
}

// Analyze measures how far img sits from pure greyscale. Pixels whose diff
// exceeds pixelThreshold count as colored.
func Analyze(img image.Image, pixelThreshold int) Analysis {
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Clone(img)
	}
	bounds := nrgba.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	total := width * height
	if total == 0 {
		return Analysis{}
	}

	var colored, diffSum int64
	maxDiff := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		idx := nrgba.PixOffset(bounds.Min.X, y)
		for x := 0; x < width; x++ {
			r, g, b := nrgba.Pix[idx], nrgba.Pix[idx+1], nrgba.Pix[idx+2]
			hi, lo := r, r
			if g > hi {
				hi = g
			}
			if g < lo {
				lo = g
			}
			if b > hi {
				hi = b
			}
			if b < lo {
				lo = b
			}
			diff := int(hi - lo)
			diffSum += int64(diff)
			if diff > maxDiff {
				maxDiff = diff
			}
			if diff > pixelThreshold {
				colored++
			}
			idx += 4
		}
	}

	return Analysis{
		MaxDiff:      maxDiff,
		MeanDiff:     float64(diffSum) / float64(total),
		ColoredRatio: float64(colored) / float64(total),
	}
}

// ShouldGreyscale reports whether the auto-greyscale pass would flatten img.
// Images with no colored pixels at all are left alone: they are already
// effectively greyscale and re-encoding them flat gains nothing.
func ShouldGreyscale(img image.Image, pixelThreshold int, percentThreshold float64) bool {
	analysis := Analyze(img, pixelThreshold)
	if analysis.ColoredRatio == 0 {
		return false
	}
	return analysis.ColoredRatio <= percentThreshold
}
