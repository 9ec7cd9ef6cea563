package convert

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
)

// Convert runs one page through decode, resize, preprocessing, greyscale
// handling, and WebP encoding. It never panics past this boundary: every
// decode or encode problem comes back as a failed Result.
func Convert(task Task) Result {
	result := Result{SourcePath: task.SourcePath, DestPath: task.DestPath}

	info, err := os.Stat(task.SourcePath)
	if err != nil {
		result.Err = fmt.Errorf("stat source: %w", err)
		return result
	}
	result.OriginalBytes = info.Size()

	decoded, err := imaging.Open(task.SourcePath, imaging.AutoOrientation(true))
	if err != nil {
		result.Err = fmt.Errorf("decode: %w", err)
		return result
	}

	img := imaging.Clone(decoded)
	img = resizeWithin(img, task.Params.MaxWidth, task.Params.MaxHeight)
	img = Preprocess(img, task.Params.Preprocessing)

	flatten := task.Params.Grayscale
	if !flatten && task.Params.AutoGreyscale {
		flatten = ShouldGreyscale(img, task.Params.AutoGreyscalePixelThreshold, task.Params.AutoGreyscalePercentThreshold)
	}
	if flatten {
		img = imaging.Grayscale(img)
	}
	if task.Params.AutoContrast {
		img = autoContrast(img)
	}

	data, err := encode(img, task.Params)
	if err != nil {
		result.Err = fmt.Errorf("encode: %w", err)
		return result
	}
	if err := os.MkdirAll(filepath.Dir(task.DestPath), 0o755); err != nil {
		result.Err = fmt.Errorf("create output directory: %w", err)
		return result
	}
	if err := os.WriteFile(task.DestPath, data, 0o644); err != nil {
		result.Err = fmt.Errorf("write output: %w", err)
		return result
	}
	result.ConvertedBytes = int64(len(data))
	return result
}

// resizeWithin scales img down with a uniform factor so it fits inside the
// configured bounds. Images already inside the bounds pass through untouched;
// nothing is ever upscaled.
func resizeWithin(img *image.NRGBA, maxWidth, maxHeight int) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = math.Min(scale, float64(maxWidth)/float64(width))
	}
	if maxHeight > 0 && height > maxHeight {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}
	if scale >= 1.0 {
		return img
	}
	newWidth := int(math.Round(float64(width) * scale))
	newHeight := int(math.Round(float64(height) * scale))
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
}

// encode produces the final WebP bytes. With AutoOptimize set it encodes
// both lossy and lossless and keeps whichever came out smaller.
func encode(img image.Image, params Params) ([]byte, error) {
	if params.AutoOptimize {
		lossy, lossyErr := encodeWebP(img, params, false)
		lossless, losslessErr := encodeWebP(img, params, true)
		switch {
		case lossyErr != nil && losslessErr != nil:
			return nil, lossyErr
		case lossyErr != nil:
			return lossless, nil
		case losslessErr != nil:
			return lossy, nil
		case len(lossless) < len(lossy):
			return lossless, nil
		default:
			return lossy, nil
		}
	}
	return encodeWebP(img, params, params.Lossless)
}

func encodeWebP(img image.Image, params Params, lossless bool) ([]byte, error) {
	var buf bytes.Buffer
	err := webp.Encode(&buf, img, webp.Options{
		Quality:  params.Quality,
		Lossless: lossless,
		Method:   params.Method,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
