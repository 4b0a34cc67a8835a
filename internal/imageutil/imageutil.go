// Package imageutil turns arbitrary fetched image bytes into the raster form
// the face libraries accept.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/facecloak/internal/constants"
)

// ErrDecode is returned when the input is not a supported image.
var ErrDecode = errors.New("failed to decode image")

// Normalize decodes data and re-encodes it as JPEG, scaling it down to fit
// within maxSize on its longest side. maxSize <= 0 disables scaling.
// Transparent areas are flattened onto white.
func Normalize(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	bounds := img.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), maxSize)
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: image has no pixels (%dx%d)", ErrDecode, bounds.Dx(), bounds.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin returns dimensions that keep the aspect ratio and fit within maxSize.
func FitWithin(width, height, maxSize int) (int, int) {
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return width, height
	}
	if width > height {
		h := int(float64(height) * float64(maxSize) / float64(width))
		return maxSize, max(h, 1)
	}
	w := int(float64(width) * float64(maxSize) / float64(height))
	return max(w, 1), maxSize
}
