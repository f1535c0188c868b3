package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MinOCRWidth = 1200
	MaxOCRWidth = 2400
)

// Preprocess scales the image so its width lands in [MinOCRWidth, MaxOCRWidth],
// converts it to grayscale, stretches contrast and sharpens lightly. The
// output is PNG.
func Preprocess(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	w := img.Bounds().Dx()
	if w == 0 {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	target := min(max(w, MinOCRWidth), MaxOCRWidth)
	if target != w {
		img = imaging.Resize(img, target, 0, imaging.Lanczos)
	}
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	out = imaging.Sharpen(out, 0.6)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
