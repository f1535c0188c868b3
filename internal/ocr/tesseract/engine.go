// Package tesseract is the local OCR engine. It needs libtesseract via cgo,
// so it is the only package that links it.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"esgdocs/internal/ocr"
)

type Engine struct {
	client *gosseract.Client
}

// New configures a client and runs one warm-up recognition so that a missing
// language pack fails here rather than on the first document.
func New(cfg ocr.EngineConfig) (ocr.Engine, error) {
	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		client.SetTessdataPrefix(cfg.TessdataPrefix)
	}
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"rus", "eng"}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := warmUp(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("warm up: %w", err)
	}
	return &Engine{client: client}, nil
}

func warmUp(client *gosseract.Client) error {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.White.Y >> 8)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return err
	}
	_, err := client.Text()
	return err
}

func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Recognition{}, err
	}
	if err := e.client.SetImageFromBytes(img); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize: %w", err)
	}
	rec := ocr.Recognition{Text: strings.TrimSpace(text)}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		rec.Words = len(boxes)
		rec.Confidence = sum / float64(len(boxes)) / 100
	} else if rec.Text != "" {
		rec.Words = len(strings.Fields(rec.Text))
		rec.Confidence = 0.5
	}
	return rec, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}
