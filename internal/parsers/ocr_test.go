package parsers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal"
	"esgdocs/internal/ocr"
)

type stubEngine struct {
	rec ocr.Recognition
	err error
}

func (s stubEngine) Recognize(context.Context, []byte) (ocr.Recognition, error) { return s.rec, s.err }
func (s stubEngine) Close() error                                                { return nil }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func ocrParser(eng ocr.Engine, initErr error) *OCR {
	svc := ocr.NewService(ocr.Config{}, nil, func(ocr.EngineConfig) (ocr.Engine, error) {
		if initErr != nil {
			return nil, initErr
		}
		return eng, nil
	}, nil)
	return NewOCR(svc)
}

func TestOCRParserExtractsUnits(t *testing.T) {
	p := ocrParser(stubEngine{rec: ocr.Recognition{Text: "АКТ\nЭлектроэнергия 1 234,5 кВт·ч\nДизель 300 л", Confidence: 0.8, Words: 6}}, nil)
	assert.True(t, p.CanParse("scan.jpg", ""))
	assert.True(t, p.CanParse("blob", "image/webp"))

	res := p.Parse(context.Background(), pngBytes(t), internal.DefaultParseOptions())
	require.True(t, res.Success, res.Error)
	ex := res.Data.ExtractedData
	require.Len(t, ex.ElectricityData, 1)
	assert.Equal(t, 1234.5, ex.ElectricityData[0].Value)
	require.Len(t, ex.FuelData, 1)
	assert.Equal(t, "image", res.Data.Metadata.FormatDetected)
	assert.Equal(t, ocr.ProviderTesseract, res.Data.Metadata.Extra["ocr_provider"])
	assert.GreaterOrEqual(t, res.Data.Confidence, 0.52)
	assert.LessOrEqual(t, res.Data.Confidence, 1.0)
}

func TestOCRParserFailures(t *testing.T) {
	ctx := context.Background()
	opts := internal.DefaultParseOptions()

	res := ocrParser(stubEngine{err: errors.New("segfault in leptonica")}, nil).Parse(ctx, pngBytes(t), opts)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "recognition failed")

	res = ocrParser(stubEngine{rec: ocr.Recognition{Text: "  "}}, nil).Parse(ctx, pngBytes(t), opts)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no text")

	res = ocrParser(nil, errors.New("no tessdata")).Parse(ctx, pngBytes(t), opts)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no tessdata")

	res = ocrParser(stubEngine{}, nil).Parse(ctx, []byte("%PDF-1.7\n%scan"), opts)
	assert.False(t, res.Success, "pdf needs a cloud provider")
	assert.Contains(t, res.Error, ocr.ErrNoEligibleProvider.Error())

	res = NewOCR(nil).Parse(ctx, pngBytes(t), opts)
	assert.False(t, res.Success)
}
