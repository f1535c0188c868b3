package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	rec    Recognition
	err    error
	calls  int
	closed bool
}

func (f *fakeEngine) Recognize(_ context.Context, _ []byte) (Recognition, error) {
	f.calls++
	return f.rec, f.err
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func mkPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSelectProviderTiers(t *testing.T) {
	free := Provider{ID: "free", Priority: 5, MIMETypes: []string{"image/png"}, MaxFileSize: 100, Available: true, Local: true}
	cheap := Provider{ID: "cheap", Priority: 2, MIMETypes: []string{"image/png"}, MaxFileSize: 100, CostPerPage: 0.001, Available: true}
	pricey := Provider{ID: "pricey", Priority: 1, MIMETypes: []string{"image/png"}, MaxFileSize: 100, CostPerPage: 0.01, Available: true}
	all := []Provider{free, cheap, pricey}

	tests := []struct {
		name      string
		providers []Provider
		mode      UserMode
		preferred string
		want      string
	}{
		{"demo takes free only", all, ModeDemo, "", "free"},
		{"expired takes free only", all, ModeExpired, "pricey", "free"},
		{"trial respects ceiling", all, ModeTrial, "", "cheap"},
		{"paid honours preference", all, ModePaid, "cheap", "cheap"},
		{"paid falls back to priority", all, ModePaid, "unknown", "pricey"},
		{"demo only free available", []Provider{free}, ModeDemo, "", "free"},
		{"demo only paid available", []Provider{pricey}, ModeDemo, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := SelectProvider(tt.providers, "image/png", 10, tt.mode, tt.preferred, 0.002)
			if tt.want == "" {
				assert.Nil(t, p)
				assert.ErrorIs(t, err, ErrNoEligibleProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

func TestSelectProviderFilters(t *testing.T) {
	providers := DefaultProviders()

	p, err := SelectProvider(providers, "image/png; charset=binary", 1<<20, ModeDemo, "", 0.002)
	require.NoError(t, err)
	assert.Equal(t, ProviderTesseract, p.ID)

	_, err = SelectProvider(providers, "image/png", 50<<20, ModeDemo, "", 0.002)
	assert.ErrorIs(t, err, ErrNoEligibleProvider, "too large for every provider")

	_, err = SelectProvider(providers, "application/pdf", 1<<10, ModePaid, "", 0.002)
	assert.ErrorIs(t, err, ErrNoEligibleProvider, "cloud providers are not available")
}

func TestParseUserMode(t *testing.T) {
	assert.Equal(t, ModePaid, ParseUserMode(" paid "))
	assert.Equal(t, ModeTrial, ParseUserMode("TRIAL"))
	assert.Equal(t, ModeExpired, ParseUserMode("expired"))
	assert.Equal(t, ModeDemo, ParseUserMode("whatever"))
}

func TestPreprocessClampsWidth(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{600, 300, 1200, 600},
		{3000, 1500, 2400, 1200},
		{1500, 100, 1500, 100},
	}
	for _, tt := range tests {
		out, err := Preprocess(mkPNG(t, tt.w, tt.h))
		require.NoError(t, err)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, tt.wantW, cfg.Width)
		assert.Equal(t, tt.wantH, cfg.Height)
	}

	_, err := Preprocess([]byte("not an image"))
	assert.Error(t, err)
}

func TestServiceProcessLocal(t *testing.T) {
	eng := &fakeEngine{rec: Recognition{Text: "Электроэнергия 500 кВт·ч", Confidence: 0.87, Words: 3}}
	svc := NewService(Config{Preprocess: true}, nil, func(EngineConfig) (Engine, error) { return eng, nil }, nil)
	require.NoError(t, svc.Init(context.Background()))

	res, err := svc.Process(context.Background(), Request{Image: mkPNG(t, 400, 200), MIMEType: "image/png"})
	require.NoError(t, err)
	er, ok := res.(EngineResult)
	require.True(t, ok)
	assert.Equal(t, ProviderTesseract, er.Provider)
	assert.True(t, er.Preprocessed)
	assert.InDelta(t, 0.87, er.Confidence, 1e-9)

	text, conf, provider := Summary(res)
	assert.Equal(t, "Электроэнергия 500 кВт·ч", text)
	assert.InDelta(t, 0.87, conf, 1e-9)
	assert.Equal(t, ProviderTesseract, provider)

	require.NoError(t, svc.Shutdown())
	assert.True(t, eng.closed)
}

func TestServicePreprocessFailureStillRecognizes(t *testing.T) {
	eng := &fakeEngine{rec: Recognition{Text: "x", Confidence: 0.5}}
	svc := NewService(Config{Preprocess: true}, nil, func(EngineConfig) (Engine, error) { return eng, nil }, nil)

	res, err := svc.Process(context.Background(), Request{Image: []byte("garbage"), MIMEType: "image/jpeg"})
	require.NoError(t, err)
	er := res.(EngineResult)
	assert.False(t, er.Preprocessed)
	assert.Equal(t, 1, eng.calls)
}

func TestServiceInitFailureIsPermanent(t *testing.T) {
	attempts := 0
	svc := NewService(Config{}, nil, func(EngineConfig) (Engine, error) {
		attempts++
		return nil, errors.New("rus.traineddata not found")
	}, nil)

	err := svc.Init(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "traineddata")

	p, ok := svc.Registry().Get(ProviderTesseract)
	require.True(t, ok)
	assert.False(t, p.Available)

	_, err = svc.Process(context.Background(), Request{Image: []byte{1}, MIMEType: "image/png"})
	assert.ErrorIs(t, err, ErrNoEligibleProvider)
	assert.Error(t, svc.Init(context.Background()))
	assert.Equal(t, 1, attempts)
}

func TestServiceRecognitionFailure(t *testing.T) {
	eng := &fakeEngine{err: errors.New("engine crashed")}
	svc := NewService(Config{}, nil, func(EngineConfig) (Engine, error) { return eng, nil }, nil)

	res, err := svc.Process(context.Background(), Request{Image: []byte{1, 2, 3}, MIMEType: "image/tiff"})
	require.NoError(t, err)
	fr, ok := res.(FailedResult)
	require.True(t, ok)
	assert.EqualError(t, fr.Err, "engine crashed")

	text, conf, provider := Summary(res)
	assert.Empty(t, text)
	assert.Zero(t, conf)
	assert.Equal(t, ProviderError, provider)
}

func TestServiceStubProvider(t *testing.T) {
	providers := DefaultProviders()
	for i := range providers {
		providers[i].Available = providers[i].ID == ProviderYandexVision
	}
	svc := NewService(Config{}, NewRegistry(providers), nil, nil)

	res, err := svc.Process(context.Background(), Request{Image: []byte("%PDF-1.4"), MIMEType: "application/pdf", Mode: ModePaid})
	require.NoError(t, err)
	sr, ok := res.(StubResult)
	require.True(t, ok)
	assert.Equal(t, ProviderYandexVision, sr.Provider)
	assert.NotEmpty(t, sr.Warning)
}

func TestServiceCancelled(t *testing.T) {
	svc := NewService(Config{}, nil, func(EngineConfig) (Engine, error) { return &fakeEngine{}, nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Process(ctx, Request{Image: []byte{1}, MIMEType: "image/png"})
	assert.ErrorIs(t, err, context.Canceled)
}
