package ocr

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNoEligibleProvider  = errors.New("no eligible OCR provider")
	ErrProviderUnavailable = errors.New("OCR provider unavailable")
)

type UserMode string

const (
	ModeDemo    UserMode = "DEMO"
	ModeTrial   UserMode = "TRIAL"
	ModePaid    UserMode = "PAID"
	ModeExpired UserMode = "EXPIRED"
)

func ParseUserMode(s string) UserMode {
	switch UserMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeTrial:
		return ModeTrial
	case ModePaid:
		return ModePaid
	case ModeExpired:
		return ModeExpired
	default:
		return ModeDemo
	}
}

const (
	ProviderTesseract    = "tesseract"
	ProviderYandexVision = "yandex_vision"
	ProviderGoogleVision = "google_vision"
)

// Provider describes one OCR backend. Lower Priority wins.
type Provider struct {
	ID          string
	Name        string
	Priority    int
	MIMETypes   []string
	MaxFileSize int64
	CostPerPage float64
	Available   bool
	Local       bool
}

func (p Provider) Supports(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return slices.Contains(p.MIMETypes, mime)
}

var imageMIMETypes = []string{
	"image/png", "image/jpeg", "image/tiff", "image/bmp", "image/gif", "image/webp",
}

func DefaultProviders() []Provider {
	cloud := append(slices.Clone(imageMIMETypes), "application/pdf")
	return []Provider{
		{
			ID: ProviderTesseract, Name: "Tesseract (local)", Priority: 1,
			MIMETypes: slices.Clone(imageMIMETypes), MaxFileSize: 20 << 20,
			CostPerPage: 0, Available: true, Local: true,
		},
		{
			ID: ProviderYandexVision, Name: "Yandex Vision OCR", Priority: 2,
			MIMETypes: cloud, MaxFileSize: 10 << 20,
			CostPerPage: 0.0015,
		},
		{
			ID: ProviderGoogleVision, Name: "Google Cloud Vision", Priority: 3,
			MIMETypes: slices.Clone(cloud), MaxFileSize: 20 << 20,
			CostPerPage: 0.0015,
		},
	}
}

// Registry owns the provider table of one Service.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

func NewRegistry(providers []Provider) *Registry {
	return &Registry{providers: slices.Clone(providers)}
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.providers)
}

func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// MarkUnavailable is permanent for the lifetime of the registry.
func (r *Registry) MarkUnavailable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.providers {
		if r.providers[i].ID == id {
			r.providers[i].Available = false
		}
	}
}

// SelectProvider filters by availability, MIME type and size, orders by
// priority and then applies the tier rules of mode.
func SelectProvider(providers []Provider, mime string, size int64, mode UserMode, preferred string, trialCeiling float64) (*Provider, error) {
	var eligible []Provider
	for _, p := range providers {
		if !p.Available || !p.Supports(mime) {
			continue
		}
		if p.MaxFileSize > 0 && size > p.MaxFileSize {
			continue
		}
		eligible = append(eligible, p)
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Priority < eligible[j].Priority })

	pick := func(ok func(Provider) bool) (*Provider, error) {
		for _, p := range eligible {
			if ok(p) {
				return &p, nil
			}
		}
		return nil, ErrNoEligibleProvider
	}

	switch mode {
	case ModePaid:
		if preferred != "" {
			for _, p := range eligible {
				if p.ID == preferred {
					return &p, nil
				}
			}
		}
		return pick(func(Provider) bool { return true })
	case ModeTrial:
		return pick(func(p Provider) bool { return p.CostPerPage <= trialCeiling })
	default:
		return pick(func(p Provider) bool { return p.CostPerPage == 0 })
	}
}
