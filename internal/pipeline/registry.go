package pipeline

import (
	"sync"

	"esgdocs/internal/ocr"
	"esgdocs/internal/parsers"
)

// Registry maps parser names to parsers. A Factory reads it on every call, so
// parsers registered later are picked up without touching the factory.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]parsers.Parser
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{parsers: map[string]parsers.Parser{}}
}

// DefaultRegistry registers every built-in parser. The OCR adapter is added
// only when svc is not nil.
func DefaultRegistry(svc *ocr.Service) *Registry {
	r := NewRegistry()
	r.Register(parsers.NewCSV())
	r.Register(parsers.NewExcel())
	r.Register(parsers.NewJSON())
	r.Register(parsers.NewXML())
	r.Register(parsers.NewHTML())
	r.Register(parsers.NewRTF())
	r.Register(parsers.NewPDF())
	r.Register(parsers.NewOffice())
	r.Register(parsers.NewText())
	if svc != nil {
		r.Register(parsers.NewOCR(svc))
	}
	return r
}

// Register adds p, replacing any parser with the same name.
func (r *Registry) Register(p parsers.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.parsers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.parsers[name] = p
}

func (r *Registry) Get(name string) (parsers.Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ForFile returns the first registered parser whose allowlist accepts the
// file. It backs files the detector could not classify.
func (r *Registry) ForFile(filename, mimeType string) (parsers.Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if p := r.parsers[name]; p.CanParse(filename, mimeType) {
			return p, true
		}
	}
	return nil, false
}
