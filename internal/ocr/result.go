package ocr

import "time"

// Result is one of EngineResult, StubResult or FailedResult.
type Result interface {
	isResult()
}

// EngineResult comes from a provider that actually ran recognition.
type EngineResult struct {
	Provider     string
	Text         string
	Confidence   float64
	Words        int
	Preprocessed bool
	Elapsed      time.Duration
}

// StubResult is returned by providers that are modelled but not implemented.
type StubResult struct {
	Provider string
	Warning  string
}

// FailedResult is a recognition failure after a provider was chosen.
type FailedResult struct {
	Provider string
	Err      error
}

func (EngineResult) isResult() {}
func (StubResult) isResult()   {}
func (FailedResult) isResult() {}

const ProviderError = "error"

// Summary flattens a Result into text, confidence in [0,1] and provider tag.
// Failures report ProviderError.
func Summary(r Result) (text string, confidence float64, provider string) {
	switch v := r.(type) {
	case EngineResult:
		return v.Text, v.Confidence, v.Provider
	case StubResult:
		return "", 0, v.Provider
	case FailedResult:
		return "", 0, ProviderError
	}
	return "", 0, ProviderError
}
