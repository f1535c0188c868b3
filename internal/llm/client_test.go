package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal/matching"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func completion(t *testing.T, content string) *http.Response {
	t.Helper()
	blob, err := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
	})
	require.NoError(t, err)
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(blob))), Header: make(http.Header)}
}

func testClient(rt roundTripFunc) *Client {
	c := NewClient(Config{APIKey: "test", BaseURL: "https://example.test/v1", RateLimitRPS: 1000}, nil)
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func TestEnhanceWithRetry(t *testing.T) {
	attempt := 0
	c := testClient(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		attempt++
		if attempt == 1 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(strings.NewReader("busy")), Header: make(http.Header)}, nil
		}
		return completion(t, "```json\n"+`{"entities":[{"name":"эл.энергия","category":"electricity","confidence":91,"normalized_value":"электроэнергия","units":["кВт·ч"]}],"context_analysis":{"document_type":"invoice","confidence":88,"relevant_sections":["Итого к оплате"]},"recommendations":["проверить период"]}`+"\n```"), nil
	})

	out, err := c.Enhance(context.Background(), matching.EnhanceRequest{Query: "эл.энергия", Context: "Счет за эл.энергия 500 кВт·ч"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "электроэнергия", out.Entities[0].NormalizedValue)
	assert.Equal(t, 91.0, out.Entities[0].Confidence)
	assert.Equal(t, []string{"кВт·ч"}, out.Entities[0].Units)
	assert.Equal(t, "invoice", out.ContextAnalysis.DocumentType)
	assert.Equal(t, 88.0, out.ContextAnalysis.Confidence)
	assert.Equal(t, []string{"Итого к оплате"}, out.ContextAnalysis.RelevantSections)
	assert.Equal(t, []string{"проверить период"}, out.Recommendations)
}

func TestEnhanceRejectsMalformedContextAnalysis(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return completion(t, `{"entities":[],"context_analysis":{"document_type":"act","confidence":140}}`), nil
	})
	_, err := c.Enhance(context.Background(), matching.EnhanceRequest{Query: "газ"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestEnhanceRejectsSchemaViolation(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return completion(t, `{"entities":[{"name":"газ","confidence":250}]}`), nil
	})
	_, err := c.Enhance(context.Background(), matching.EnhanceRequest{Query: "газ"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestEnhanceClientErrorIsNotRetried(t *testing.T) {
	attempt := 0
	c := testClient(func(*http.Request) (*http.Response, error) {
		attempt++
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader("no")), Header: make(http.Header)}, nil
	})
	_, err := c.Enhance(context.Background(), matching.EnhanceRequest{Query: "газ"})
	require.Error(t, err)
	assert.Equal(t, 1, attempt)
	assert.Contains(t, err.Error(), "status=401")
}

func TestEnhanceWithoutKeyIsUnavailable(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.Enhance(context.Background(), matching.EnhanceRequest{Query: "газ"})
	assert.ErrorIs(t, err, matching.ErrEnhancementUnavailable)
}

func TestEnhanceHonoursDeadline(t *testing.T) {
	c := testClient(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Enhance(ctx, matching.EnhanceRequest{Query: "газ"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterSpacing(t *testing.T) {
	rl := NewRateLimiter(20)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.WaitTurn(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
