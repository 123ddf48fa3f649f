// Package llm wraps the Google Gemini generative-language REST API.
// The client initializes lazily, binding the first model from a preference
// list the backend accepts, and degrades to user-visible strings instead of
// returning errors: there is always a live user waiting for a reply.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// DefaultBaseURL is the Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// PreferredModels is the candidate list tried in priority order during
// initialization. Flash models first for latency.
var PreferredModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
}

// Fixed user-visible degradation strings.
const (
	InitErrorReply = "Error: Gemini model not initialized. Please check your API key configuration."
	TimeoutReply   = "I'm still thinking; here is a brief answer while I finish processing."
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxTokens  = 128
	defaultTemp       = 0.7
	defaultTopP       = 0.95
	probeMaxTokens    = 1
	candidateCountOne = 1
)

// GeminiClient is a lazily-initialized text-generation client. One instance
// is shared by all sessions; initialization is idempotent and retried on the
// next call if it never succeeded.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	models     []string
	timeout    time.Duration

	mu    sync.Mutex
	bound string // empty until initialization succeeds
}

// Option configures the GeminiClient.
type Option func(*GeminiClient)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *GeminiClient) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *GeminiClient) { c.httpClient = hc }
}

// WithModels overrides the candidate model list.
func WithModels(models []string) Option {
	return func(c *GeminiClient) { c.models = models }
}

// WithTimeout overrides the per-request wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.timeout = d }
}

// NewGeminiClient constructs the client. No network traffic happens until
// the first Generate call.
func NewGeminiClient(apiKey string, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 35 * time.Second},
		models:     PreferredModels,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BoundModel returns the model name initialization settled on, or "" while
// uninitialized. Diagnostic only.
func (c *GeminiClient) BoundModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// EnsureInitialized binds a model if none is bound yet. Safe for concurrent
// use; a failed attempt leaves the client uninitialized so the next call
// retries.
func (c *GeminiClient) EnsureInitialized(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound != "" {
		return true
	}
	if c.apiKey == "" {
		return false
	}
	for _, name := range c.models {
		if _, err := c.generateContent(ctx, name, "ping", probeMaxTokens); err != nil {
			log.Printf("gemini: model %s rejected: %v", name, err)
			continue
		}
		c.bound = name
		log.Printf("gemini: using model %s", name)
		return true
	}
	log.Printf("gemini: no candidate model accepted")
	return false
}

// Generate produces a completion for prompt. It never fails from the
// caller's perspective: configuration problems, timeouts and backend errors
// all come back as displayable strings. If the wall-clock budget expires the
// in-flight call is abandoned and a placeholder is returned immediately.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) string {
	resultCh := make(chan string, 1)
	// Deliberately detached from the timeout below: on expiry the request is
	// abandoned, not cancelled.
	genCtx := context.WithoutCancel(ctx)
	go func() {
		resultCh <- c.generateBlocking(genCtx, prompt)
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply := <-resultCh:
		return reply
	case <-timer.C:
		return TimeoutReply
	case <-ctx.Done():
		return TimeoutReply
	}
}

func (c *GeminiClient) generateBlocking(ctx context.Context, prompt string) string {
	if !c.EnsureInitialized(ctx) {
		return InitErrorReply
	}
	text, err := c.generateContent(ctx, c.BoundModel(), prompt, defaultMaxTokens)
	if err != nil {
		log.Printf("gemini: generate error: %v", err)
		return fmt.Sprintf("Error generating response: %v", err)
	}
	return text
}

// --- wire format (Gemini API uses camelCase field names) ---

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiGenConfig struct {
	CandidateCount  int     `json:"candidateCount,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type generateResponse struct {
	// Some gateway deployments flatten the reply into a bare text field.
	Text       string            `json:"text,omitempty"`
	Parts      []geminiPart      `json:"parts,omitempty"`
	Candidates []geminiCandidate `json:"candidates,omitempty"`

	raw json.RawMessage
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) generateContent(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	reqBody, _ := json.Marshal(generateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenConfig{
			CandidateCount:  candidateCountOne,
			MaxOutputTokens: maxTokens,
			Temperature:     defaultTemp,
			TopP:            defaultTopP,
		},
	})

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge geminiError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			return "", fmt.Errorf("gemini: %s (status %d)", ge.Error.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("gemini: status=%d body=%s", resp.StatusCode, string(body))
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	gr.raw = body
	return extractText(&gr), nil
}

// --- response text extraction ---

// extractor attempts to pull reply text from one known response shape.
type extractor struct {
	name string
	fn   func(*generateResponse) (string, bool)
}

// textExtractors are tried in order; the first hit wins. The backend has
// shipped several response shapes over time, so every known one is probed.
var textExtractors = []extractor{
	{"direct_text", func(r *generateResponse) (string, bool) {
		if r.Text != "" {
			return r.Text, true
		}
		return "", false
	}},
	{"top_level_parts", func(r *generateResponse) (string, bool) {
		return joinParts(r.Parts)
	}},
	{"candidate_parts", func(r *generateResponse) (string, bool) {
		for _, cand := range r.Candidates {
			if s, ok := joinParts(cand.Content.Parts); ok {
				return s, true
			}
		}
		return "", false
	}},
	{"raw_json", func(r *generateResponse) (string, bool) {
		if len(r.raw) > 0 {
			return string(r.raw), true
		}
		return "", false
	}},
}

func joinParts(parts []geminiPart) (string, bool) {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteString(p.Text)
	}
	if buf.Len() == 0 {
		return "", false
	}
	return buf.String(), true
}

func extractText(r *generateResponse) string {
	for _, ex := range textExtractors {
		if s, ok := ex.fn(r); ok {
			return s
		}
	}
	return ""
}
