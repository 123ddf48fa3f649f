// Package tts converts reply text to audio. The primary strategy is the
// Gemini generative voice model; a local espeak engine is the fallback. Both
// return raw audio bytes, caller decides delivery encoding.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// DefaultBaseURL is the Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultVoiceModel is the generative voice model used for synthesis.
const DefaultVoiceModel = "gemini-2.5-flash-preview-tts"

// GeminiSpeech synthesizes speech through the Gemini voice model. The model
// has been picky about request shape across versions, so a rejected request
// is retried with an alternative shape before giving up.
type GeminiSpeech struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GeminiOption configures GeminiSpeech.
type GeminiOption func(*GeminiSpeech)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) GeminiOption {
	return func(g *GeminiSpeech) { g.baseURL = url }
}

// WithModel overrides the voice model name.
func WithModel(model string) GeminiOption {
	return func(g *GeminiSpeech) { g.model = model }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) GeminiOption {
	return func(g *GeminiSpeech) { g.httpClient = hc }
}

// NewGeminiSpeech builds the cloud synthesizer.
func NewGeminiSpeech(apiKey string, opts ...GeminiOption) *GeminiSpeech {
	g := &GeminiSpeech{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultVoiceModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// --- wire format (camelCase per the Gemini API) ---

type speakRequest struct {
	Contents         []speakContent  `json:"contents"`
	GenerationConfig *speakGenConfig `json:"generationConfig,omitempty"`
}

type speakContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []speakPart `json:"parts"`
}

type speakPart struct {
	Text       string     `json:"text,omitempty"`
	InlineData *speakBlob `json:"inlineData,omitempty"`
}

type speakBlob struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data"` // base64
}

type speakGenConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type speakResponse struct {
	// Older gateway deployments surfaced audio at the top level.
	Audio      string           `json:"audio,omitempty"`
	Parts      []speakPart      `json:"parts,omitempty"`
	Candidates []speakCandidate `json:"candidates,omitempty"`
}

type speakCandidate struct {
	Content speakContent `json:"content"`
}

// Synthesize sends text to the voice model and extracts the audio payload.
func (g *GeminiSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini tts: API key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("gemini tts: empty text")
	}

	// Shapes tried in order: the documented role/parts form with AUDIO
	// modality, then the bare parts form some model versions expect.
	shapes := []speakRequest{
		{
			Contents:         []speakContent{{Role: "user", Parts: []speakPart{{Text: text}}}},
			GenerationConfig: &speakGenConfig{ResponseModalities: []string{"AUDIO"}},
		},
		{
			Contents: []speakContent{{Parts: []speakPart{{Text: text}}}},
		},
	}

	var lastErr error
	for _, shape := range shapes {
		audio, err := g.call(ctx, shape)
		if err == nil {
			return audio, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (g *GeminiSpeech) call(ctx context.Context, reqBody speakRequest) ([]byte, error) {
	payload, _ := json.Marshal(reqBody)
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini tts: status=%d body=%s", resp.StatusCode, string(body))
	}

	var sr speakResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("gemini tts: decode response: %w", err)
	}
	audio, ok := extractAudio(&sr)
	if !ok {
		return nil, fmt.Errorf("gemini tts: response has no audio content")
	}
	return audio, nil
}

// extractAudio probes the known audio payload locations in order: top-level
// audio field, top-level parts, then candidate content parts.
func extractAudio(r *speakResponse) ([]byte, bool) {
	if r.Audio != "" {
		if b, err := base64.StdEncoding.DecodeString(r.Audio); err == nil && len(b) > 0 {
			return b, true
		}
	}
	if b, ok := audioFromParts(r.Parts); ok {
		return b, true
	}
	for _, cand := range r.Candidates {
		if b, ok := audioFromParts(cand.Content.Parts); ok {
			return b, true
		}
	}
	return nil, false
}

func audioFromParts(parts []speakPart) ([]byte, bool) {
	for _, p := range parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		if b, err := base64.StdEncoding.DecodeString(p.InlineData.Data); err == nil && len(b) > 0 {
			return b, true
		}
	}
	return nil, false
}
