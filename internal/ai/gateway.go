package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rpgscribe/rpgscribe/internal/types"
)

// Gateway is an HTTP client for a model gateway exposing speech-to-text,
// text generation and speech synthesis. Vendor specifics stay behind the
// gateway; this client only speaks its JSON surface.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGateway creates a gateway client.
func NewGateway(baseURL, apiKey string) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Name identifies the provider in logs.
func (g *Gateway) Name() string { return "gateway" }

// Transcribe uploads an audio file with the transcription prompt and
// returns the model's raw text output.
func (g *Gateway) Transcribe(ctx context.Context, audioPath, prompt string, cfg GenerationConfig) (Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Response{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Response{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return Response{}, fmt.Errorf("read audio: %w", err)
	}
	if err := w.WriteField("prompt", prompt); err != nil {
		return Response{}, err
	}
	if err := w.WriteField("model", cfg.Model); err != nil {
		return Response{}, err
	}
	if err := w.Close(); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return g.do(req)
}

// Generate sends ordered content blocks plus a system instruction and
// returns the model's text.
func (g *Gateway) Generate(ctx context.Context, contents []string, systemInstruction string, cfg GenerationConfig) (Response, error) {
	payload := map[string]any{
		"model":       cfg.Model,
		"system":      systemInstruction,
		"contents":    contents,
		"temperature": cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		payload["max_tokens"] = cfg.MaxTokens
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/generate", bytes.NewReader(raw))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req)
}

// Convert sends the multi-speaker synthesis inputs in one request and
// streams back the audio.
func (g *Gateway) Convert(ctx context.Context, inputs []SynthesisInput) (io.ReadCloser, error) {
	raw, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/audio/speech", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}
	return resp.Body, nil
}

func (g *Gateway) authorize(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

// do runs a text-producing request and decodes the {"text": ...} envelope.
func (g *Gateway) do(req *http.Request) (Response, error) {
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: %v", types.ErrUnrecognizedResponse, err)
	}
	return Response{Text: out.Text}, nil
}
