package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// OllamaProvider calls a local Ollama server once per text, sequentially.
type OllamaProvider struct {
	endpoint  string
	model     string
	keepAlive bool
	http      *httpClient
}

type ollamaRequest struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	KeepAlive *int   `json:"keep_alive,omitempty"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func ollamaFactory(timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(SourceOllama, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		endpoint, err := endpointURL(SourceOllama, s.APIURL, "/api/embeddings")
		if err != nil {
			return nil, err
		}
		if s.Model == "" {
			return nil, notConfigured(SourceOllama, "a model")
		}
		return &OllamaProvider{endpoint: endpoint, model: s.Model, keepAlive: s.KeepAlive, http: client}, nil
	}
}

func (p *OllamaProvider) Source() string { return SourceOllama }
func (p *OllamaProvider) Model() string  { return p.model }

func (p *OllamaProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	req := ollamaRequest{Prompt: text, Model: p.model}
	if p.keepAlive {
		forever := -1
		req.KeepAlive = &forever
	}
	var resp ollamaResponse
	if err := p.http.postJSON(ctx, p.endpoint, nil, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, badResponse(SourceOllama, "response has no embedding")
	}
	return resp.Embedding, nil
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, text, isQuery)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
