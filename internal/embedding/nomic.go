package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	nomicMaxBatch = 500
	nomicBaseURL  = "https://api-atlas.nomic.ai"
	nomicModel    = "nomic-embed-text-v1.5"
)

// NomicProvider calls the Nomic Atlas text embedding API with a fixed model.
type NomicProvider struct {
	endpoint string
	key      string
	http     *httpClient
}

type nomicRequest struct {
	Texts    []string `json:"texts"`
	Model    string   `json:"model"`
	TaskType string   `json:"task_type"`
}

type nomicResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func nomicFactory(timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(SourceNomicAI, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		base := s.APIURL
		if base == "" {
			base = nomicBaseURL
		}
		endpoint, err := endpointURL(SourceNomicAI, base, "/v1/embedding/text")
		if err != nil {
			return nil, err
		}
		if s.APIKey == "" {
			return nil, notConfigured(SourceNomicAI, "an API key")
		}
		return &NomicProvider{endpoint: endpoint, key: s.APIKey, http: client}, nil
	}
}

func (p *NomicProvider) Source() string { return SourceNomicAI }
func (p *NomicProvider) Model() string  { return "" }

func (p *NomicProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	return embedOne(ctx, p, text, isQuery)
}

func (p *NomicProvider) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	return inBatches(texts, nomicMaxBatch, func(batch []string) ([][]float32, error) {
		req := nomicRequest{Texts: batch, Model: nomicModel, TaskType: inputType(isQuery)}
		var resp nomicResponse
		if err := p.http.postJSON(ctx, p.endpoint, bearer(p.key), req, &resp); err != nil {
			return nil, err
		}
		return checkCount(SourceNomicAI, len(batch), resp.Embeddings)
	})
}
