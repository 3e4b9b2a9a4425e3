package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	cohereMaxBatch = 96
	cohereBaseURL  = "https://api.cohere.ai"
)

// CohereProvider calls the Cohere embed API. The model is part of the partition scope.
type CohereProvider struct {
	endpoint string
	key      string
	model    string
	http     *httpClient
}

type cohereRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Truncate  string   `json:"truncate"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func cohereFactory(timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(SourceCohere, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		base := s.APIURL
		if base == "" {
			base = cohereBaseURL
		}
		endpoint, err := endpointURL(SourceCohere, base, "/v1/embed")
		if err != nil {
			return nil, err
		}
		if s.APIKey == "" {
			return nil, notConfigured(SourceCohere, "an API key")
		}
		if s.Model == "" {
			return nil, notConfigured(SourceCohere, "a model")
		}
		return &CohereProvider{endpoint: endpoint, key: s.APIKey, model: s.Model, http: client}, nil
	}
}

func (p *CohereProvider) Source() string { return SourceCohere }
func (p *CohereProvider) Model() string  { return p.model }

func (p *CohereProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	return embedOne(ctx, p, text, isQuery)
}

func (p *CohereProvider) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	return inBatches(texts, cohereMaxBatch, func(batch []string) ([][]float32, error) {
		req := cohereRequest{Texts: batch, Model: p.model, InputType: inputType(isQuery), Truncate: "END"}
		var resp cohereResponse
		if err := p.http.postJSON(ctx, p.endpoint, bearer(p.key), req, &resp); err != nil {
			return nil, err
		}
		return checkCount(SourceCohere, len(batch), resp.Embeddings)
	})
}

func inputType(isQuery bool) string {
	if isQuery {
		return "search_query"
	}
	return "search_document"
}
