package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ExtrasProvider calls the embeddings endpoint of an extras server. The key is optional.
type ExtrasProvider struct {
	endpoint string
	key      string
	http     *httpClient
}

type extrasRequest struct {
	Text []string `json:"text"`
}

type extrasResponse struct {
	Embedding [][]float32 `json:"embedding"`
}

func extrasFactory(timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(SourceExtras, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		endpoint, err := endpointURL(SourceExtras, s.APIURL, "/api/embeddings/compute")
		if err != nil {
			return nil, err
		}
		return &ExtrasProvider{endpoint: endpoint, key: s.APIKey, http: client}, nil
	}
}

func (p *ExtrasProvider) Source() string { return SourceExtras }
func (p *ExtrasProvider) Model() string  { return "" }

func (p *ExtrasProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	return embedOne(ctx, p, text, isQuery)
}

func (p *ExtrasProvider) EmbedBatch(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var resp extrasResponse
	if err := p.http.postJSON(ctx, p.endpoint, bearer(p.key), extrasRequest{Text: texts}, &resp); err != nil {
		return nil, err
	}
	return checkCount(SourceExtras, len(texts), resp.Embedding)
}
