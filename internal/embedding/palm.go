package embedding

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	palmBaseURL     = "https://generativelanguage.googleapis.com"
	palmModel       = "text-embedding-004"
	palmConcurrency = 8
)

// PaLMProvider calls the Google AI Studio embedContent endpoint once per text, concurrently.
type PaLMProvider struct {
	endpoint string
	http     *httpClient
}

type palmRequest struct {
	Content palmContent `json:"content"`
}

type palmContent struct {
	Parts []palmPart `json:"parts"`
}

type palmPart struct {
	Text string `json:"text"`
}

type palmResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func palmFactory(timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(SourcePaLM, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		base := s.APIURL
		if base == "" {
			base = palmBaseURL
		}
		endpoint, err := endpointURL(SourcePaLM, base, "/v1beta/models/"+palmModel+":embedContent")
		if err != nil {
			return nil, err
		}
		if s.APIKey == "" {
			return nil, notConfigured(SourcePaLM, "an API key")
		}
		u, _ := url.Parse(endpoint)
		q := u.Query()
		q.Set("key", s.APIKey)
		u.RawQuery = q.Encode()
		return &PaLMProvider{endpoint: u.String(), http: client}, nil
	}
}

func (p *PaLMProvider) Source() string { return SourcePaLM }
func (p *PaLMProvider) Model() string  { return "" }

func (p *PaLMProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	var resp palmResponse
	req := palmRequest{Content: palmContent{Parts: []palmPart{{Text: text}}}}
	if err := p.http.postJSON(ctx, p.endpoint, nil, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, badResponse(SourcePaLM, "response has no embedding values")
	}
	return resp.Embedding.Values, nil
}

// EmbedBatch issues one request per text. The first failure cancels the rest.
func (p *PaLMProvider) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(palmConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := p.Embed(gctx, text, isQuery)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
