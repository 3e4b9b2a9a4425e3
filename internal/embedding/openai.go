package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const openAIMaxBatch = 2048

// openAIConfig describes one source speaking the OpenAI /v1/embeddings dialect.
type openAIConfig struct {
	source       string
	baseURL      string
	defaultModel string
	requireKey   bool
	requireModel bool
	// scoped sources partition their indexes by model.
	scoped bool
	// sendModel is false for servers that serve exactly one model and reject the field.
	sendModel bool
}

var openAISources = map[string]openAIConfig{
	SourceOpenAI: {
		source: SourceOpenAI, baseURL: "https://api.openai.com", defaultModel: "text-embedding-ada-002",
		requireKey: true, scoped: true, sendModel: true,
	},
	SourceMistral: {
		source: SourceMistral, baseURL: "https://api.mistral.ai", defaultModel: "mistral-embed",
		requireKey: true, scoped: true, sendModel: true,
	},
	SourceTogetherAI: {
		source: SourceTogetherAI, baseURL: "https://api.together.xyz",
		defaultModel: "togethercomputer/m2-bert-80M-32k-retrieval",
		requireKey:   true, scoped: true, sendModel: true,
	},
	SourceLlamaCpp: {source: SourceLlamaCpp},
	SourceVLLM:     {source: SourceVLLM, requireModel: true, scoped: true, sendModel: true},
}

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	cfg      openAIConfig
	endpoint string
	key      string
	model    string
	http     *httpClient
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type openAIResponse struct {
	Data []indexedEmbedding `json:"data"`
}

func openAIFactory(cfg openAIConfig, timeout time.Duration, limiter *rate.Limiter) Factory {
	client := newHTTPClient(cfg.source, timeout, limiter)
	return func(s SourceSettings) (Provider, error) {
		return newOpenAIProvider(cfg, s, client)
	}
}

func newOpenAIProvider(cfg openAIConfig, s SourceSettings, client *httpClient) (*OpenAIProvider, error) {
	base := s.APIURL
	if base == "" {
		base = cfg.baseURL
	}
	endpoint, err := endpointURL(cfg.source, base, "/v1/embeddings")
	if err != nil {
		return nil, err
	}
	if cfg.requireKey && s.APIKey == "" {
		return nil, notConfigured(cfg.source, "an API key")
	}
	model := s.Model
	if model == "" {
		model = cfg.defaultModel
	}
	if cfg.requireModel && model == "" {
		return nil, notConfigured(cfg.source, "a model")
	}
	return &OpenAIProvider{cfg: cfg, endpoint: endpoint, key: s.APIKey, model: model, http: client}, nil
}

func (p *OpenAIProvider) Source() string { return p.cfg.source }

func (p *OpenAIProvider) Model() string {
	if !p.cfg.scoped {
		return ""
	}
	return p.model
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	return embedOne(ctx, p, text, isQuery)
}

// EmbedBatch ignores isQuery; the OpenAI dialect has no query/document distinction.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	return inBatches(texts, openAIMaxBatch, func(batch []string) ([][]float32, error) {
		req := openAIRequest{Input: batch}
		if p.cfg.sendModel {
			req.Model = p.model
		}
		var resp openAIResponse
		if err := p.http.postJSON(ctx, p.endpoint, bearer(p.key), req, &resp); err != nil {
			return nil, err
		}
		if resp.Data == nil {
			return nil, badResponse(p.cfg.source, "response has no data array")
		}
		return orderByIndex(p.cfg.source, len(batch), resp.Data)
	})
}
