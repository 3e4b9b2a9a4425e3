// Package embedding turns text into vectors through a local ONNX model or one of the remote embedding APIs.
package embedding

import "context"

// Source names accepted by the Registry.
const (
	SourceTransformers = "transformers"
	SourceOpenAI       = "openai"
	SourceMistral      = "mistral"
	SourceTogetherAI   = "togetherai"
	SourceLlamaCpp     = "llamacpp"
	SourceVLLM         = "vllm"
	SourceCohere       = "cohere"
	SourceNomicAI      = "nomicai"
	SourcePaLM         = "palm"
	SourceOllama       = "ollama"
	SourceExtras       = "extras"
)

// Provider produces embeddings for one source. EmbedBatch returns exactly one vector per input, in input
// order. isQuery selects the query side of asymmetric models; adapters that do not distinguish ignore it.
type Provider interface {
	Source() string
	// Model is the model scope used to partition indexes, or "" when the source is model-agnostic.
	Model() string
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// SourceSettings are the per-request overrides a caller may pass for a source.
type SourceSettings struct {
	Model     string
	APIURL    string
	APIKey    string
	KeepAlive bool
}

// Factory builds a provider for one request.
type Factory func(settings SourceSettings) (Provider, error)

// embedOne is the Embed implementation shared by batch-native adapters.
func embedOne(ctx context.Context, p Provider, text string, isQuery bool) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text}, isQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
