package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/kioku/pkg/utils"
)

// HashProvider is a deterministic bag-of-words embedder for tests and offline use. Texts sharing words
// score higher than texts that do not; identical texts get identical vectors.
type HashProvider struct {
	source     string
	model      string
	dimensions int
}

// NewHashProvider returns a provider reporting source and model, producing vectors of the given size.
func NewHashProvider(source, model string, dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{source: source, model: model, dimensions: dimensions}
}

func (p *HashProvider) Source() string { return p.source }
func (p *HashProvider) Model() string  { return p.model }

func (p *HashProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, p.dimensions)
	for _, w := range SplitWords(text) {
		h := HashString(w)
		emb[h%p.dimensions] += 1
		// A second, signed bucket keeps unrelated words from colliding into identical vectors.
		emb[(h/p.dimensions)%p.dimensions] += float32(math.Sin(float64(h))) * 0.1
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text, isQuery)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
