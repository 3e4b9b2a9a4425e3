package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrProviderClosed is returned by a LocalProvider after Close.
var ErrProviderClosed = errors.New("embedding provider closed")

// LocalConfig selects the ONNX model used by the transformers source.
type LocalConfig struct {
	ModelName  string
	ModelPath  string
	Dimensions int
	MaxTokens  int
}

// session is one loaded model. Implementations need not be safe for concurrent use.
type session interface {
	Embed(text string) ([]float32, error)
	Close() error
}

type sessionLoader func(cfg LocalConfig) (session, error)

// LocalProvider runs the transformers source in process. The model is loaded on first use and owned by
// the provider until SwapModel or Close releases it. Inference is serialized.
type LocalProvider struct {
	mu     sync.Mutex
	cfg    LocalConfig
	sess   session
	closed bool
	load   sessionLoader
	logger *zap.Logger
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalLogger sets the logger used for model load and unload events.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(p *LocalProvider) { p.logger = l }
}

func withSessionLoader(load sessionLoader) LocalOption {
	return func(p *LocalProvider) { p.load = load }
}

// NewLocalProvider returns a provider for cfg without loading the model.
func NewLocalProvider(cfg LocalConfig, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{cfg: cfg, load: loadONNXSession, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) Source() string { return SourceTransformers }

func (p *LocalProvider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.ModelName
}

// Loaded reports whether a model session is currently held.
func (p *LocalProvider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess != nil
}

func (p *LocalProvider) Embed(ctx context.Context, text string, _ bool) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, err := p.sessionLocked()
	if err != nil {
		return nil, err
	}
	return sess.Embed(text)
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, err := p.sessionLocked()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := sess.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// SwapModel disposes the current model, if any, and loads cfg in its place.
func (p *LocalProvider) SwapModel(cfg LocalConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProviderClosed
	}
	if err := p.releaseLocked(); err != nil {
		return err
	}
	p.cfg = cfg
	_, err := p.sessionLocked()
	return err
}

// Close disposes the model. Further calls fail with ErrProviderClosed.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.releaseLocked()
}

func (p *LocalProvider) sessionLocked() (session, error) {
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.sess != nil {
		return p.sess, nil
	}
	if p.cfg.ModelPath == "" {
		return nil, notConfigured(SourceTransformers, "a model path")
	}
	sess, err := p.load(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", p.cfg.ModelName, err)
	}
	p.logger.Info("local embedding model loaded",
		zap.String("model", p.cfg.ModelName),
		zap.String("path", p.cfg.ModelPath))
	p.sess = sess
	return sess, nil
}

func (p *LocalProvider) releaseLocked() error {
	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	p.logger.Info("local embedding model released", zap.String("model", p.cfg.ModelName))
	if err != nil {
		return fmt.Errorf("release model %s: %w", p.cfg.ModelName, err)
	}
	return nil
}
