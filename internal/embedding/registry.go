package embedding

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SourceDefaults are configured values used when a request does not override them.
type SourceDefaults struct {
	APIKey            string
	APIURL            string
	Model             string
	RequestsPerSecond float64
}

// RegistryConfig configures the built-in sources.
type RegistryConfig struct {
	Sources        map[string]SourceDefaults
	Local          LocalConfig
	RequestTimeout time.Duration
	// CacheSize bounds the shared query cache; 0 disables it.
	CacheSize int
}

// Registry resolves a source name to a provider. It is built once at startup and safe for concurrent use
// once built.
type Registry struct {
	factories map[string]Factory
	defaults  map[string]SourceDefaults
	cache     *QueryCache
	local     *LocalProvider
	logger    *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger passed to the local provider and used for registry events.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry registers every built-in source.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		factories: make(map[string]Factory),
		defaults:  cfg.Sources,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.defaults == nil {
		r.defaults = map[string]SourceDefaults{}
	}
	if cfg.CacheSize > 0 {
		cache, err := NewQueryCache(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	limiter := func(source string) *rate.Limiter {
		return newLimiter(r.defaults[source].RequestsPerSecond)
	}
	timeout := cfg.RequestTimeout
	for source, oc := range openAISources {
		r.Register(source, openAIFactory(oc, timeout, limiter(source)))
	}
	r.Register(SourceCohere, cohereFactory(timeout, limiter(SourceCohere)))
	r.Register(SourceNomicAI, nomicFactory(timeout, limiter(SourceNomicAI)))
	r.Register(SourcePaLM, palmFactory(timeout, limiter(SourcePaLM)))
	r.Register(SourceOllama, ollamaFactory(timeout, limiter(SourceOllama)))
	r.Register(SourceExtras, extrasFactory(timeout, limiter(SourceExtras)))

	r.local = NewLocalProvider(cfg.Local, WithLocalLogger(r.logger.Named("local")))
	r.Register(SourceTransformers, func(SourceSettings) (Provider, error) { return r.local, nil })
	return r, nil
}

// Register adds or replaces the factory for source.
func (r *Registry) Register(source string, f Factory) {
	r.factories[source] = f
}

// Provider builds the provider for source, filling unset settings from the configured defaults.
func (r *Registry) Provider(source string, s SourceSettings) (Provider, error) {
	f, ok := r.factories[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	resolved := r.merge(source, s)
	p, err := f(resolved)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		return NewCachedProvider(p, r.cache, resolved), nil
	}
	return p, nil
}

// Sources returns the registered source names, sorted.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Local returns the in-process provider of the transformers source.
func (r *Registry) Local() *LocalProvider { return r.local }

// Close releases the local model.
func (r *Registry) Close() error {
	return r.local.Close()
}

func (r *Registry) merge(source string, s SourceSettings) SourceSettings {
	d := r.defaults[source]
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.APIURL == "" {
		s.APIURL = d.APIURL
	}
	if s.APIKey == "" {
		s.APIKey = d.APIKey
	}
	return s
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}
