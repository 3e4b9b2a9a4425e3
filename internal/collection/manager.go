// Package collection keeps per-collection vector indexes in sync with caller-supplied chunks: it embeds
// inserts in batches, answers single and multi-collection queries and regenerates corrupted partitions.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
	"go.uber.org/zap"
)

// Defaults applied when a Manager option is not given.
const (
	DefaultBatchSize        = 10
	DefaultTopK             = 10
	DefaultQueryConcurrency = 8
)

// ErrBadRequest is returned for missing or malformed parameters, before the store or a provider is touched.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Providers resolves a source name to an embedding provider. *embedding.Registry implements it.
type Providers interface {
	Provider(source string, settings embedding.SourceSettings) (embedding.Provider, error)
}

// Request addresses one collection through one embedding source.
type Request struct {
	CollectionID string
	Source       string
	Settings     embedding.SourceSettings
}

// Manager implements the collection operations on top of a vector.Store.
type Manager struct {
	store       *vector.Store
	providers   Providers
	logger      *zap.Logger
	batchSize   int
	defaultTopK int
	concurrency int
	modelScopes bool

	writersMu sync.Mutex
	writers   map[vector.PartitionKey]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBatchSize sets how many chunks are embedded and committed together on insert.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithDefaultTopK sets the topK used when a query passes 0.
func WithDefaultTopK(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.defaultTopK = n
		}
	}
}

// WithQueryConcurrency bounds how many partitions a multi-collection query reads at once.
func WithQueryConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithModelScopes controls whether partitions are split by model. When disabled every model of a
// source shares one partition per collection.
func WithModelScopes(enabled bool) Option {
	return func(m *Manager) { m.modelScopes = enabled }
}

// NewManager returns a Manager over store using providers for embeddings.
func NewManager(store *vector.Store, providers Providers, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		providers:   providers,
		logger:      zap.NewNop(),
		batchSize:   DefaultBatchSize,
		defaultTopK: DefaultTopK,
		concurrency: DefaultQueryConcurrency,
		modelScopes: true,
		writers:     make(map[vector.PartitionKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ScopesEnabled reports whether partitions are split by model.
func (m *Manager) ScopesEnabled() bool { return m.modelScopes }

// InsertOption configures one Insert call.
type InsertOption func(*insertOptions)

type insertOptions struct {
	progress func(done, total int)
}

// WithProgress reports the number of committed chunks after every batch.
func WithProgress(fn func(done, total int)) InsertOption {
	return func(o *insertOptions) { o.progress = fn }
}

// Insert embeds items in document mode and appends them to the collection, one transaction per batch,
// in caller order. When a batch fails the batches before it stay committed.
func (m *Manager) Insert(ctx context.Context, req Request, items []models.ChunkItem, opts ...InsertOption) error {
	if err := validateCollection(req.CollectionID); err != nil {
		return err
	}
	if items == nil {
		return badRequest("items must be an array")
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return badRequest("%v", err)
		}
	}
	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(items) == 0 {
		return nil
	}

	provider, err := m.providers.Provider(req.Source, req.Settings)
	if err != nil {
		return err
	}
	key := m.partitionKey(req, provider)

	unlock := m.lockWriter(key)
	defer unlock()

	// Embeddings survive a regeneration retry so the provider is not asked twice for the same batch.
	embedded := make([][][]float32, (len(items)+m.batchSize-1)/m.batchSize)
	err = m.withRecovery(key, func(idx *vector.Index) error {
		done := 0
		for b, start := 0, 0; start < len(items); b, start = b+1, start+m.batchSize {
			end := min(start+m.batchSize, len(items))
			batch := items[start:end]

			if embedded[b] == nil {
				vecs, err := m.embedDocuments(ctx, provider, batch)
				if err != nil {
					return err
				}
				embedded[b] = vecs
			}
			if err := upsertBatch(idx, batch, embedded[b]); err != nil {
				return err
			}
			done += len(batch)
			if o.progress != nil {
				o.progress(done, len(items))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Debug("inserted items",
		zap.String("collection", req.CollectionID),
		zap.String("source", req.Source),
		zap.Int("count", len(items)))
	return nil
}

func (m *Manager) embedDocuments(ctx context.Context, p embedding.Provider, batch []models.ChunkItem) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.Text
	}
	vecs, err := p.EmbedBatch(ctx, texts, false)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, &embedding.RequestError{
			Source:  p.Source(),
			Message: fmt.Sprintf("got %d embeddings for %d inputs", len(vecs), len(batch)),
		}
	}
	return vecs, nil
}

func upsertBatch(idx *vector.Index, batch []models.ChunkItem, vecs [][]float32) error {
	stored := make([]vector.StoredItem, len(batch))
	for i, it := range batch {
		stored[i] = vector.StoredItem{Vector: vecs[i], Metadata: it.Metadata()}
	}
	u, err := idx.BeginUpdate()
	if err != nil {
		return err
	}
	if err := u.Upsert(stored); err != nil {
		_ = u.Rollback()
		return err
	}
	return u.Commit()
}

// ListHashes returns the hash of every stored item, duplicates included, in no particular order.
func (m *Manager) ListHashes(ctx context.Context, req Request) ([]int64, error) {
	if err := validateCollection(req.CollectionID); err != nil {
		return nil, err
	}
	provider, err := m.providers.Provider(req.Source, req.Settings)
	if err != nil {
		return nil, err
	}
	key := m.partitionKey(req, provider)

	hashes := []int64{}
	err = m.withRecovery(key, func(idx *vector.Index) error {
		items, err := idx.ListAll()
		if err != nil {
			return err
		}
		hashes = hashes[:0]
		for _, it := range items {
			hashes = append(hashes, it.Metadata.Hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// Delete removes every item whose hash is in hashes. Unknown hashes are ignored.
func (m *Manager) Delete(ctx context.Context, req Request, hashes []int64) error {
	if err := validateCollection(req.CollectionID); err != nil {
		return err
	}
	if hashes == nil {
		return badRequest("hashes must be an array")
	}
	if len(hashes) == 0 {
		return nil
	}
	provider, err := m.providers.Provider(req.Source, req.Settings)
	if err != nil {
		return err
	}
	key := m.partitionKey(req, provider)

	unlock := m.lockWriter(key)
	defer unlock()

	var removed int
	err = m.withRecovery(key, func(idx *vector.Index) error {
		n, err := idx.DeleteByMetadata(vector.HashIn(hashes))
		removed = n
		return err
	})
	if err != nil {
		return err
	}
	m.logger.Debug("deleted items",
		zap.String("collection", req.CollectionID),
		zap.Int("requested", len(hashes)),
		zap.Int("removed", removed))
	return nil
}

// Purge deletes every partition of collectionID across all sources and models.
func (m *Manager) Purge(ctx context.Context, collectionID string) error {
	if err := validateCollection(collectionID); err != nil {
		return err
	}
	removed, err := m.store.PurgeCollection(collectionID)
	if err != nil {
		return err
	}
	m.logger.Info("purged collection", zap.String("collection", collectionID), zap.Strings("paths", removed))
	return nil
}

// PurgeAll deletes every partition.
func (m *Manager) PurgeAll(ctx context.Context) error {
	return m.store.PurgeAll()
}

func (m *Manager) partitionKey(req Request, p embedding.Provider) vector.PartitionKey {
	key := vector.PartitionKey{Source: req.Source, CollectionID: req.CollectionID}
	if m.modelScopes {
		key.Model = p.Model()
	}
	return key
}

// lockWriter serializes writers per partition so concurrent inserts cannot interleave their batches.
func (m *Manager) lockWriter(key vector.PartitionKey) func() {
	m.writersMu.Lock()
	mu, ok := m.writers[key]
	if !ok {
		mu = &sync.Mutex{}
		m.writers[key] = mu
	}
	m.writersMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func validateCollection(id string) error {
	if id == "" {
		return badRequest("collectionId is required")
	}
	if vector.SanitizeSegment(id) == "" {
		return badRequest("collectionId %q is not a usable name", id)
	}
	return nil
}
