package collection

import (
	"context"
	"sort"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Query embeds searchText in query mode and returns up to topK items scoring at least threshold, best
// first. topK 0 selects the configured default.
func (m *Manager) Query(ctx context.Context, req Request, searchText string, topK int, threshold float64) (models.QueryResult, error) {
	if err := validateCollection(req.CollectionID); err != nil {
		return models.QueryResult{}, err
	}
	topK, err := m.validateQuery(searchText, topK)
	if err != nil {
		return models.QueryResult{}, err
	}
	provider, err := m.providers.Provider(req.Source, req.Settings)
	if err != nil {
		return models.QueryResult{}, err
	}
	vec, err := provider.Embed(ctx, searchText, true)
	if err != nil {
		return models.QueryResult{}, err
	}

	hits, err := m.queryPartition(m.partitionKey(req, provider), vec, topK)
	if err != nil {
		return models.QueryResult{}, err
	}
	result := models.NewQueryResult()
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		result.Add(h.Item.Metadata)
	}
	return result, nil
}

// taggedHit is a hit remembered with the collection it came from. col and rank order ties.
type taggedHit struct {
	collection string
	col        int
	rank       int
	vector.ScoredItem
}

// QueryMulti ranks the hits of several collections together and keeps the global top-K. The query is
// embedded once. Collections that contribute no surviving hit are absent from the result; duplicate
// ids are queried once.
func (m *Manager) QueryMulti(ctx context.Context, req Request, collectionIDs []string, searchText string, topK int, threshold float64) (models.MultiQueryResult, error) {
	if len(collectionIDs) == 0 {
		return nil, badRequest("collectionIds must be a non-empty array")
	}
	ids := make([]string, 0, len(collectionIDs))
	seen := make(map[string]struct{}, len(collectionIDs))
	for _, id := range collectionIDs {
		if err := validateCollection(id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	topK, err := m.validateQuery(searchText, topK)
	if err != nil {
		return nil, err
	}
	provider, err := m.providers.Provider(req.Source, req.Settings)
	if err != nil {
		return nil, err
	}
	vec, err := provider.Embed(ctx, searchText, true)
	if err != nil {
		return nil, err
	}

	perCollection := make([][]vector.ScoredItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := m.partitionKey(Request{CollectionID: id, Source: req.Source}, provider)
			hits, err := m.queryPartition(key, vec, topK)
			if err != nil {
				return err
			}
			perCollection[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []taggedHit
	for col, hits := range perCollection {
		for rank, h := range hits {
			merged = append(merged, taggedHit{collection: ids[col], col: col, rank: rank, ScoredItem: h})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.col != b.col {
			return a.col < b.col
		}
		return a.rank < b.rank
	})

	out := make(models.MultiQueryResult)
	kept := 0
	for _, h := range merged {
		if kept == topK {
			break
		}
		if h.Score < threshold {
			continue
		}
		r, ok := out[h.collection]
		if !ok {
			r = models.NewQueryResult()
		}
		r.Add(h.Item.Metadata)
		out[h.collection] = r
		kept++
	}
	m.logger.Debug("multi-collection query",
		zap.Int("collections", len(ids)),
		zap.Int("candidates", len(merged)),
		zap.Int("returned", kept))
	return out, nil
}

func (m *Manager) queryPartition(key vector.PartitionKey, vec []float32, topK int) ([]vector.ScoredItem, error) {
	var hits []vector.ScoredItem
	err := m.withRecovery(key, func(idx *vector.Index) error {
		var err error
		hits, err = idx.Query(vec, topK)
		return err
	})
	return hits, err
}

func (m *Manager) validateQuery(searchText string, topK int) (int, error) {
	if searchText == "" {
		return 0, badRequest("searchText is required")
	}
	if topK == 0 {
		topK = m.defaultTopK
	}
	if topK < 0 {
		return 0, badRequest("topK must be positive, got %d", topK)
	}
	return topK, nil
}
