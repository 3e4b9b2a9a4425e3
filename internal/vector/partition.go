// Package vector provides the durable nearest-neighbor index: one bbolt file per
// (source, collection, model) partition, with brute-force cosine search.
package vector

import (
	"github.com/hyperjump/kioku/internal/models"
)

// PartitionKey identifies one physical index. Model is empty for model-agnostic sources.
type PartitionKey struct {
	Source       string
	CollectionID string
	Model        string
}

// StoredItem is a vector with its metadata. ID is assigned by the store when empty.
type StoredItem struct {
	ID       string
	Vector   []float32
	Metadata models.Metadata
}

// ScoredItem is a query hit. Score is cosine similarity in [-1, 1].
type ScoredItem struct {
	Item  StoredItem
	Score float64
}

// MetadataPredicate selects items for deletion.
type MetadataPredicate func(models.Metadata) bool

// HashIn returns a predicate matching items whose hash is in hashes.
func HashIn(hashes []int64) MetadataPredicate {
	set := make(map[int64]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return func(m models.Metadata) bool {
		_, ok := set[m.Hash]
		return ok
	}
}
