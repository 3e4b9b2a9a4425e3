package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

func benchVectors(n, dims int) []vector.StoredItem {
	items := make([]vector.StoredItem, n)
	for i := range items {
		v := make([]float32, dims)
		v[0] = float32(i) / float32(n)
		v[i%dims] += 1
		items[i] = vector.StoredItem{Vector: v, Metadata: models.Metadata{Hash: int64(i), Text: "chunk", Index: i}}
	}
	return items
}

func BenchmarkCosineSimilarity(b *testing.B) {
	x := benchVectors(2, 384)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = vector.CosineSimilarity(x[0].Vector, x[1].Vector)
	}
}

func BenchmarkIndexQuery(b *testing.B) {
	store, err := vector.NewStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	idx, err := store.Open(vector.PartitionKey{Source: "bench", CollectionID: "c"})
	if err != nil {
		b.Fatal(err)
	}
	if err := idx.Upsert(benchVectors(1000, 384)); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Query(query, 10)
	}
}

func BenchmarkHashProvider_Embed(b *testing.B) {
	p := embedding.NewHashProvider("bench", "", 384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Embed(ctx, "benchmark query text for embedding", true)
	}
}

type benchProviders struct{ p embedding.Provider }

func (b benchProviders) Provider(string, embedding.SourceSettings) (embedding.Provider, error) {
	return b.p, nil
}

func BenchmarkQueryMulti(b *testing.B) {
	store, err := vector.NewStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	m := collection.NewManager(store, benchProviders{embedding.NewHashProvider("bench", "", 128)})
	ctx := context.Background()

	ids := make([]string, 8)
	for c := range ids {
		ids[c] = fmt.Sprintf("c%d", c)
		items := make([]models.ChunkItem, 100)
		for i := range items {
			items[i] = models.ChunkItem{Hash: int64(i), Text: fmt.Sprintf("message %d about topic %d", i, c), Index: i}
		}
		req := collection.Request{CollectionID: ids[c], Source: "bench"}
		if err := m.Insert(ctx, req, items); err != nil {
			b.Fatal(err)
		}
	}
	req := collection.Request{Source: "bench"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.QueryMulti(ctx, req, ids, "message about topic", 10, 0)
	}
}
