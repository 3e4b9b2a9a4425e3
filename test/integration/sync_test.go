// Package integration exercises the store, the embedding registry and the collection manager together
// against real partition files.
package integration

import (
	"context"
	"testing"

	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

const source = "hash"

func newManager(t *testing.T, root string) (*collection.Manager, *vector.Store) {
	t.Helper()
	store, err := vector.NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	registry, err := embedding.NewRegistry(embedding.RegistryConfig{CacheSize: 32})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	registry.Register(source, func(s embedding.SourceSettings) (embedding.Provider, error) {
		return embedding.NewHashProvider(source, s.Model, 64), nil
	})
	return collection.NewManager(store, registry, collection.WithBatchSize(2)), store
}

// syncChat brings the collection in line with chat the way a client does: list stored hashes, insert
// what is missing and delete what is gone.
func syncChat(ctx context.Context, t *testing.T, m *collection.Manager, req collection.Request, chat []models.ChunkItem) {
	t.Helper()
	stored, err := m.ListHashes(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	have := make(map[int64]bool, len(stored))
	for _, h := range stored {
		have[h] = true
	}
	want := make(map[int64]bool, len(chat))
	var missing []models.ChunkItem
	for _, c := range chat {
		want[c.Hash] = true
		if !have[c.Hash] {
			missing = append(missing, c)
		}
	}
	var stale []int64
	for _, h := range stored {
		if !want[h] {
			stale = append(stale, h)
		}
	}
	if len(missing) > 0 {
		if err := m.Insert(ctx, req, missing); err != nil {
			t.Fatal(err)
		}
	}
	if len(stale) > 0 {
		if err := m.Delete(ctx, req, stale); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIntegration_IncrementalSync(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	req := collection.Request{CollectionID: "chat-1", Source: source}

	chat := []models.ChunkItem{
		{Hash: 101, Text: "we should deploy on friday", Index: 0},
		{Hash: 102, Text: "no deploys on friday please", Index: 1},
		{Hash: 103, Text: "lunch is at noon", Index: 2},
	}
	m, _ := newManager(t, root)
	syncChat(ctx, t, m, req, chat)

	// The user edits message 102 and adds one more.
	chat[1] = models.ChunkItem{Hash: 202, Text: "fine, deploy on monday", Index: 1}
	chat = append(chat, models.ChunkItem{Hash: 104, Text: "monday deploy confirmed", Index: 3})
	syncChat(ctx, t, m, req, chat)

	hashes, err := m.ListHashes(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[int64]bool)
	for _, h := range hashes {
		got[h] = true
	}
	for _, h := range []int64{101, 202, 103, 104} {
		if !got[h] {
			t.Errorf("hash %d missing after sync: %v", h, hashes)
		}
	}
	if got[102] || len(hashes) != 4 {
		t.Errorf("unexpected hashes after sync: %v", hashes)
	}

	result, err := m.Query(ctx, req, "monday deploy confirmed", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hashes) != 1 || result.Hashes[0] != 104 {
		t.Errorf("query hashes = %v, want [104]", result.Hashes)
	}
}

func TestIntegration_PersistsAcrossRestart(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	req := collection.Request{CollectionID: "chat-2", Source: source}

	m, store := newManager(t, root)
	if err := m.Insert(ctx, req, []models.ChunkItem{
		{Hash: 1, Text: "remember the milk", Index: 0},
		{Hash: 2, Text: "call the plumber", Index: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	m2, _ := newManager(t, root)
	result, err := m2.Query(ctx, req, "remember the milk", 5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hashes) == 0 || result.Hashes[0] != 1 {
		t.Errorf("query after restart = %v, want 1 first", result.Hashes)
	}
	if result.Metadata[0].Text != "remember the milk" {
		t.Errorf("metadata text = %q", result.Metadata[0].Text)
	}
}
