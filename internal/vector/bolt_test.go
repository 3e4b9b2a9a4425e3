package vector

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
	"go.etcd.io/bbolt"
)

func newTestIndex(t *testing.T) (*Store, *Index) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := store.Open(PartitionKey{Source: "transformers", CollectionID: "chat1"})
	if err != nil {
		t.Fatal(err)
	}
	return store, idx
}

func item(hash int64, text string, vec ...float32) StoredItem {
	return StoredItem{Vector: vec, Metadata: models.Metadata{Hash: hash, Text: text, Index: int(hash)}}
}

func TestIndex_UpsertListCount(t *testing.T) {
	_, idx := newTestIndex(t)
	if err := idx.Upsert([]StoredItem{item(1, "cat", 1, 0, 0), item(2, "dog", 0, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	items, err := idx.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	seen := map[int64]string{}
	for _, it := range items {
		if it.ID == "" {
			t.Error("item has no ID")
		}
		seen[it.Metadata.Hash] = it.Metadata.Text
	}
	if seen[1] != "cat" || seen[2] != "dog" {
		t.Errorf("ListAll metadata = %v", seen)
	}
	dim, err := idx.Dimension()
	if err != nil {
		t.Fatal(err)
	}
	if dim != 3 {
		t.Errorf("Dimension = %d, want 3", dim)
	}
}

func TestIndex_DuplicateHashesAreKept(t *testing.T) {
	_, idx := newTestIndex(t)
	_ = idx.Upsert([]StoredItem{item(1, "cat", 1, 0)})
	_ = idx.Upsert([]StoredItem{item(1, "cat", 1, 0)})
	n, _ := idx.Count()
	if n != 2 {
		t.Errorf("Count = %d, want 2 (no dedup by hash)", n)
	}
}

func TestIndex_Query(t *testing.T) {
	_, idx := newTestIndex(t)
	err := idx.Upsert([]StoredItem{
		item(1, "a", 1, 0, 0),
		item(2, "b", 0.9, 0.1, 0),
		item(3, "c", 0, 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := idx.Query([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.Metadata.Hash != 1 || results[1].Item.Metadata.Hash != 2 {
		t.Errorf("order = %d, %d", results[0].Item.Metadata.Hash, results[1].Item.Metadata.Hash)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores not descending")
	}

	all, err := idx.Query([]float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("topK larger than partition: got %d results, want 3", len(all))
	}
}

func TestIndex_QueryEmpty(t *testing.T) {
	_, idx := newTestIndex(t)
	results, err := idx.Query([]float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	_, idx := newTestIndex(t)
	if err := idx.Upsert([]StoredItem{item(1, "a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	var dm *DimensionMismatchError
	if err := idx.Upsert([]StoredItem{item(2, "b", 1, 0, 0)}); !errors.As(err, &dm) {
		t.Fatalf("Upsert error = %v, want DimensionMismatchError", err)
	}
	if _, err := idx.Query([]float32{1, 0, 0}, 1); !errors.As(err, &dm) {
		t.Fatalf("Query error = %v, want DimensionMismatchError", err)
	}
	n, _ := idx.Count()
	if n != 1 {
		t.Errorf("failed upsert must not write: Count = %d", n)
	}
}

func TestIndex_DeleteByMetadata(t *testing.T) {
	_, idx := newTestIndex(t)
	_ = idx.Upsert([]StoredItem{item(1, "a", 1, 0), item(2, "b", 0, 1), item(3, "c", 1, 1)})

	n, err := idx.DeleteByMetadata(HashIn([]int64{1, 3, 99}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	items, _ := idx.ListAll()
	if len(items) != 1 || items[0].Metadata.Hash != 2 {
		t.Errorf("remaining = %+v", items)
	}

	n, err = idx.DeleteByMetadata(HashIn([]int64{42}))
	if err != nil {
		t.Fatalf("deleting a missing hash should be a no-op, got %v", err)
	}
	if n != 0 {
		t.Errorf("deleted %d, want 0", n)
	}
}

func TestUpdate_RollbackDiscards(t *testing.T) {
	_, idx := newTestIndex(t)
	u, err := idx.BeginUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Upsert([]StoredItem{item(1, "a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := u.Rollback(); err != nil {
		t.Fatal(err)
	}
	if err := u.Upsert(nil); !errors.Is(err, ErrUpdateFinished) {
		t.Errorf("Upsert after Rollback = %v, want ErrUpdateFinished", err)
	}
	n, _ := idx.Count()
	if n != 0 {
		t.Errorf("Count = %d after rollback", n)
	}
}

func TestUpdate_CommitGroupsWrites(t *testing.T) {
	_, idx := newTestIndex(t)
	u, err := idx.BeginUpdate()
	if err != nil {
		t.Fatal(err)
	}
	_ = u.Upsert([]StoredItem{item(1, "a", 1, 0)})
	_ = u.Upsert([]StoredItem{item(2, "b", 0, 1)})
	if _, err := u.DeleteWhere(HashIn([]int64{1})); err != nil {
		t.Fatal(err)
	}
	if err := u.Commit(); err != nil {
		t.Fatal(err)
	}
	items, _ := idx.ListAll()
	if len(items) != 1 || items[0].Metadata.Hash != 2 {
		t.Errorf("items = %+v", items)
	}
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	key := PartitionKey{Source: "openai", CollectionID: "chat1", Model: "text-embedding-3-small"}

	store, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := store.Open(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert([]StoredItem{item(5, "persist me", 0.5, 0.5)}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store2, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	idx2, err := store2.Open(key)
	if err != nil {
		t.Fatal(err)
	}
	items, err := idx2.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Metadata.Text != "persist me" {
		t.Fatalf("items after reopen = %+v", items)
	}
	if items[0].Vector[0] != 0.5 || items[0].Vector[1] != 0.5 {
		t.Errorf("vector after reopen = %v", items[0].Vector)
	}
}

func TestIndex_ClosedAfterDrop(t *testing.T) {
	store, idx := newTestIndex(t)
	if err := store.Drop(idx.Key()); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Count(); !errors.Is(err, ErrIndexClosed) {
		t.Errorf("Count on dropped index = %v, want ErrIndexClosed", err)
	}
}

func TestOpen_CorruptedFile(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short garbage", []byte("this is not a database")},
		{"page sized garbage", bytes.Repeat([]byte{0xAB}, 4*4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			store, err := NewStore(root)
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()
			key := PartitionKey{Source: "transformers", CollectionID: "broken"}
			dir, _ := store.Dir(key)
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(dir, IndexFileName), tt.data, 0600); err != nil {
				t.Fatal(err)
			}

			_, err = store.Open(key)
			if !IsCorrupted(err) {
				t.Fatalf("Open error = %v, want corrupted", err)
			}
			var ce *CorruptedIndexError
			if !errors.As(err, &ce) || ce.Path != filepath.Join(dir, IndexFileName) {
				t.Errorf("error does not carry the partition path: %v", err)
			}
		})
	}
}

func TestIndex_CorruptedRecord(t *testing.T) {
	_, idx := newTestIndex(t)
	_ = idx.Upsert([]StoredItem{item(1, "a", 1, 0)})
	err := idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Put([]byte("bad"), []byte{0xff, 0xff, 0xff, 0x7f, 1})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.ListAll(); !IsCorrupted(err) {
		t.Errorf("ListAll error = %v, want corrupted", err)
	}
	if _, err := idx.Query([]float32{1, 0}, 1); !IsCorrupted(err) {
		t.Errorf("Query error = %v, want corrupted", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	in := StoredItem{ID: "id-1", Vector: []float32{0.25, -1, 3.5}, Metadata: models.Metadata{Hash: -12, Text: "héllo", Index: 4}}
	data, err := encodeItem(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeItem([]byte(in.ID), data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Metadata != in.Metadata || len(out.Vector) != 3 || out.Vector[2] != 3.5 {
		t.Errorf("round trip = %+v", out)
	}
}
