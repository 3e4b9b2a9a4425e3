package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kioku/internal/models"
	"go.etcd.io/bbolt"
)

// IndexFileName is the name of the bbolt file inside a partition directory.
const IndexFileName = "index.db"

// minIndexFileSize is the size of the two bbolt meta pages at the smallest supported page size.
// A non-empty file smaller than this cannot be a bbolt database.
const minIndexFileSize = 2 * 4096

var (
	bucketItems = []byte("items")
	bucketMeta  = []byte("meta")

	keyDimension  = []byte("dimension")
	keySource     = []byte("source")
	keyCollection = []byte("collection")
	keyModel      = []byte("model")
	keyCreatedAt  = []byte("created_at")
)

// Index is one partition. All methods are safe for concurrent use; bbolt serializes writers and the
// read/write lock keeps close exclusive with in-flight operations.
type Index struct {
	key    PartitionKey
	path   string
	db     *bbolt.DB
	mu     sync.RWMutex
	closed bool
}

// openIndex opens or creates the bbolt file at path. Unparseable files yield a CorruptedIndexError.
func openIndex(path string, key PartitionKey) (idx *Index, err error) {
	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 && info.Size() < minIndexFileSize {
		return nil, corrupted(path, fmt.Errorf("file is %d bytes, too small for an index", info.Size()))
	}

	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = corrupted(path, fmt.Errorf("panic while opening: %v", r))
		}
	}()

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if isBoltCorruption(err) {
			return nil, corrupted(path, err)
		}
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketItems); err != nil {
			return fmt.Errorf("create items bucket: %w", err)
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if meta.Get(keyCreatedAt) != nil {
			return nil
		}
		for k, v := range map[string]string{
			string(keySource):     key.Source,
			string(keyCollection): key.CollectionID,
			string(keyModel):      key.Model,
			string(keyCreatedAt):  time.Now().UTC().Format(time.RFC3339),
		} {
			if err := meta.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		if errors.Is(err, bbolt.ErrIncompatibleValue) {
			return nil, corrupted(path, err)
		}
		return nil, fmt.Errorf("initialize index %s: %w", path, err)
	}

	return &Index{key: key, path: path, db: db}, nil
}

// Key returns the partition key.
func (idx *Index) Key() PartitionKey { return idx.key }

// Path returns the bbolt file path.
func (idx *Index) Path() string { return idx.path }

// Upsert appends items in a single transaction.
func (idx *Index) Upsert(items []StoredItem) error {
	u, err := idx.BeginUpdate()
	if err != nil {
		return err
	}
	if err := u.Upsert(items); err != nil {
		_ = u.Rollback()
		return err
	}
	return u.Commit()
}

// DeleteByMetadata removes every item whose metadata matches pred and returns how many were removed.
// Matching nothing is not an error.
func (idx *Index) DeleteByMetadata(pred MetadataPredicate) (int, error) {
	u, err := idx.BeginUpdate()
	if err != nil {
		return 0, err
	}
	n, err := u.DeleteWhere(pred)
	if err != nil {
		_ = u.Rollback()
		return 0, err
	}
	return n, u.Commit()
}

// ListAll returns every stored item.
func (idx *Index) ListAll() ([]StoredItem, error) {
	var items []StoredItem
	err := idx.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(k, v []byte) error {
			item, err := decodeItem(k, v)
			if err != nil {
				return corrupted(idx.path, err)
			}
			items = append(items, item)
			return nil
		})
	})
	return items, err
}

// Count returns the number of stored items.
func (idx *Index) Count() (int, error) {
	var n int
	err := idx.view(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketItems).Stats().KeyN
		return nil
	})
	return n, err
}

// Dimension returns the vector dimension fixed by the first upsert, or 0 for an empty partition.
func (idx *Index) Dimension() (int, error) {
	var dim int
	err := idx.view(func(tx *bbolt.Tx) error {
		dim = readDimension(tx)
		return nil
	})
	return dim, err
}

// Query returns up to topK items ranked by cosine similarity, descending.
func (idx *Index) Query(query []float32, topK int) ([]ScoredItem, error) {
	if topK <= 0 {
		return nil, nil
	}
	var scored []ScoredItem
	err := idx.view(func(tx *bbolt.Tx) error {
		dim := readDimension(tx)
		if dim == 0 {
			return nil
		}
		if len(query) != dim {
			return &DimensionMismatchError{Expected: dim, Actual: len(query)}
		}
		return tx.Bucket(bucketItems).ForEach(func(k, v []byte) error {
			item, err := decodeItem(k, v)
			if err != nil {
				return corrupted(idx.path, err)
			}
			scored = append(scored, ScoredItem{Item: item, Score: CosineSimilarity(query, item.Vector)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// BeginUpdate starts a write transaction. The caller must Commit or Rollback it.
func (idx *Index) BeginUpdate() (*Update, error) {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return nil, ErrIndexClosed
	}
	tx, err := idx.db.Begin(true)
	if err != nil {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("begin update on %s: %w", idx.path, err)
	}
	return &Update{idx: idx, tx: tx}, nil
}

func (idx *Index) view(fn func(tx *bbolt.Tx) error) (err error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}
	defer idx.recoverCorruption(&err)
	return idx.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketItems) == nil || tx.Bucket(bucketMeta) == nil {
			return corrupted(idx.path, errors.New("missing bucket"))
		}
		return fn(tx)
	})
}

// recoverCorruption converts a bbolt page-level panic into a CorruptedIndexError.
func (idx *Index) recoverCorruption(err *error) {
	if r := recover(); r != nil {
		*err = corrupted(idx.path, fmt.Errorf("panic: %v", r))
	}
}

func (idx *Index) close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}

// Update is an explicit begin/end transaction over one partition. Everything written through it
// becomes durable together on Commit.
type Update struct {
	idx  *Index
	tx   *bbolt.Tx
	done bool
}

// Upsert appends items. Items without an ID get a new UUID.
func (u *Update) Upsert(items []StoredItem) (err error) {
	if u.done {
		return ErrUpdateFinished
	}
	defer u.idx.recoverCorruption(&err)

	bucket := u.tx.Bucket(bucketItems)
	meta := u.tx.Bucket(bucketMeta)
	if bucket == nil || meta == nil {
		return corrupted(u.idx.path, errors.New("missing bucket"))
	}

	dim := readDimension(u.tx)
	for _, item := range items {
		if len(item.Vector) == 0 {
			return fmt.Errorf("item with hash %d has an empty vector", item.Metadata.Hash)
		}
		if dim == 0 {
			dim = len(item.Vector)
			if err := meta.Put(keyDimension, encodeUint32(uint32(dim))); err != nil {
				return err
			}
		}
		if len(item.Vector) != dim {
			return &DimensionMismatchError{Expected: dim, Actual: len(item.Vector)}
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		data, err := encodeItem(item)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(item.ID), data); err != nil {
			return fmt.Errorf("put item %s: %w", item.ID, err)
		}
	}
	return nil
}

// DeleteWhere removes every item whose metadata matches pred.
func (u *Update) DeleteWhere(pred MetadataPredicate) (n int, err error) {
	if u.done {
		return 0, ErrUpdateFinished
	}
	defer u.idx.recoverCorruption(&err)

	bucket := u.tx.Bucket(bucketItems)
	if bucket == nil {
		return 0, corrupted(u.idx.path, errors.New("missing bucket"))
	}
	var doomed [][]byte
	err = bucket.ForEach(func(k, v []byte) error {
		m, err := decodeMetadata(v)
		if err != nil {
			return corrupted(u.idx.path, err)
		}
		if pred(m) {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range doomed {
		if err := bucket.Delete(k); err != nil {
			return 0, fmt.Errorf("delete item %s: %w", k, err)
		}
	}
	return len(doomed), nil
}

// Commit makes the transaction durable.
func (u *Update) Commit() error {
	if u.done {
		return ErrUpdateFinished
	}
	defer u.finish()
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", u.idx.path, err)
	}
	return nil
}

// Rollback discards the transaction.
func (u *Update) Rollback() error {
	if u.done {
		return nil
	}
	defer u.finish()
	return u.tx.Rollback()
}

func (u *Update) finish() {
	u.done = true
	u.idx.mu.RUnlock()
}

func readDimension(tx *bbolt.Tx) int {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return 0
	}
	v := meta.Get(keyDimension)
	if len(v) != 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(v))
}

// Record layout: metadata length (4 bytes LE), metadata JSON, then the vector as float32 LE.
func encodeItem(item StoredItem) ([]byte, error) {
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	out := make([]byte, 4, 4+len(meta)+len(item.Vector)*4)
	binary.LittleEndian.PutUint32(out, uint32(len(meta)))
	out = append(out, meta...)
	return append(out, float32SliceToBytes(item.Vector)...), nil
}

func decodeItem(key, data []byte) (StoredItem, error) {
	meta, rest, err := splitRecord(data)
	if err != nil {
		return StoredItem{}, err
	}
	var m models.Metadata
	if err := json.Unmarshal(meta, &m); err != nil {
		return StoredItem{}, fmt.Errorf("decode metadata of %s: %w", key, err)
	}
	if len(rest) == 0 || len(rest)%4 != 0 {
		return StoredItem{}, fmt.Errorf("item %s has a malformed vector of %d bytes", key, len(rest))
	}
	return StoredItem{ID: string(key), Vector: bytesToFloat32Slice(rest), Metadata: m}, nil
}

func decodeMetadata(data []byte) (models.Metadata, error) {
	meta, _, err := splitRecord(data)
	if err != nil {
		return models.Metadata{}, err
	}
	var m models.Metadata
	if err := json.Unmarshal(meta, &m); err != nil {
		return models.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func splitRecord(data []byte) (meta, vec []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("record of %d bytes is truncated", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	if n > len(data)-4 {
		return nil, nil, fmt.Errorf("record metadata length %d exceeds record size", n)
	}
	return data[4 : 4+n], data[4+n:], nil
}

func encodeUint32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
