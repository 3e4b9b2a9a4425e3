package vector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store resolves partition keys to bbolt files under one root directory and caches open handles.
// The layout is <root>/<source>/<collection>/<model>/index.db; an empty model keeps the index in the
// collection directory. Only one process may use a root at a time.
type Store struct {
	root    string
	logger  *zap.Logger
	mu      sync.Mutex
	indexes map[string]*Index
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for partition lifecycle events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates the root directory if needed.
func NewStore(root string, opts ...StoreOption) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("vector store root must not be empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create vector store root: %w", err)
	}
	s := &Store{
		root:    root,
		logger:  zap.NewNop(),
		indexes: make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the sanitized partition directory for key.
func (s *Store) Dir(key PartitionKey) (string, error) {
	source := SanitizeSegment(key.Source)
	if source == "" {
		return "", fmt.Errorf("%w: source %q", ErrInvalidPartition, key.Source)
	}
	collection := SanitizeSegment(key.CollectionID)
	if collection == "" {
		return "", fmt.Errorf("%w: collection %q", ErrInvalidPartition, key.CollectionID)
	}
	dir := filepath.Join(s.root, source, collection)
	if model := SanitizeSegment(key.Model); model != "" {
		dir = filepath.Join(dir, model)
	}
	return dir, nil
}

// Open returns the index for key, creating it on disk when absent. Concurrent calls for the same key
// return the same handle.
func (s *Store) Open(key PartitionKey) (*Index, error) {
	dir, err := s.Dir(key)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, IndexFileName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[path]; ok {
		return idx, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}
	idx, err := openIndex(path, key)
	if err != nil {
		return nil, err
	}
	s.indexes[path] = idx
	s.logger.Debug("partition opened", zap.String("path", path))
	return idx, nil
}

// Exists reports whether the partition file for key is on disk.
func (s *Store) Exists(key PartitionKey) (bool, error) {
	dir, err := s.Dir(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, IndexFileName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Drop closes the partition for key and deletes its index file. Dropping a missing partition is a no-op.
func (s *Store) Drop(key PartitionKey) error {
	dir, err := s.Dir(key)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, IndexFileName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[path]; ok {
		delete(s.indexes, path)
		if err := idx.close(); err != nil {
			s.logger.Warn("close dropped partition", zap.String("path", path), zap.Error(err))
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partition %s: %w", path, err)
	}
	s.logger.Info("partition dropped", zap.String("path", path))
	return nil
}

// PurgeCollection deletes every partition of collectionID under every source and model, and returns
// the removed collection directories.
func (s *Store) PurgeCollection(collectionID string) ([]string, error) {
	collection := SanitizeSegment(collectionID)
	if collection == "" {
		return nil, fmt.Errorf("%w: collection %q", ErrInvalidPartition, collectionID)
	}
	sources, err := s.Sources()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, source := range sources {
		dir := filepath.Join(s.root, source, collection)
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		s.closeUnderLocked(dir)
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("remove %s: %w", dir, err)
		}
		s.logger.Info("deleted vector index", zap.String("path", dir))
		removed = append(removed, dir)
	}
	return removed, nil
}

// PurgeAll closes every partition and deletes everything under the root.
func (s *Store) PurgeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeUnderLocked(s.root)
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read vector store root: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("purge all: %w", errors.Join(errs...))
	}
	s.logger.Info("purged all vector indexes", zap.String("root", s.root))
	return nil
}

// Sources lists the source directories present under the root.
func (s *Store) Sources() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vector store root: %w", err)
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() {
			sources = append(sources, e.Name())
		}
	}
	sort.Strings(sources)
	return sources, nil
}

// DiskUsage returns the bytes used under the root.
func (s *Store) DiskUsage() (int64, error) {
	return diskUsageBytes(s.root)
}

// OpenCount returns how many partitions currently have open handles.
func (s *Store) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.indexes)
}

// Close closes every open partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, idx := range s.indexes {
		if err := idx.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.indexes, path)
	}
	return errors.Join(errs...)
}

func (s *Store) closeUnderLocked(dir string) {
	prefix := dir + string(filepath.Separator)
	for path, idx := range s.indexes {
		if path != dir && !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := idx.close(); err != nil {
			s.logger.Warn("close purged partition", zap.String("path", path), zap.Error(err))
		}
		delete(s.indexes, path)
	}
}
