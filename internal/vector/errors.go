package vector

import (
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// ErrCorruptedIndex matches any CorruptedIndexError.
	ErrCorruptedIndex = errors.New("corrupted vector index")
	// ErrIndexClosed is returned by operations on an index that was closed or dropped.
	ErrIndexClosed = errors.New("vector index closed")
	// ErrInvalidPartition is returned when a partition key does not resolve to a usable path.
	ErrInvalidPartition = errors.New("invalid partition key")
	// ErrUpdateFinished is returned when an Update is used after Commit or Rollback.
	ErrUpdateFinished = errors.New("update already committed or rolled back")
)

// CorruptedIndexError reports an on-disk partition that could not be parsed.
//
// The original underlying error can be accessed via errors.Unwrap.
type CorruptedIndexError struct {
	Path  string
	cause error
}

func (e *CorruptedIndexError) Error() string {
	return fmt.Sprintf("corrupted vector index %s: %v", e.Path, e.cause)
}

func (e *CorruptedIndexError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrCorruptedIndex) work for every CorruptedIndexError.
func (e *CorruptedIndexError) Is(target error) bool { return target == ErrCorruptedIndex }

// DimensionMismatchError indicates a vector whose length differs from the partition's dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// IsCorrupted reports whether err signals a parse failure of a partition file.
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorruptedIndex)
}

func corrupted(path string, cause error) error {
	return &CorruptedIndexError{Path: path, cause: cause}
}

// isBoltCorruption reports whether a bbolt error means the file itself is unreadable, as opposed to
// I/O or locking failures.
func isBoltCorruption(err error) bool {
	return errors.Is(err, bbolt.ErrInvalid) ||
		errors.Is(err, bbolt.ErrVersionMismatch) ||
		errors.Is(err, bbolt.ErrChecksum)
}
