package collection

import (
	"fmt"

	"github.com/hyperjump/kioku/internal/vector"
	"go.uber.org/zap"
)

// withRecovery runs fn against the partition for key. If the partition turns out to be corrupted it is
// deleted, recreated empty and fn runs once more; corruption on that second run is returned as is.
func (m *Manager) withRecovery(key vector.PartitionKey, fn func(idx *vector.Index) error) error {
	err := m.runOn(key, fn)
	if !vector.IsCorrupted(err) {
		return err
	}

	m.logger.Warn("regenerating corrupted vector index",
		zap.String("source", key.Source),
		zap.String("collection", key.CollectionID),
		zap.String("model", key.Model),
		zap.Error(err))
	if dropErr := m.store.Drop(key); dropErr != nil {
		return fmt.Errorf("drop corrupted partition: %w", dropErr)
	}

	if err := m.runOn(key, fn); err != nil {
		if vector.IsCorrupted(err) {
			return fmt.Errorf("partition still corrupted after regeneration: %w", err)
		}
		return err
	}
	return nil
}

func (m *Manager) runOn(key vector.PartitionKey, fn func(idx *vector.Index) error) error {
	idx, err := m.store.Open(key)
	if err != nil {
		return err
	}
	return fn(idx)
}
