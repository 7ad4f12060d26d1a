package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// PebbleEngine persists entries in a pebble LSM store
type PebbleEngine struct {
	db     *pebble.DB
	logger *zap.Logger

	// serializes read-modify-write in Put and Delete
	writeMu sync.Mutex
}

// NewPebbleEngine opens (or creates) the store at path
func NewPebbleEngine(path string, logger *zap.Logger) (*PebbleEngine, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &PebbleEngine{
		db:     db,
		logger: logger.With(zap.String("layer", "storage")),
	}, nil
}

func (s *PebbleEngine) Put(key, value string) (PutResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := Updated
	if _, err := s.get(key); errors.Is(err, ErrNotFound) {
		result = Created
	} else if err != nil {
		return 0, err
	}

	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to write key: %w", err)
	}
	return result, nil
}

func (s *PebbleEngine) Get(key string) (string, error) {
	return s.get(key)
}

func (s *PebbleEngine) get(key string) (string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			s.logger.Warn("Failed to release pebble value", zap.Error(err))
		}
	}()

	// the slice is only valid until closer is closed
	return string(value), nil
}

func (s *PebbleEngine) Delete(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.get(key); err != nil {
		return err
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Scan walks a point-in-time iterator, so fn may write to the engine
func (s *PebbleEngine) Scan(fn func(key, value string) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(string(iter.Key()), string(iter.Value())) {
			break
		}
	}
	return iter.Error()
}

func (s *PebbleEngine) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			iter.Close()
			return fmt.Errorf("failed to stage delete: %w", err)
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to scan store: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

func (s *PebbleEngine) Close() error {
	return s.db.Close()
}
