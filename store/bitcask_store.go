package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

type bitcaskStore struct {
	db *bitcask.Bitcask
}

// NewBitcaskStore opens (or creates) the bitcask database at dbPath.
func NewBitcaskStore(dbPath string) (Store, error) {
	db, err := bitcask.Open(
		dbPath,
		bitcask.WithMaxKeySize(0),
		bitcask.WithMaxValueSize(0),
	)
	if err != nil {
		log.WithError(err).WithField("path", dbPath).Error("error opening bitcask database")
		return nil, fmt.Errorf("error opening bitcask database: %w", err)
	}

	return &bitcaskStore{db: db}, nil
}

func (s *bitcaskStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := s.db.Scan([]byte(prefix), func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("prefix", prefix).Error("error scanning keys")
		return nil, fmt.Errorf("error scanning keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *bitcaskStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, nil
		}
		log.WithError(err).WithField("key", key).Error("error getting key")
		return nil, fmt.Errorf("error getting key: %w", err)
	}

	return value, nil
}

func (s *bitcaskStore) PutValue(ctx context.Context, key string, value []byte) error {
	// bitcask rejects nil values
	if value == nil {
		value = []byte{}
	}
	if err := s.db.Put([]byte(key), value); err != nil {
		return fmt.Errorf("error putting key: %w", err)
	}
	return nil
}

func (s *bitcaskStore) DeleteKey(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(key)); err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

func (s *bitcaskStore) Close() error {
	return s.db.Close()
}
