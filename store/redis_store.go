package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisConfig describes how to reach a shared Redis settings store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every key before it reaches Redis, so several
	// installations can share one database.
	KeyPrefix string

	DialTimeout time.Duration
}

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.WithError(err).WithField("addr", cfg.Addr).Error("error connecting to redis")
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &redisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *redisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+prefix+"*", 100).Result()
		if err != nil {
			log.WithError(err).WithField("prefix", prefix).Error("error scanning keys")
			return nil, fmt.Errorf("error scanning keys: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		log.WithError(err).WithField("key", key).Error("error getting key")
		return nil, fmt.Errorf("error getting key: %w", err)
	}
	return value, nil
}

func (s *redisStore) PutValue(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("error putting key: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteKey(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
