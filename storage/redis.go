package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record in a hash {value, version, updated_at} and
// uses WATCH/MULTI for conditional writes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return "newsbot:" + k
	}
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "value", "version").Result()
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	value, ok1 := vals[0].(string)
	version, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return Record{}, ErrNotFound
	}
	return Record{Value: []byte(value), Version: version}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, expected string) (string, error) {
	k := s.key(key)
	var next string

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, "version").Result()
		if errors.Is(err, redis.Nil) {
			current = ""
		} else if err != nil {
			return err
		}
		if current != expected {
			return ErrVersionConflict
		}

		var n int64
		if current != "" {
			n, err = strconv.ParseInt(current, 10, 64)
			if err != nil {
				return fmt.Errorf("parse stored version %q: %w", current, err)
			}
		}
		next = strconv.FormatInt(n+1, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, "value", value, "version", next, "updated_at", time.Now().UTC().Format(time.RFC3339))
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, k)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrVersionConflict) {
		return "", ErrVersionConflict
	}
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return next, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
