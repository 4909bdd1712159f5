package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/stagehand/internal/config"
)

// redisDocument stores the document under a single prefixed key. The
// in-process lock on the owning table is the serialization point; Redis
// only holds the write-through copy
type redisDocument struct {
	client *redis.Client
	key    string
}

func newRedisDocument(cfg *config.StoreConfig, name string) *redisDocument {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &redisDocument{
		client: client,
		key:    cfg.RedisPrefix + ":" + name,
	}
}

func (d *redisDocument) Load(ctx context.Context) ([]byte, error) {
	data, err := d.client.Get(ctx, d.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.key, err)
	}
	return data, nil
}

func (d *redisDocument) Save(ctx context.Context, data []byte) error {
	if err := d.client.Set(ctx, d.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.key, err)
	}
	return nil
}

func (d *redisDocument) Close() error {
	return d.client.Close()
}
