package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds the connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis is a Cache backed by go-redis
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis connected")
	return &Redis{client: client, prefix: cfg.Prefix}, nil
}

// NewRedisFromClient wraps an existing client
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func decode(raw string, dst interface{}) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode cached value: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string, dst interface{}) error {
	raw, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	return decode(raw, dst)
}

func (r *Redis) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached value: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Take(ctx context.Context, key string, dst interface{}) error {
	raw, err := r.client.GetDel(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis getdel %s: %w", key, err)
	}
	return decode(raw, dst)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Cache = (*Redis)(nil)
