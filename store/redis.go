package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKV backs the KV interface with Redis.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// OpenKV connects to Redis from a URL or address and falls back to an
// in-memory store when the connection fails, so the client keeps working
// without durable persistence.
func OpenKV(ctx context.Context, redisURL, addr, password string, log *zap.Logger) KV {
	var opt *redis.Options
	if redisURL != "" {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("failed to parse redis URL, running with in-memory store", zap.Error(err))
			return NewMemoryKV()
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: addr, Password: password, DB: 0}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis connection failed, running with in-memory store", zap.Error(err))
		return NewMemoryKV()
	}
	log.Info("redis connected", zap.String("addr", opt.Addr))
	return NewRedisKV(client)
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (s *RedisKV) Close() error {
	return s.client.Close()
}
