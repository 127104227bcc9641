package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vinli0921/GEO-exploration/pkg/config"
)

var (
	ErrCacheNotFound   = errors.New("cache: key not found")
	ErrInvalidConfig   = errors.New("cache: invalid configuration")
	ErrCacheConnection = errors.New("cache: connection error")
)

// Config holds the configuration for the Redis client
type Config struct {
	Addr             string
	Password         string
	DB               int
	PoolSize         int
	MinIdleConns     int
	OperationTimeout time.Duration
	DefaultTTL       time.Duration
	KeyPrefix        string
}

// NewConfigFromEnv creates a Redis config from project configuration
func NewConfigFromEnv(cfg *config.Config) *Config {
	timeout := cfg.Server.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Config{
		Addr:             fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:         cfg.Redis.Password,
		DB:               cfg.Redis.DB,
		PoolSize:         100,
		MinIdleConns:     10,
		OperationTimeout: timeout,
		DefaultTTL:       5 * time.Minute,
		KeyPrefix:        "geo:",
	}
}

// RedisClient is a thin JSON-value cache on top of go-redis
type RedisClient struct {
	client *redis.Client
	config *Config
}

func NewRedisClient(cfg *Config) (*RedisClient, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, ErrInvalidConfig
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &RedisClient{client: client, config: cfg}, nil
}

func (c *RedisClient) key(k string) string {
	return c.config.KeyPrefix + k
}

// GetJSON reads a cached value into dest, returning ErrCacheNotFound on miss.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.OperationTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON stores a value as JSON; ttl <= 0 uses the default TTL.
func (c *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.OperationTimeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes one or more cached keys
func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.OperationTimeout)
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixed...).Err()
}

// HealthCheck verifies the Redis connection is alive
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.OperationTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// GetClient exposes the underlying go-redis client
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}
