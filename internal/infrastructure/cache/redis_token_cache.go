package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/redis/go-redis/v9"
)

const defaultTokenKeyPrefix = "migrator:token:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisTokenCache keeps minted access tokens until they expire
type RedisTokenCache struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisTokenCache creates a token cache on an existing client
func NewRedisTokenCache(client *redis.Client, keyPrefix string) *RedisTokenCache {
	if keyPrefix == "" {
		keyPrefix = defaultTokenKeyPrefix
	}
	return &RedisTokenCache{client: client, keyPrefix: keyPrefix, now: time.Now}
}

var _ ports.TokenCache = (*RedisTokenCache)(nil)

// Get returns nil, nil on a cache miss
func (c *RedisTokenCache) Get(ctx context.Context, instanceID string) (*domain.AccessToken, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+instanceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached token: %w", err)
	}

	var token domain.AccessToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode cached token: %w", err)
	}
	return &token, nil
}

// Set stores the token until its expiry. Tokens without an expiry are kept for an hour.
func (c *RedisTokenCache) Set(ctx context.Context, instanceID string, token *domain.AccessToken) error {
	ttl := time.Hour
	if !token.ExpiresAt.IsZero() {
		ttl = token.ExpiresAt.Sub(c.now())
		if ttl <= 0 {
			return nil
		}
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+instanceID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}
