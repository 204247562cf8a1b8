package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-speakers/internal/config"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
)

const ListKey = "suggestions:list"

// Connect opens a Redis client and checks it answers a PING.
func Connect(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s for suggestion caching", cfg.Addr))
	return client, nil
}

// ListCache holds the full suggestion list under a single key.
type ListCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *ListCache {
	return &ListCache{Client: client, TTL: ttl}
}

// Get reports false on a miss.
func (c *ListCache) Get(ctx context.Context) ([]models.Suggestion, bool, error) {
	data, err := c.Client.Get(ctx, ListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var suggestions []models.Suggestion
	if err := json.Unmarshal(data, &suggestions); err != nil {
		return nil, false, fmt.Errorf("decode cached suggestions: %w", err)
	}
	return suggestions, true, nil
}

func (c *ListCache) Set(ctx context.Context, suggestions []models.Suggestion) error {
	data, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	return c.Client.Set(ctx, ListKey, data, c.TTL).Err()
}

func (c *ListCache) Invalidate(ctx context.Context) error {
	return c.Client.Del(ctx, ListKey).Err()
}
