package redis

import (
	"context"
	"fmt"
	"sync"

	"awscqrs/config"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ConfigFrom picks the Redis settings out of the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

var (
	client     *redis.Client
	clientOnce sync.Once
	clientCfg  Config
)

// Initialize creates the process-wide client. Only the first call has an
// effect.
func Initialize(cfg Config) {
	clientOnce.Do(func() {
		clientCfg = cfg
		client = NewClient(cfg)
	})
}

// GetClient returns the process-wide client.
// Panics if Initialize() has not been called.
func GetClient() *redis.Client {
	if client == nil {
		panic("redis client not initialized. Call Initialize() first")
	}
	return client
}

func IsInitialized() bool {
	return client != nil
}

func GetConfig() Config {
	return clientCfg
}

// NewClient creates a standalone client, e.g. for tests.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping verifies the connection at startup.
func Ping(ctx context.Context, c *redis.Client) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.Options().Addr, err)
	}
	return nil
}
