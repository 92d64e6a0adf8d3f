package rejection

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-guard/internal/config"
)

// NewStoreFromConfig builds the backend chain selected by cfg.Storage.
// Remote backends always get the local directory as their fallback. The
// redis backend requires client.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, client *redis.Client) (*Store, error) {
	local, err := NewFileBackend(cfg.Storage.LocalPath)
	if err != nil {
		return nil, err
	}

	ttl := WithTTLDays(cfg.Guard.TTLDays)
	timeout := cfg.Redis.Timeout()

	switch cfg.Storage.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("storage.backend redis: no redis client")
		}
		return NewStore(NewRedisBackend(client, timeout), WithFallback(local), ttl), nil
	case "dynamodb":
		dyn, err := NewDynamoBackendFromConfig(ctx, cfg.Storage, timeout)
		if err != nil {
			return nil, err
		}
		return NewStore(dyn, WithFallback(local), ttl), nil
	case "local":
		return NewStore(local, ttl), nil
	}
	return nil, fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
}
