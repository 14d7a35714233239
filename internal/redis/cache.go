package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"awscqrs/internal/domain/contact"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - contact:{id} - hash, ContactTTL, refreshed on every projected write

type CacheConfig struct {
	ContactTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ContactTTL: 10 * time.Minute,
	}
}

// CacheStore is the read-side cache of the contact projection.
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	if config.ContactTTL <= 0 {
		config.ContactTTL = DefaultCacheConfig().ContactTTL
	}
	return &CacheStore{
		client: client,
		config: config,
	}
}

func contactKey(id string) string {
	return fmt.Sprintf("contact:%s", id)
}

// SetContact writes the contact hash and resets its TTL.
func (c *CacheStore) SetContact(ctx context.Context, ct contact.Contact) error {
	key := contactKey(ct.ID)
	updatedAt := ct.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", ct.ID,
			"name", ct.Name,
			"completed", strconv.FormatBool(ct.Completed),
			"owner", ct.Owner,
			"updated_at", updatedAt.Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, c.config.ContactTTL)
		return nil
	})
	return err
}

// GetContact returns nil on a cache miss.
func (c *CacheStore) GetContact(ctx context.Context, id string) (*contact.Contact, error) {
	fields, err := c.client.HGetAll(ctx, contactKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	ct := &contact.Contact{
		ID:    fields["id"],
		Name:  fields["name"],
		Owner: fields["owner"],
	}
	if v, err := strconv.ParseBool(fields["completed"]); err == nil {
		ct.Completed = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		ct.UpdatedAt = v
	}
	return ct, nil
}
