package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultEntitlementTTL = 5 * time.Minute

// EntitlementCache keeps read-through copies of tenant entitlement snapshots.
// Writers never update it; they evict after commit and the next read refills.
// A nil client disables caching.
type EntitlementCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEntitlementCache creates a cache over client. ttl <= 0 uses the default.
func NewEntitlementCache(client *redis.Client, ttl time.Duration) *EntitlementCache {
	if ttl <= 0 {
		ttl = defaultEntitlementTTL
	}
	return &EntitlementCache{client: client, ttl: ttl}
}

// EntitlementKey is the cache key of a tenant's snapshot.
func EntitlementKey(tenantID uint) string {
	return fmt.Sprintf("entitlement:tenant:%d", tenantID)
}

// Get decodes the cached snapshot into dst. ok is false on a miss.
func (c *EntitlementCache) Get(ctx context.Context, tenantID uint, dst interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, EntitlementKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A snapshot we cannot read is as good as a miss.
		_ = c.client.Del(ctx, EntitlementKey(tenantID)).Err()
		return false, nil
	}
	return true, nil
}

// Set stores v as the tenant's snapshot.
func (c *EntitlementCache) Set(ctx context.Context, tenantID uint, v interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, EntitlementKey(tenantID), raw, c.ttl).Err()
}

// InvalidateEntitlement drops the tenant's snapshot.
func (c *EntitlementCache) InvalidateEntitlement(ctx context.Context, tenantID uint) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, EntitlementKey(tenantID)).Err()
}
