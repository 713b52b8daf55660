package shopify

import (
	"context"
	"sync"
	"time"
)

// AddressCache memoizes location addresses per location gid. Addresses
// change rarely; a short TTL keeps repeated fulfillment creation from
// hammering the location query.
type AddressCache struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]addressEntry
}

type addressEntry struct {
	address   OriginAddress
	expiresAt time.Time
}

const defaultAddressTTL = 10 * time.Minute

func NewAddressCache() *AddressCache {
	return &AddressCache{
		TTL:     defaultAddressTTL,
		Now:     time.Now,
		entries: map[string]addressEntry{},
	}
}

// Resolve returns the cached address for locationID or fetches and caches it.
func (c *AddressCache) Resolve(ctx context.Context, g GraphQL, locationID string) (OriginAddress, error) {
	now := c.Now()
	c.mu.Lock()
	if entry, ok := c.entries[locationID]; ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.address, nil
	}
	c.mu.Unlock()

	address, err := LocationAddress(ctx, g, locationID)
	if err != nil {
		return OriginAddress{}, err
	}
	c.mu.Lock()
	c.entries[locationID] = addressEntry{address: address, expiresAt: now.Add(c.TTL)}
	c.mu.Unlock()
	return address, nil
}
