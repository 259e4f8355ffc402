package token

import (
	"sync"
	"time"
)

// RevokedTokenCache tracks revoked token IDs until the tokens would have
// expired anyway.
type RevokedTokenCache interface {
	// Add marks jti as revoked. Adding an existing jti is not an error.
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	Cleanup() // Remove entries whose tokens have expired
}

// InMemoryRevokedTokenCache is a simple in-memory implementation
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

func NewInMemoryRevokedTokenCache() *InMemoryRevokedTokenCache {
	return NewInMemoryRevokedTokenCacheWithClock(time.Now)
}

func NewInMemoryRevokedTokenCacheWithClock(now func() time.Time) *InMemoryRevokedTokenCache {
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: now,
	}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// keep the later expiry so a second revoke never shortens the entry
	if existing, ok := c.revoked[jti]; ok && existing.After(exp) {
		return nil
	}
	c.revoked[jti] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

func (c *InMemoryRevokedTokenCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for jti, exp := range c.revoked {
		if !exp.IsZero() && now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}

// Len returns the number of revoked entries held.
func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}
