// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package fido2

import (
	"context"
	"sync"
	"time"
)

// MemoryChallengeCache is an in-process implementation of ChallengeCache.
// Entries are consumed on read and expire after their TTL regardless of
// consumption. For multi-instance deployments a shared TTL-capable store
// must be injected instead.
type MemoryChallengeCache struct {
	mu         sync.Mutex
	entries    map[string]*challengeEntry
	defaultTTL time.Duration
}

type challengeEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryChallengeCache creates an in-memory challenge cache. The default
// TTL is used when Put is called with a zero ttl.
func NewMemoryChallengeCache(defaultTTL time.Duration) *MemoryChallengeCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryChallengeCache{
		entries:    make(map[string]*challengeEntry),
		defaultTTL: defaultTTL,
	}
}

// Put stores a value under a slot key, overwriting any existing value.
func (c *MemoryChallengeCache) Put(ctx context.Context, slotKey, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[slotKey] = &challengeEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Take returns the value for a slot key and consumes it. Expired entries are
// reported as absent.
func (c *MemoryChallengeCache) Take(ctx context.Context, slotKey string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[slotKey]
	if !ok {
		return "", false, nil
	}
	delete(c.entries, slotKey)

	if time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Count returns the number of live entries, expired included until cleanup.
func (c *MemoryChallengeCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns the count removed.
func (c *MemoryChallengeCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries (useful for testing).
func (c *MemoryChallengeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*challengeEntry)
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired entries. Call the returned cancel function to stop the routine.
func (c *MemoryChallengeCache) StartCleanupRoutine(ctx context.Context, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()

	return cancel
}
