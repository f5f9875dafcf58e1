// Package a2s maintains the process-wide cache of last-known live game
// server state, queried out-of-process via the A2S_INFO protocol and read
// by the servers-list handler.
//
// The query itself is an external collaborator: this package only owns the
// read-mostly cache and the poller that keeps it warm.
package a2s

import (
	"sync"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// Cache is the server-id → last known A2S info map, guarded by a
// read-mostly lock. Writers (the poller) overwrite entries atomically;
// readers (the servers-list handler) never block each other.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]models.A2SInfo
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[int64]models.A2SInfo)}
}

// Get returns the last known info for a server, if any.
func (c *Cache) Get(serverID int64) (models.A2SInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[serverID]
	return info, ok
}

// All returns a snapshot of every cached entry, for the servers-list
// handler to fold into its response.
func (c *Cache) All() map[int64]models.A2SInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]models.A2SInfo, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Set overwrites one server's entry. Called only by the poller.
func (c *Cache) Set(info models.A2SInfo) {
	c.mu.Lock()
	c.entries[info.ServerID] = info
	c.mu.Unlock()
}

// Delete removes a server's entry, e.g. when it no longer answers queries
// or is no longer approved.
func (c *Cache) Delete(serverID int64) {
	c.mu.Lock()
	delete(c.entries, serverID)
	c.mu.Unlock()
}
