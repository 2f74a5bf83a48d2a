// Package pollstatus is a thin read-through cache over poll health
// rows (C8), written by the scheduler/fetcher at loop boundaries and
// read by the HTTP health/status endpoints.
package pollstatus

import (
	"sync"

	"github.com/themadorg/mailaggregator/entity"
)

// Source is the store surface this cache reads through, implemented
// by *store.Store.
type Source interface {
	GetPollStatus(accountId int64) (*entity.PollStatus, error)
	ListPollStatuses() ([]*entity.PollStatus, error)
}

// Cache holds the most recently observed poll status per account,
// guarded by an RWMutex the same way the settings cache is (both are
// small mutable snapshots read by HTTP handlers, written by background
// loops).
type Cache struct {
	source Source

	mu    sync.RWMutex
	byAcc map[int64]*entity.PollStatus
}

func New(source Source) *Cache {
	return &Cache{source: source, byAcc: make(map[int64]*entity.PollStatus)}
}

// Invalidate drops the cached entry for accountId so the next Get
// reloads from the store. Called by the fetcher right after it
// records a poll outcome.
func (c *Cache) Invalidate(accountId int64) {
	c.mu.Lock()
	delete(c.byAcc, accountId)
	c.mu.Unlock()
}

// Get returns the cached status for accountId, loading from the store
// on a miss.
func (c *Cache) Get(accountId int64) (*entity.PollStatus, error) {
	c.mu.RLock()
	cached, ok := c.byAcc[accountId]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	status, err := c.source.GetPollStatus(accountId)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byAcc[accountId] = status
	c.mu.Unlock()
	return status, nil
}

// All returns every account's poll status, bypassing the cache, used
// by the health endpoint (core.Health) where a fully fresh snapshot matters more
// than per-account cache hits.
func (c *Cache) All() ([]*entity.PollStatus, error) {
	return c.source.ListPollStatuses()
}
