package blocktime

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Capacity is the maximum number of resolved blocks kept in memory.
const Capacity = 50

// Source resolves a block number to its wall-clock timestamp.
type Source interface {
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
}

type result struct {
	t   time.Time
	err error
}

// Cache memoizes block timestamps with request coalescing: concurrent
// resolutions of the same block share a single underlying fetch. On overflow
// the entries with the highest block numbers are kept and the rest dropped.
type Cache struct {
	source   Source
	capacity int

	mu       sync.Mutex
	times    map[uint64]time.Time
	inflight map[uint64][]chan result
}

func New(source Source) *Cache {
	return &Cache{
		source:   source,
		capacity: Capacity,
		times:    make(map[uint64]time.Time),
		inflight: make(map[uint64][]chan result),
	}
}

// Resolve returns the timestamp of the given block, fetching it from the
// source at most once per block regardless of how many callers wait on it.
func (c *Cache) Resolve(ctx context.Context, number uint64) (time.Time, error) {
	c.mu.Lock()
	if t, ok := c.times[number]; ok {
		c.mu.Unlock()
		return t, nil
	}
	if waiters, ok := c.inflight[number]; ok {
		ch := make(chan result, 1)
		c.inflight[number] = append(waiters, ch)
		c.mu.Unlock()
		select {
		case r := <-ch:
			return r.t, r.err
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
	c.inflight[number] = nil
	c.mu.Unlock()

	t, err := c.source.BlockTime(ctx, number)

	c.mu.Lock()
	waiters := c.inflight[number]
	delete(c.inflight, number)
	if err == nil {
		c.times[number] = t
		c.evictLocked()
	}
	c.mu.Unlock()

	if err != nil {
		log.WithFields(log.Fields{"block": number, "err": err}).Warn("blocktime: fetch failed")
	}
	for _, ch := range waiters {
		ch <- result{t: t, err: err}
	}
	return t, err
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.times)
}

// evictLocked keeps the cached blocks with the highest numbers.
func (c *Cache) evictLocked() {
	if len(c.times) <= c.capacity {
		return
	}
	nums := make([]uint64, 0, len(c.times))
	for n := range c.times {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] > nums[j] })
	for _, n := range nums[c.capacity:] {
		delete(c.times, n)
	}
}
