package queue

import "sync"

// Task is one unit of work tied to a transaction hash.
type Task func()

// TxQueue serializes tasks sharing a key (a transaction hash) while letting
// tasks under different keys run concurrently. A single on-chain transaction
// can emit several Transfer events and they must hit the ledger in emission
// order, so one worker drains each key and Purge is the only way to advance.
type TxQueue struct {
	mu         sync.Mutex
	pending    map[string][]Task
	processing map[string]bool
}

func New() *TxQueue {
	return &TxQueue{
		pending:    make(map[string][]Task),
		processing: make(map[string]bool),
	}
}

// Add enqueues t under key. If no worker is draining the key, t starts
// immediately on its own goroutine; otherwise it waits its turn. The task is
// responsible for calling Purge when it is done, success or failure.
func (q *TxQueue) Add(key string, t Task) {
	q.mu.Lock()
	if q.processing[key] {
		q.pending[key] = append(q.pending[key], t)
		q.mu.Unlock()
		return
	}
	q.processing[key] = true
	q.mu.Unlock()
	go t()
}

// IsProcessing reports whether a worker is currently draining key.
func (q *TxQueue) IsProcessing(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing[key]
}

// Purge marks the current task for key as done and starts the next queued
// task, or marks the key idle if none remain.
func (q *TxQueue) Purge(key string) {
	q.mu.Lock()
	next, ok := q.popLocked(key)
	if !ok {
		delete(q.processing, key)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	go next()
}

func (q *TxQueue) popLocked(key string) (Task, bool) {
	ts := q.pending[key]
	if len(ts) == 0 {
		delete(q.pending, key)
		return nil, false
	}
	next := ts[0]
	if len(ts) == 1 {
		delete(q.pending, key)
	} else {
		q.pending[key] = ts[1:]
	}
	return next, true
}

// Keys returns the keys currently being drained.
func (q *TxQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.processing))
	for k := range q.processing {
		keys = append(keys, k)
	}
	return keys
}
