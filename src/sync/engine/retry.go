package engine

import (
	"sync"
	"time"
)

// Scheduler abstracts delayed execution so tests can drive retries directly.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler is the production scheduler.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

type mintState uint8

const (
	mintPending mintState = iota
	mintRetryScheduled
	mintResolved
	mintFailed
)

// mintTracker holds the per-transaction retry state machine for mints whose
// donation record was not found on the first attempt:
// pending -> retry-scheduled -> resolved | failed.
type mintTracker struct {
	mu     sync.Mutex
	states map[string]mintState
}

func newMintTracker() *mintTracker {
	return &mintTracker{states: make(map[string]mintState)}
}

// scheduleRetry transitions txHash to retry-scheduled. It returns false when
// a retry is already scheduled or the mint has finished, so a tx hash is
// rescheduled at most once.
func (t *mintTracker) scheduleRetry(txHash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[txHash]; ok && s != mintPending {
		return false
	}
	t.states[txHash] = mintRetryScheduled
	return true
}

// resolve and fail are both terminal; the entry is dropped so the map stays
// bounded by in-flight mints.
func (t *mintTracker) resolve(txHash string) { t.finish(txHash) }
func (t *mintTracker) fail(txHash string)    { t.finish(txHash) }

func (t *mintTracker) finish(txHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, txHash)
}
