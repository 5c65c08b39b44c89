package blocktime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int32
	gate    chan struct{} // when non-nil, fetches block until closed
	failFor map[uint64]error
}

func (f *fakeSource) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	err := f.failFor[number]
	f.mu.Unlock()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(number)*10, 0), nil
}

func TestResolveCachesResult(t *testing.T) {
	src := &fakeSource{}
	c := New(src)

	got, err := c.Resolve(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, time.Unix(70, 0), got)

	got, err = c.Resolve(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, time.Unix(70, 0), got)
	require.EqualValues(t, 1, atomic.LoadInt32(&src.calls))
}

func TestConcurrentResolvesCoalesce(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	c := New(src)

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]time.Time, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), 42)
		}(i)
	}

	// Let every goroutine attach before the fetch completes.
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, time.Unix(420, 0), results[i])
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&src.calls))
}

func TestCapacityBound(t *testing.T) {
	src := &fakeSource{}
	c := New(src)

	for n := uint64(1); n <= Capacity+25; n++ {
		_, err := c.Resolve(context.Background(), n)
		require.NoError(t, err)
		require.LessOrEqual(t, c.Len(), Capacity)
	}
}

func TestEvictionKeepsHighestBlocks(t *testing.T) {
	src := &fakeSource{}
	c := New(src)

	for n := uint64(1); n <= Capacity+1; n++ {
		_, err := c.Resolve(context.Background(), n)
		require.NoError(t, err)
	}

	// Block 1 is the lowest-numbered entry and must have been dropped.
	require.Equal(t, Capacity, c.Len())
	_, err := c.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, Capacity+2, atomic.LoadInt32(&src.calls))

	// The highest block is still cached.
	before := atomic.LoadInt32(&src.calls)
	_, err = c.Resolve(context.Background(), Capacity+1)
	require.NoError(t, err)
	require.Equal(t, before, atomic.LoadInt32(&src.calls))
}

func TestFetchErrorNotCached(t *testing.T) {
	boom := errors.New("node unavailable")
	src := &fakeSource{failFor: map[uint64]error{5: boom}}
	c := New(src)

	_, err := c.Resolve(context.Background(), 5)
	require.ErrorIs(t, err, boom)

	src.mu.Lock()
	delete(src.failFor, 5)
	src.mu.Unlock()

	got, err := c.Resolve(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, time.Unix(50, 0), got)
}
