package ringqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New[int](3)
	require.Error(t, err)

	_, err = New[int](0)
	require.Error(t, err)
}

func TestPushPopFIFO(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.True(t, q.TryPush(3))

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPushFailsWhenFull(t *testing.T) {
	q, err := New[int](2)
	require.NoError(t, err)

	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	assert.False(t, q.TryPush(3))

	_, ok := q.TryPop()
	require.True(t, ok)
	assert.True(t, q.TryPush(3))
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestTryPopMany(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, q.TryPush(i))
	}

	dst := make([]int, 10)
	n := q.TryPopMany(dst)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, dst[:n])
}

// TestConcurrentConsumers is the SPMC stress scenario: one producer feeds
// a bounded queue while several consumer goroutines race to drain it.
// Every pushed value must be observed by exactly one consumer, exactly
// once, with no loss or duplication.
func TestConcurrentConsumers(t *testing.T) {
	const (
		capacity  = 1024
		total     = 200000
		consumers = 8
	)
	q, err := New[int](capacity)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make([]int, total)
	)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for {
				v, ok := q.TryPop()
				if ok {
					mu.Lock()
					seen[v]++
					mu.Unlock()
					continue
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	for produced := 0; produced < total; {
		if q.TryPush(produced) {
			produced++
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range seen {
			if n == 0 {
				return false
			}
		}
		return true
	}, 10*time.Second, time.Millisecond)

	close(stop)
	wg.Wait()

	for i, n := range seen {
		require.Equalf(t, 1, n, "value %d observed %d times", i, n)
	}
}
