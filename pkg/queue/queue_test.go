package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queue_test.go covers FIFO order, close semantics and blocked consumers.

func TestDequeue_FIFOOrder(t *testing.T) {
	q := New[string]()
	for _, item := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(item))
	}
	q.Close()

	var got []string
	for {
		item, err := q.Dequeue(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		got = append(got, item)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.True(t, q.Drained())
}

func TestClose_Idempotent(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Enqueue(1))

	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Drained(), "pending item must survive repeated close")
	assert.Equal(t, 1, q.Len())

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, item)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(2), ErrClosed)
}

func TestDequeue_BlocksUntilEnqueue(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			got <- item
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue("late"))

	select {
	case item := <-got:
		assert.Equal(t, "late", item)
	case <-time.After(time.Second):
		t.Fatal("blocked consumer was not woken")
	}
}

func TestClose_WakesAllWaiters(t *testing.T) {
	q := New[int]()

	const waiters = 5
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestDequeue_ContextCancelled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New[int]()
	const producers, perProducer = 4, 250

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(base int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(base*perProducer + i)
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var cwg sync.WaitGroup
	for c := 0; c < 3; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				item, err := q.Dequeue(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
			}
		}()
	}

	pwg.Wait()
	q.Close()
	cwg.Wait()

	require.Len(t, seen, producers*perProducer)
	for item, n := range seen {
		assert.Equal(t, 1, n, "item %d dequeued more than once", item)
	}
}
