package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainAll_Empty(t *testing.T) {
	q := New[int]()
	assert.Nil(t, q.DrainAll())
	assert.Equal(t, 0, q.Len())
}

func TestDrainAll_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 5, q.Len())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, q.DrainAll())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DrainAll())

	q.Enqueue(9)
	assert.Equal(t, []int{9}, q.DrainAll())
}

func TestDrainAll_DoesNotAliasLaterEnqueues(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	first := q.DrainAll()

	q.Enqueue(3)
	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{3}, q.DrainAll())
}

// One producer, one consumer draining concurrently: every value arrives
// exactly once and in order.
func TestConcurrentProducerConsumer(t *testing.T) {
	const n = 20000
	q := New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Enqueue(i)
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		got = append(got, q.DrainAll()...)
	}
	wg.Wait()

	require.Len(t, got, n)
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, want %d", i, v, i)
		}
	}
	assert.Nil(t, q.DrainAll())
}
