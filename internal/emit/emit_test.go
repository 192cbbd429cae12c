package emit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueBatchesByThreshold(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int
	q := NewQueue(time.Hour, 3, false, func(b []int) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	})
	defer q.Close()

	q.Push(1)
	q.Push(2)
	q.Push(3)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(batches)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	require.Equal(t, []int{1, 2, 3}, batches[0])
}

func TestQueueFlushesOnTimer(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int
	q := NewQueue(10*time.Millisecond, 0, false, func(b []int) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	})
	defer q.Close()

	q.Push(42)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	require.Equal(t, []int{42}, batches[0])
}

func TestQueueFastPath(t *testing.T) {
	var received []int
	q := NewQueue[int](time.Hour, 10, true, func(b []int) {
		received = append(received, b...)
	})
	defer q.Close()

	q.Push(1)
	q.Push(2)
	require.Equal(t, []int{1, 2}, received)
}

func TestHubBroadcastAndDropPolicy(t *testing.T) {
	h := NewHub[int]()
	c := NewClient[int](1)
	h.Add(c)
	defer h.Remove(c)

	var drops int
	h.Broadcast(1, func() { drops++ }, nil)
	h.Broadcast(2, func() { drops++ }, nil) // buffer full (size 1), should drop

	require.Equal(t, 1, drops)
	require.Equal(t, 1, <-c.Out)
}

func TestHubKickPolicyClosesClient(t *testing.T) {
	h := NewHub[int]()
	h.Policy = PolicyKick
	c := NewClient[int](1)
	h.Add(c)

	h.Broadcast(1, nil, nil)
	var kicks int
	h.Broadcast(2, nil, func() { kicks++ })

	require.Equal(t, 1, kicks)
	select {
	case <-c.Closed:
	case <-time.After(time.Second):
		t.Fatal("expected client to be closed after kick")
	}
}
