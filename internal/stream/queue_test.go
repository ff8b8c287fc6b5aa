package stream

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if string(got) != want {
			t.Fatalf("Pop = %q, want %q", got, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	got := make(chan []byte, 1)
	go func() {
		item, err := q.Pop(context.Background())
		if err == nil {
			got <- item
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push([]byte("x"))
	select {
	case item := <-got:
		if string(item) != "x" {
			t.Fatalf("Pop = %q", item)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueuePopCancel(t *testing.T) {
	q := newQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); err == nil {
		t.Fatal("Pop on canceled context returned nil error")
	}
}

func TestQueueManyConsumers(t *testing.T) {
	q := newQueue()
	const n = 200

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[string(item)] = true
				done := len(seen) == n
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Push([]byte{byte(i), byte(i >> 8)})
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("consumed %d distinct items, want %d", len(seen), n)
	}
}
