package repository

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStateStore_SetIfAbsent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newMemoryStateStore(func() time.Time { return now })
	ctx := context.Background()

	ok, err := s.SetIfAbsent(ctx, "k", []byte("1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first set: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetIfAbsent(ctx, "k", []byte("2"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second set should be rejected: ok=%v err=%v", ok, err)
	}

	now = now.Add(2 * time.Minute)
	ok, err = s.SetIfAbsent(ctx, "k", []byte("3"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("set after expiry: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStateStore_DeleteReleasesKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStateStore()
	ctx := context.Background()

	if ok, _ := s.SetIfAbsent(ctx, "k", []byte("1"), 0); !ok {
		t.Fatalf("expected first set to win")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := s.SetIfAbsent(ctx, "k", []byte("1"), 0); !ok {
		t.Fatalf("expected set after delete to win")
	}
}

func TestMemoryStateStore_ConcurrentSetIfAbsentSingleWinner(t *testing.T) {
	t.Parallel()

	s := NewMemoryStateStore()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetIfAbsent(ctx, "race", []byte("x"), time.Hour)
			if err != nil {
				t.Errorf("set: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
