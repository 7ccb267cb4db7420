package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStoreGetSetInvalidate(t *testing.T) {
	s := NewStore[int]()

	if _, ok := s.Get("a"); ok {
		t.Error("empty store must miss")
	}

	s.Set("a", 1)
	s.Set("b", 2)

	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Errorf("expected 1, got %d (ok=%v)", v, ok)
	}
	if s.Size() != 2 {
		t.Errorf("expected size 2, got %d", s.Size())
	}

	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys: %v", keys)
	}

	s.Invalidate("a")
	if _, ok := s.Get("a"); ok {
		t.Error("invalidated key must miss")
	}

	s.Clear()
	if s.Size() != 0 {
		t.Errorf("cleared store must be empty, got size %d", s.Size())
	}
}

func TestGetOrFetchCachesResult(t *testing.T) {
	s := NewStore[string]()
	calls := 0

	for i := 0; i < 3; i++ {
		v, err := s.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
			calls++
			return "value", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "value" {
			t.Errorf("expected value, got %q", v)
		}
	}

	if calls != 1 {
		t.Errorf("fetch must run once, ran %d times", calls)
	}
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	s := NewStore[string]()
	calls := 0

	_, err := s.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected an error")
	}

	v, err := s.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "recovered" || calls != 2 {
		t.Errorf("error must not be cached: v=%q calls=%d", v, calls)
	}
}

func TestGetOrFetchDeduplicatesConcurrentMisses(t *testing.T) {
	s := NewStore[int]()
	var calls atomic.Int32
	release := make(chan struct{})

	const goroutines = 10
	var wg sync.WaitGroup
	results := make([]int, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.GetOrFetch(context.Background(), "shared", func(ctx context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}

	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("concurrent misses for one key must fetch once, fetched %d times", got)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("caller %d got %d, want 7", i, v)
		}
	}
}
