package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("a", "1")
	got, ok := c.Get("a")
	if !ok || got != "1" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestExpiredEntryEvicted(t *testing.T) {
	c := New[int](50 * time.Millisecond)

	c.Set("k", 42)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be live")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should be expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, len = %d", c.Len())
	}
}

func TestInvalidate(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("len = %d after Invalidate", c.Len())
	}
}

func TestDisabled(t *testing.T) {
	c := New[int](0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero ttl cache should never hit")
	}
}

func TestLoaderCollapsesAndCaches(t *testing.T) {
	l := NewLoader[int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Get("k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err != nil || v != 42 {
				t.Errorf("Get = %d, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("calls = %d", n)
	}
	before := calls.Load()
	if v, _ := l.Get("k", func() (int, error) { calls.Add(1); return 0, nil }); v != 42 {
		t.Errorf("cached value = %d", v)
	}
	if calls.Load() != before {
		t.Error("cached Get called load")
	}
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	l := NewLoader[string](time.Minute)
	boom := errors.New("boom")
	if _, err := l.Get("k", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	v, err := l.Get("k", func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("Get after error = %q, %v", v, err)
	}
	l.Invalidate()
	v, _ = l.Get("k", func() (string, error) { return "fresh", nil })
	if v != "fresh" {
		t.Errorf("after Invalidate = %q", v)
	}
}

func TestInvalidateDuringLoadDropsStaleResult(t *testing.T) {
	l := NewLoader[string](time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)

	go func() {
		v, _ := l.Get("k", func() (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		done <- v
	}()

	<-started
	l.Invalidate()

	v, err := l.Get("k", func() (string, error) { return "new", nil })
	if err != nil || v != "new" {
		t.Fatalf("Get after Invalidate = %q, %v", v, err)
	}

	close(release)
	if got := <-done; got != "old" {
		t.Errorf("in-flight load = %q", got)
	}

	v, _ = l.Get("k", func() (string, error) { return "reload", nil })
	if v != "new" {
		t.Errorf("cached value = %q, want result of the post-invalidate load", v)
	}
}

func TestUnusedCacheAllocatesNothing(t *testing.T) {
	l := NewLoader[int](time.Minute)
	l.Invalidate()
	if l.entries.entries != nil {
		t.Fatal("LRU created before the first store")
	}
	_, _ = l.Get("k", func() (int, error) { return 1, nil })
	if l.entries.entries == nil || l.entries.Len() != 1 {
		t.Error("value not stored")
	}
}
