package cache

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("req-1", "result")
	got, ok := c.Get("req-1")
	if !ok || got != "result" {
		t.Fatalf("expected cached value, got %q %v", got, ok)
	}

	c.Delete("req-1")
	if _, ok := c.Get("req-1"); ok {
		t.Fatalf("expected value to be deleted")
	}
}

func TestExpiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k", 1)
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to be hidden")
	}
	if c.Size() != 1 {
		t.Fatalf("expected expired entry to remain until cleanup")
	}
	c.cleanup()
	if c.Size() != 0 {
		t.Fatalf("expected cleanup to remove expired entry, size=%d", c.Size())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Stop()
	c.Stop()
}
