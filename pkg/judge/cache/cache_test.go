package cache

import (
	"bytes"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(Config{Root: t.TempDir(), TTL: ttl})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)

	payload := []byte("the quick brown fox")
	id, err := c.Put(TypeSource, payload, Metadata{Filename: "main.cpp"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _, err := c.ReadAll(id)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadAll() = %q, want %q", got, payload)
	}
}

func TestGetUnknownHandle(t *testing.T) {
	c := newTestCache(t, time.Minute)
	if _, err := c.Get("does-not-exist"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t, 10*time.Millisecond)

	id, err := c.Put(TypeInput, []byte("1 2"), Metadata{Filename: "input.txt"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if !c.Has(id) {
		t.Fatal("Has() = false immediately after Put")
	}

	time.Sleep(20 * time.Millisecond)

	if c.Has(id) {
		t.Fatal("Has() = true after TTL expiry")
	}
	if _, err := c.Get(id); err != ErrNotFound {
		t.Fatalf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestRefreshExtendsTTL(t *testing.T) {
	c := newTestCache(t, 30*time.Millisecond)

	id, _ := c.Put(TypeOutput, []byte("3"), Metadata{Filename: "output.txt"})

	time.Sleep(20 * time.Millisecond)
	if !c.Refresh(id) {
		t.Fatal("Refresh() on live handle = false")
	}

	time.Sleep(20 * time.Millisecond)
	if !c.Has(id) {
		t.Fatal("Refresh() did not extend TTL")
	}
}

func TestRefreshOnExpiredHandle(t *testing.T) {
	c := newTestCache(t, 10*time.Millisecond)

	id, _ := c.Put(TypeOutput, []byte("3"), Metadata{})
	time.Sleep(20 * time.Millisecond)

	if c.Refresh(id) {
		t.Fatal("Refresh() on expired handle = true, want false")
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := newTestCache(t, time.Minute)

	id, _ := c.Put(TypeBinary, []byte("binary"), Metadata{})
	c.Delete(id)

	if c.Has(id) {
		t.Fatal("Has() = true after Delete")
	}
}

func TestStatsCountsLiveOnly(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.Put(TypeSource, []byte("aaa"), Metadata{})
	c.Put(TypeSource, []byte("bb"), Metadata{})

	stats := c.Stats()
	if stats.Count != 2 {
		t.Fatalf("Stats().Count = %d, want 2", stats.Count)
	}
	if stats.TotalBytes != 5 {
		t.Fatalf("Stats().TotalBytes = %d, want 5", stats.TotalBytes)
	}
}

func TestPutHandlesAreUnique(t *testing.T) {
	c := newTestCache(t, time.Minute)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := c.Put(TypeInput, []byte("x"), Metadata{})
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate handle %q", id)
		}
		seen[id] = true
	}
}

func TestSweeperRemovesExpired(t *testing.T) {
	c, err := New(Config{Root: t.TempDir(), TTL: 15 * time.Millisecond, SweepInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	id, _ := c.Put(TypeInput, []byte("x"), Metadata{})

	time.Sleep(60 * time.Millisecond)

	c.mu.RLock()
	_, stillIndexed := c.index[id]
	c.mu.RUnlock()
	if stillIndexed {
		t.Fatal("sweeper did not remove expired entry from index")
	}
}
