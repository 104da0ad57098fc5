package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Errorf("deleting a missing key should not fail: %v", err)
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Now()
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		c.Set(ctx, tenantID, "short", []byte("v"), time.Second)
		c.Set(ctx, tenantID, "forever", []byte("v"), 0)

		clock = clock.Add(2 * time.Second)

		if val, _ := c.Get(ctx, tenantID, "short"); val != nil {
			t.Error("expected entry to expire")
		}
		if val, _ := c.Get(ctx, tenantID, "forever"); val == nil {
			t.Error("expected zero-ttl entry to survive")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes least recently used.
		small.Get(ctx, tenantID, "a")
		small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		for _, k := range []string{"a", "c", "d"} {
			if val, _ := small.Get(ctx, tenantID, k); val == nil {
				t.Errorf("expected %q to survive", k)
			}
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		cache.Set(ctx, "tenant-A", "shared", []byte("A"), time.Minute)
		cache.Set(ctx, "tenant-B", "shared", []byte("B"), time.Minute)

		a, _ := cache.Get(ctx, "tenant-A", "shared")
		b, _ := cache.Get(ctx, "tenant-B", "shared")
		if string(a) != "A" || string(b) != "B" {
			t.Errorf("tenant values leaked: A=%s B=%s", a, b)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
		if err := cache.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		c := NewLRUCache(5)
		c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)
		c.Get(ctx, tenantID, "k")
		c.Get(ctx, tenantID, "missing")

		s := c.Stats()
		if s.Size != 1 || s.Capacity != 5 || s.Hits != 1 || s.Misses != 1 {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(5)
		c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)
		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if c.Stats().Size != 0 {
			t.Error("expected empty cache after Close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	c := NewTwoPhaseCache(local, remote, time.Minute)

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		remote.Set(ctx, tenantID, "k", []byte("from-l2"), time.Hour)

		val, err := c.Get(ctx, tenantID, "k")
		if err != nil || string(val) != "from-l2" {
			t.Fatalf("Get = %q, %v", val, err)
		}
		if l1, _ := local.Get(ctx, tenantID, "k"); string(l1) != "from-l2" {
			t.Errorf("expected L1 to be populated, got %q", l1)
		}
	})

	t.Run("SetWritesBoth", func(t *testing.T) {
		if err := c.Set(ctx, tenantID, "s", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		l1, _ := local.Get(ctx, tenantID, "s")
		l2, _ := remote.Get(ctx, tenantID, "s")
		if l1 == nil || l2 == nil {
			t.Errorf("expected both levels set, l1=%q l2=%q", l1, l2)
		}
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		if err := c.Delete(ctx, tenantID, "s"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "s"); val != nil {
			t.Errorf("expected miss after delete, got %q", val)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	in := domain.RiskScore{TenantID: "t1", EntityID: "doc-1", Score: 42.5, Severity: domain.SeverityMedium}
	if err := SetJSON(ctx, c, "t1", "score:doc-1", in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	out, ok, err := GetJSON[domain.RiskScore](ctx, c, "t1", "score:doc-1")
	if err != nil || !ok {
		t.Fatalf("GetJSON = %v, %v", ok, err)
	}
	if out.Score != 42.5 || out.Severity != domain.SeverityMedium {
		t.Errorf("unexpected decoded value %+v", out)
	}

	if _, ok, _ := GetJSON[domain.RiskScore](ctx, c, "t1", "missing"); ok {
		t.Error("expected miss")
	}

	c.Set(ctx, "t1", "garbage", []byte("{"), time.Minute)
	if _, _, err := GetJSON[domain.RiskScore](ctx, c, "t1", "garbage"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
