//go:build integration

package cache

import (
	"context"
	"testing"
	"time"
)

// Requires a memcached on localhost:11211; skips when Set fails.
func TestMemcachedCache_GetSetStale_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2, time.Hour)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	val := sampleDataset()
	if err := c.Set(ctx, testSource, val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, testSource)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got.BaseTemperature != val.BaseTemperature || len(got.MonthlyVariance) != len(val.MonthlyVariance) {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}

	stale, ok, err := c.GetStale(ctx, testSource, time.Hour)
	if err != nil || !ok {
		t.Fatalf("GetStale() = ok %v, err %v", ok, err)
	}
	if !stale.Stale {
		t.Error("GetStale() result should be marked stale")
	}
}

func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2, 0)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "nonexistent-source")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
