package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/avelichko/waterline-monitor/internal/models"
)

func testBundle(cellID string) models.Bundle {
	return models.Bundle{
		CellID:  cellID,
		Year:    2025,
		Summary: models.CellSummary{CellID: cellID, RiskIndex: 112.5, MaxRisk: 120},
		Dataset: models.DatasetSynthetic,
	}
}

func TestInMemoryCache_MissThenHit(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "8611aa7afffffff|2025|2025-06-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() on empty cache reported a hit")
	}

	want := testBundle("8611aa7afffffff")
	if err := c.Set(ctx, "8611aa7afffffff|2025|2025-06-01", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "8611aa7afffffff|2025|2025-06-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() after Set reported a miss")
	}
	if got.Summary.RiskIndex != want.Summary.RiskIndex {
		t.Errorf("RiskIndex = %v, want %v", got.Summary.RiskIndex, want.Summary.RiskIndex)
	}
}

func TestInMemoryCache_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clock)
	ctx := context.Background()

	if err := c.Set(ctx, "k", testBundle("8611aa7afffffff"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.Advance(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestInMemoryCache_SetOverwrites(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	first := testBundle("8611aa7afffffff")
	second := testBundle("8611aa7afffffff")
	second.Summary.RiskIndex = 140

	_ = c.Set(ctx, "k", first, time.Minute)
	_ = c.Set(ctx, "k", second, time.Minute)

	got, ok, _ := c.Get(ctx, "k")
	if !ok || got.Summary.RiskIndex != 140 {
		t.Errorf("Get() = %v (hit=%v), want the overwritten bundle", got.Summary.RiskIndex, ok)
	}
}

func TestInMemoryCache_KeysIsolated(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a|2025|2025-06-01", testBundle("a"), time.Minute)

	if _, ok, _ := c.Get(ctx, "a|2024|2025-06-01"); ok {
		t.Error("different selection key reported a hit")
	}
}
