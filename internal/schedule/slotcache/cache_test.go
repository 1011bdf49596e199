package slotcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/citasalud/citasalud-api/pkg/logging"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, time.Minute, logging.New("error")), mr
}

func TestPutGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	doctorID := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []time.Time{
		day.Add(9 * time.Hour),
		day.Add(9*time.Hour + 30*time.Minute),
	}

	if _, ok := cache.Get(ctx, doctorID, day, 30); ok {
		t.Fatal("expected miss before put")
	}

	cache.Put(ctx, doctorID, day, 30, slots)

	got, ok := cache.Get(ctx, doctorID, day, 30)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if len(got) != 2 || !got[0].Equal(slots[0]) || !got[1].Equal(slots[1]) {
		t.Errorf("got %v, want %v", got, slots)
	}
}

func TestDurationsAreSeparateEntries(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	doctorID := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cache.Put(ctx, doctorID, day, 30, []time.Time{day.Add(9 * time.Hour)})

	if _, ok := cache.Get(ctx, doctorID, day, 60); ok {
		t.Error("60-minute lookup should not hit the 30-minute entry")
	}
}

func TestInvalidateDropsAllEntriesForDoctor(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	doctorID := uuid.New()
	other := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)

	cache.Put(ctx, doctorID, day, 30, []time.Time{day.Add(9 * time.Hour)})
	cache.Put(ctx, doctorID, nextDay, 30, []time.Time{nextDay.Add(9 * time.Hour)})
	cache.Put(ctx, other, day, 30, []time.Time{day.Add(10 * time.Hour)})

	cache.Invalidate(ctx, doctorID)

	if _, ok := cache.Get(ctx, doctorID, day, 30); ok {
		t.Error("entry should be gone after invalidation")
	}
	if _, ok := cache.Get(ctx, doctorID, nextDay, 30); ok {
		t.Error("all days for the doctor should be gone after invalidation")
	}
	if _, ok := cache.Get(ctx, other, day, 30); !ok {
		t.Error("other doctors' entries should survive")
	}
}

func TestEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	doctorID := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cache.Put(ctx, doctorID, day, 30, []time.Time{day.Add(9 * time.Hour)})
	mr.FastForward(2 * time.Minute)

	if _, ok := cache.Get(ctx, doctorID, day, 30); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestRedisDownDegradesToMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	doctorID := uuid.New()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mr.Close()

	if _, ok := cache.Get(ctx, doctorID, day, 30); ok {
		t.Error("expected miss when redis is unreachable")
	}
	cache.Put(ctx, doctorID, day, 30, []time.Time{day.Add(9 * time.Hour)})
	cache.Invalidate(ctx, doctorID)
}
