package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour)
}

func TestCountersAccumulatePerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	total, err := store.IncrToday(ctx, "score", "char-1", 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if total, _ = store.IncrToday(ctx, "score", "char-1", 2); total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}

	count, err := store.CountToday(ctx, "score", "char-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
}

func TestCountersAreScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.IncrToday(ctx, "moment", "char-1", 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count, _ := store.CountToday(ctx, "moment", "char-2"); count != 0 {
		t.Fatalf("expected other scope untouched, got %d", count)
	}
	if count, _ := store.CountToday(ctx, "score", "char-1"); count != 0 {
		t.Fatalf("expected other feature untouched, got %d", count)
	}
}

func TestDayRollsOver(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	store.nowFunc = func() time.Time { return day }
	if err := store.MarkToday(ctx, "holiday", "char-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if marked, _ := store.MarkedToday(ctx, "holiday", "char-1"); !marked {
		t.Fatal("expected marker set for today")
	}

	store.nowFunc = func() time.Time { return day.AddDate(0, 0, 1) }
	if marked, _ := store.MarkedToday(ctx, "holiday", "char-1"); marked {
		t.Fatal("expected marker reset on next day")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if got, err := store.Timestamp(ctx, "last_seen", "app"); err != nil || !got.IsZero() {
		t.Fatalf("expected zero time for unset marker, got %v (%v)", got, err)
	}

	want := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	if err := store.SetTimestamp(ctx, "last_seen", "app", want); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, err := store.Timestamp(ctx, "last_seen", "app")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
