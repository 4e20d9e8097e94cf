// Package throttle persists the frequency markers that gate background
// behaviors: daily counters and last-seen timestamps keyed by
// (feature, scope, calendar day). Markers survive restarts; day-scoped
// keys expire after the retention window.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const dayFormat = "2006-01-02"

// Store wraps a Redis client with marker semantics.
type Store struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a marker store. Day-scoped keys are pruned after
// retention; zero defaults to 72 hours.
func NewStore(client *redis.Client, retention time.Duration) *Store {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &Store{
		client:    client,
		prefix:    "throttle",
		retention: retention,
		nowFunc:   time.Now,
	}
}

func (s *Store) dayKey(feature, scope string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, feature, scope, s.nowFunc().Format(dayFormat))
}

func (s *Store) tsKey(feature, scope string) string {
	return fmt.Sprintf("%s:ts:%s:%s", s.prefix, feature, scope)
}

// IncrToday adds n to today's counter for (feature, scope) and returns the
// new total.
func (s *Store) IncrToday(ctx context.Context, feature, scope string, n int) (int, error) {
	key := s.dayKey(feature, scope)
	total, err := s.client.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment marker %s: %w", key, err)
	}
	// Expiry is best-effort; a missed TTL only delays pruning.
	s.client.Expire(ctx, key, s.retention)
	return int(total), nil
}

// CountToday returns today's counter for (feature, scope); zero if unset.
func (s *Store) CountToday(ctx context.Context, feature, scope string) (int, error) {
	val, err := s.client.Get(ctx, s.dayKey(feature, scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read marker: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("marker value is not a counter: %w", err)
	}
	return count, nil
}

// MarkedToday reports whether (feature, scope) already fired today.
func (s *Store) MarkedToday(ctx context.Context, feature, scope string) (bool, error) {
	count, err := s.CountToday(ctx, feature, scope)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkToday records one firing of (feature, scope) for today.
func (s *Store) MarkToday(ctx context.Context, feature, scope string) error {
	_, err := s.IncrToday(ctx, feature, scope, 1)
	return err
}

// SetTimestamp persists an instant for (feature, scope), e.g. last-seen.
// Timestamps carry no TTL: offline catch-up must see across restarts.
func (s *Store) SetTimestamp(ctx context.Context, feature, scope string, t time.Time) error {
	if err := s.client.Set(ctx, s.tsKey(feature, scope), t.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("failed to set timestamp marker: %w", err)
	}
	return nil
}

// Timestamp returns the stored instant, or the zero time when unset.
func (s *Store) Timestamp(ctx context.Context, feature, scope string) (time.Time, error) {
	val, err := s.client.Get(ctx, s.tsKey(feature, scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read timestamp marker: %w", err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp marker is not an instant: %w", err)
	}
	return time.UnixMilli(millis), nil
}
