// Package redis keeps entries as JSON values indexed by a timeline sorted set
// scored in Unix microseconds.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/sentinel"
)

const (
	entryKeyPrefix = "audit:entry:"
	timelineKey    = "audit:timeline"
)

// Store implements audit.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key, for sharing one Redis between
// deployments.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New constructs a Redis-backed audit store. The client lifecycle is managed
// by the caller.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) entryKey(entryID string) string {
	return s.prefix + entryKeyPrefix + entryID
}

func (s *Store) timeline() string {
	return s.prefix + timelineKey
}

// Append writes the entry and its timeline slot in one MULTI/EXEC.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	entry.At = entry.At.Truncate(time.Microsecond)
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	member := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(member), payload, 0)
	pipe.ZAdd(ctx, s.timeline(), redis.Z{Score: float64(entry.At.UnixMicro()), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audit entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// QueryByDay reads the day's slice of the timeline. Entity-type filtering
// happens after the fetch.
func (s *Store) QueryByDay(ctx context.Context, day audit.Day, entityTypes []string) (audit.Grouped, error) {
	members, err := s.client.ZRevRangeByScore(ctx, s.timeline(), &redis.ZRangeBy{
		Min: strconv.FormatInt(day.Start.UnixMicro(), 10),
		Max: "(" + strconv.FormatInt(day.End.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query audit timeline: %w: %w", sentinel.ErrUnavailable, err)
	}

	entries, err := s.load(ctx, members)
	if err != nil {
		return nil, err
	}
	grouped := audit.Grouped{}
	for _, e := range entries {
		if !day.Contains(e.At) || !audit.MatchesType(e.EntityType, entityTypes) {
			continue
		}
		grouped[e.EntityType] = append(grouped[e.EntityType], e)
	}
	return grouped, nil
}

func (s *Store) QueryRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := s.client.ZRevRange(ctx, s.timeline(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("query audit timeline: %w: %w", sentinel.ErrUnavailable, err)
	}
	return s.load(ctx, members)
}

// load fetches entries in member order. Members whose value is missing are
// skipped.
func (s *Store) load(ctx context.Context, members []string) ([]audit.Entry, error) {
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.entryKey(m)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load audit entries: %w: %w", sentinel.ErrUnavailable, err)
	}

	entries := make([]audit.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", members[i], err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
