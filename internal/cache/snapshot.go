// Package cache stores the latest channel-performance report in Redis so
// the API can serve it without re-scanning the journey backlog. Snapshots
// are written whole by the recompute worker; a partially finished run never
// overwrites a committed snapshot.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/attribution-engine/internal/analytics"
)

// ErrNotFound is returned when no snapshot exists for the segment.
var ErrNotFound = errors.New("no snapshot for segment")

const keyPrefix = "attribution:channel_report:"

// ReportSnapshot is the cached form of a channel performance report.
type ReportSnapshot struct {
	Segment      string                    `json:"segment"`
	ModelID      string                    `json:"model_id"`
	Metrics      []analytics.ChannelMetric `json:"metrics"`
	JourneyCount int64                     `json:"journey_count"`
	SkippedCount int64                     `json:"skipped_count"`
	ComputedAt   time.Time                 `json:"computed_at"`
}

// SnapshotStore reads and writes report snapshots keyed by segment.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore creates a store with the given TTL. A zero TTL keeps
// snapshots until the next write.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

// Put replaces the snapshot for a segment atomically (single SET).
func (s *SnapshotStore) Put(ctx context.Context, snap *ReportSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+snap.Segment, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot %s: %w", snap.Segment, err)
	}
	return nil
}

// Get returns the snapshot for a segment, or ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, segment string) (*ReportSnapshot, error) {
	data, err := s.client.Get(ctx, keyPrefix+segment).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("segment %s: %w", segment, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", segment, err)
	}
	var snap ReportSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", segment, err)
	}
	return &snap, nil
}
