// Package dlq parks fetches that exhausted their retries so a replay
// worker can pick them up later.
//
// Layout in redis: one sorted set schedules entry IDs by their next
// replay time, and each entry body lives under its own JSON key with a
// TTL so abandoned state ages out on its own.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scheduleKey = "bulwark:dlq:schedule"
	entryPrefix = "bulwark:dlq:entry:"
	entryTTL    = 24 * time.Hour
)

type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Entry is one parked fetch.
type Entry struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Kind           string    `json:"kind"`
	DestinationKey string    `json:"destination_key"`
	StrategyLabel  string    `json:"strategy_label"`
	Error          string    `json:"error"`
	ErrorType      string    `json:"error_type"` // transient or permanent
	ReplayCount    int       `json:"replay_count"`
	NextRetryAt    time.Time `json:"next_retry_at"`
	CreatedAt      time.Time `json:"created_at"`
	LastFailedAt   time.Time `json:"last_failed_at"`
}

type Queue struct {
	client *redis.Client
}

// NewQueue connects to redis and verifies the connection.
func NewQueue(cfg Config) (*Queue, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func entryKey(id string) string {
	return entryPrefix + id
}

// Push parks an entry and schedules it for replay at NextRetryAt.
func (q *Queue) Push(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := q.client.Set(ctx, entryKey(e.ID), data, entryTTL).Err(); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	if err := q.client.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(e.NextRetryAt.Unix()),
		Member: e.ID,
	}).Err(); err != nil {
		return fmt.Errorf("schedule entry: %w", err)
	}
	return nil
}

// PopDue removes and returns the entry due soonest, or ok=false when
// nothing is due yet. The caller must Resolve or Reschedule it.
func (q *Queue) PopDue(ctx context.Context, now time.Time) (*Entry, bool, error) {
	ids, err := q.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, false, fmt.Errorf("query schedule: %w", err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	id := ids[0]

	if err := q.client.ZRem(ctx, scheduleKey, id).Err(); err != nil {
		return nil, false, fmt.Errorf("unschedule entry: %w", err)
	}

	data, err := q.client.Get(ctx, entryKey(id)).Result()
	if err == redis.Nil {
		// Body expired; the schedule reference is already gone.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal entry %s: %w", id, err)
	}
	return &e, true, nil
}

// Reschedule puts a popped entry back on the schedule with its updated
// counters and replay time.
func (q *Queue) Reschedule(ctx context.Context, e *Entry) error {
	return q.Push(ctx, e)
}

// Resolve deletes a popped entry's body for good.
func (q *Queue) Resolve(ctx context.Context, id string) error {
	if err := q.client.Del(ctx, entryKey(id)).Err(); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Depth reports how many entries are currently scheduled.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, scheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("read schedule depth: %w", err)
	}
	return n, nil
}

// List returns up to limit entries in replay order without removing
// them.
func (q *Queue) List(ctx context.Context, limit int64) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.ZRange(ctx, scheduleKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}

	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		data, err := q.client.Get(ctx, entryKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load entry %s: %w", id, err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// PurgeAll drops every parked entry and returns how many were
// scheduled.
func (q *Queue) PurgeAll(ctx context.Context) (int64, error) {
	ids, err := q.client.ZRange(ctx, scheduleKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list schedule: %w", err)
	}
	for _, id := range ids {
		if err := q.client.Del(ctx, entryKey(id)).Err(); err != nil {
			return 0, fmt.Errorf("delete entry %s: %w", id, err)
		}
	}
	if err := q.client.Del(ctx, scheduleKey).Err(); err != nil {
		return 0, fmt.Errorf("drop schedule: %w", err)
	}
	return int64(len(ids)), nil
}
