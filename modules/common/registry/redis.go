package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolio-studio-server/modules/common/model"
)

const (
	defaultRedisPrefix = "studio:registry"
)

// Redis - registry persisted in Redis, bounded by a sorted set of accept times
type Redis struct {
	rdb      redis.UniversalClient
	prefix   string
	capacity int
}

// redisRecord - wire form; Asset.Data is excluded from model JSON so it is carried here
type redisRecord struct {
	ProjectID  string       `json:"project_id"`
	Origin     model.Origin `json:"origin"`
	URL        string       `json:"url,omitempty"`
	MimeType   string       `json:"mime_type"`
	Data       []byte       `json:"data"`
	JobID      string       `json:"job_id,omitempty"`
	PublicPath string       `json:"public_path,omitempty"`
	AcceptedAt time.Time    `json:"accepted_at"`
}

// NewRedis - capacity <= 0 means unbounded; empty prefix uses "studio:registry"
func NewRedis(rdb redis.UniversalClient, prefix string, capacity int) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, capacity: capacity}
}

func (r *Redis) entryKey(projectID string) string {
	return fmt.Sprintf("%s:entry:%s", r.prefix, projectID)
}

func (r *Redis) indexKey() string {
	return r.prefix + ":index"
}

func (r *Redis) Put(ctx context.Context, entry Entry) error {
	if entry.AcceptedAt.IsZero() {
		entry.AcceptedAt = time.Now()
	}
	body, err := json.Marshal(redisRecord{
		ProjectID:  entry.ProjectID,
		Origin:     entry.Asset.Origin,
		URL:        entry.Asset.URL,
		MimeType:   entry.Asset.MimeType,
		Data:       entry.Asset.Data,
		JobID:      entry.JobID,
		PublicPath: entry.PublicPath,
		AcceptedAt: entry.AcceptedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal registry entry: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(entry.ProjectID), body, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(entry.AcceptedAt.UnixNano()), Member: entry.ProjectID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store registry entry: %w", err)
	}
	return r.trim(ctx)
}

// trim - evict the oldest accepted entries beyond capacity
func (r *Redis) trim(ctx context.Context) error {
	if r.capacity <= 0 {
		return nil
	}
	count, err := r.rdb.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to count registry entries: %w", err)
	}
	excess := count - int64(r.capacity)
	if excess <= 0 {
		return nil
	}
	evicted, err := r.rdb.ZPopMin(ctx, r.indexKey(), excess).Result()
	if err != nil {
		return fmt.Errorf("failed to evict registry entries: %w", err)
	}
	keys := make([]string, 0, len(evicted))
	for _, z := range evicted {
		if id, ok := z.Member.(string); ok {
			keys = append(keys, r.entryKey(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *Redis) Get(ctx context.Context, projectID string) (Entry, error) {
	body, err := r.rdb.Get(ctx, r.entryKey(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read registry entry: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return Entry{}, fmt.Errorf("failed to decode registry entry: %w", err)
	}
	return Entry{
		ProjectID: rec.ProjectID,
		Asset: model.Asset{
			Origin:   rec.Origin,
			URL:      rec.URL,
			Data:     rec.Data,
			MimeType: rec.MimeType,
		},
		JobID:      rec.JobID,
		PublicPath: rec.PublicPath,
		AcceptedAt: rec.AcceptedAt,
	}, nil
}

func (r *Redis) Delete(ctx context.Context, projectID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.entryKey(projectID))
		pipe.ZRem(ctx, r.indexKey(), projectID)
		return nil
	})
	return err
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	return ids, nil
}
