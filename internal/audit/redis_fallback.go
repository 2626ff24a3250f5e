package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	defaultFallbackKey    = "emergency_logs:fallback"
	defaultFallbackMaxLen = 10000
)

// RedisFallback keeps entries in a capped Redis list when the primary store is down.
type RedisFallback struct {
	redis  *redis.Client
	key    string
	maxLen int64
}

func NewRedisFallback(client *redis.Client) *RedisFallback {
	if client == nil {
		panic("audit: redis client cannot be nil")
	}
	return &RedisFallback{redis: client, key: defaultFallbackKey, maxLen: defaultFallbackMaxLen}
}

// WithMaxLen caps the number of retained entries.
func (f *RedisFallback) WithMaxLen(n int64) *RedisFallback {
	if n > 0 {
		f.maxLen = n
	}
	return f
}

func (f *RedisFallback) RecordEmergencyActivation(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal fallback entry: %w", err)
	}
	_, err = f.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, f.key, data)
		pipe.LTrim(ctx, f.key, 0, f.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit: push fallback entry: %w", err)
	}
	return nil
}

// List returns up to limit fallback entries, newest first.
func (f *RedisFallback) List(ctx context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := f.redis.LRange(ctx, f.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: read fallback entries: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("audit: decode fallback entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
