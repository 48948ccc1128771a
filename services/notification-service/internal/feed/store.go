package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotwise/slotwise/services/notification-service/internal/notifications"
)

// Feed is the stored state of one workspace. Filling marks a seed in flight; Touched
// lists the appointments that change events reached while it was in flight.
type Feed struct {
	Items   []notifications.Notification `json:"items"`
	Filling bool                         `json:"filling,omitempty"`
	Touched []string                     `json:"touched,omitempty"`
}

// UpdateFunc receives the stored feed and whether the workspace has one, and returns
// the feed to store. Returning ErrSkip leaves the store untouched.
type UpdateFunc func(f Feed, found bool) (Feed, error)

var ErrSkip = errors.New("feed: skip update")

var errContended = errors.New("feed: update contended")

type Store interface {
	Load(ctx context.Context, workspaceID string) (Feed, bool, error)
	Update(ctx context.Context, workspaceID string, fn UpdateFunc) (Feed, error)
}

// RedisStore keeps one JSON document per workspace and updates it with WATCH/MULTI.
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	retries int
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "feed"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, retries: 5}
}

func (s *RedisStore) key(workspaceID string) string {
	return s.prefix + ":" + workspaceID
}

func (s *RedisStore) Load(ctx context.Context, workspaceID string) (Feed, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(workspaceID)).Bytes()
	return decode(raw, err)
}

func (s *RedisStore) Update(ctx context.Context, workspaceID string, fn UpdateFunc) (Feed, error) {
	key := s.key(workspaceID)
	var out Feed
	txf := func(tx *redis.Tx) error {
		cur, found, err := decode(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		out = next
		return err
	}

	for i := 0; i < s.retries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrSkip):
			cur, _, lerr := s.Load(ctx, workspaceID)
			if lerr != nil {
				return Feed{}, lerr
			}
			return cur, ErrSkip
		default:
			return Feed{}, err
		}
	}
	return Feed{}, fmt.Errorf("%w: %s", errContended, workspaceID)
}

// decode also accepts the bare item array written before feeds carried fill state.
func decode(raw []byte, err error) (Feed, bool, error) {
	if errors.Is(err, redis.Nil) {
		return Feed{}, false, nil
	}
	if err != nil {
		return Feed{}, false, err
	}
	var f Feed
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &f.Items)
	} else {
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return Feed{}, false, fmt.Errorf("feed: decode: %w", err)
	}
	return f, true, nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	feeds map[string]Feed
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{feeds: map[string]Feed{}}
}

func (s *MemoryStore) Load(_ context.Context, workspaceID string) (Feed, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[workspaceID]
	return f.clone(), ok, nil
}

func (s *MemoryStore) Update(_ context.Context, workspaceID string, fn UpdateFunc) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.feeds[workspaceID]
	next, err := fn(cur.clone(), ok)
	if errors.Is(err, ErrSkip) {
		return cur.clone(), err
	}
	if err != nil {
		return Feed{}, err
	}
	if next.Items == nil {
		next.Items = []notifications.Notification{}
	}
	s.feeds[workspaceID] = next.clone()
	return next.clone(), nil
}

func (f Feed) clone() Feed {
	out := f
	out.Items = append([]notifications.Notification(nil), f.Items...)
	out.Touched = append([]string(nil), f.Touched...)
	return out
}
