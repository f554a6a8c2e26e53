// Package redis stores the trial journal in Redis and coordinates controller
// ownership between tool instances.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/pidtune/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "pidtune:"

// Journal implements ports.Journal using Redis.
//
// Each entry is a JSON string with an optional TTL; a sorted set indexes the entries by
// start time. Index members whose entry has expired are pruned when the journal is listed.
type Journal struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Journal)

// WithTTL sets the expiration of journal entries.
func WithTTL(ttl time.Duration) Option {
	return func(j *Journal) {
		j.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(j *Journal) {
		j.prefix = prefix
	}
}

// New creates a Redis journal with options.
func New(address, password string, db int, opts ...Option) *Journal {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a Redis journal from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

var _ ports.Journal = (*Journal)(nil)

// Client returns the underlying client, e.g. to share it with a Locker.
func (j *Journal) Client() *backend.Client {
	return j.client
}

func (j *Journal) key(id string) string {
	return j.prefix + "trial:" + id
}

func (j *Journal) indexKey() string {
	return j.prefix + "trials"
}

func entryID(e ports.JournalEntry) string {
	return fmt.Sprintf("%s:%d:%d", e.Axis, e.StartedAt.UnixNano(), e.Trial)
}

// Append stores entry.
func (j *Journal) Append(ctx context.Context, entry ports.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	id := entryID(entry)

	pipe := j.client.TxPipeline()
	pipe.Set(ctx, j.key(id), data, j.ttl)
	pipe.ZAdd(ctx, j.indexKey(), backend.Z{
		Score:  float64(entry.StartedAt.UnixMilli()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis journal: %w", err)
	}
	return nil
}

// List returns the live entries, oldest first.
func (j *Journal) List(ctx context.Context) ([]ports.JournalEntry, error) {
	ids, err := j.client.ZRange(ctx, j.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = j.key(id)
	}
	values, err := j.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entries: %w", err)
	}

	entries := make([]ports.JournalEntry, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Lazy cleanup: the entry has expired.
			expired = append(expired, ids[i])
			continue
		}
		var e ports.JournalEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry %s: %w", ids[i], err)
		}
		entries = append(entries, e)
	}
	if len(expired) > 0 {
		if err := j.client.ZRem(ctx, j.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired entries: %w", err)
		}
	}
	return entries, nil
}

// Close closes the redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}
