package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sequence hands out monotonically increasing values per key.
type Sequence interface {
	Next(ctx context.Context, key string) (int64, error)
}

// RedisSequence backs Sequence with INCR on a namespaced key.
type RedisSequence struct {
	client    *redis.Client
	namespace string
}

// NewRedisSequence constructs a RedisSequence.
func NewRedisSequence(client *redis.Client, namespace string) *RedisSequence {
	return &RedisSequence{client: client, namespace: namespace}
}

// Next increments and returns the counter for key.
func (s *RedisSequence) Next(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("redis sequence not initialised")
	}
	return s.client.Incr(ctx, s.namespace+":"+key).Result()
}

// Numberer allocates unique document numbers such as PO-2026-000042. The database UNIQUE
// constraint is authoritative; a collision with a generated number is retried.
type Numberer struct {
	seq      Sequence
	attempts int
	now      func() time.Time
}

// NewNumberer constructs a Numberer. A nil sequence falls back to timestamp-derived numbers.
func NewNumberer(seq Sequence, attempts int) *Numberer {
	if attempts <= 0 {
		attempts = 5
	}
	return &Numberer{seq: seq, attempts: attempts, now: time.Now}
}

// Next formats the next number for prefix.
func (n *Numberer) Next(ctx context.Context, prefix string) (string, error) {
	now := n.now().UTC()
	if n.seq == nil {
		return fmt.Sprintf("%s-%d", prefix, now.UnixNano()), nil
	}
	value, err := n.seq.Next(ctx, fmt.Sprintf("%s:%d", prefix, now.Year()))
	if err != nil {
		return "", fmt.Errorf("numbering: next %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, now.Year(), value), nil
}

// Assign calls insert with an explicit number once, or with generated numbers until insert
// stops reporting ErrDuplicateKey. It returns the number that was persisted.
func (n *Numberer) Assign(ctx context.Context, prefix, explicit string, insert func(number string) error) (string, error) {
	if explicit != "" {
		return explicit, insert(explicit)
	}
	for attempt := 0; attempt < n.attempts; attempt++ {
		number, err := n.Next(ctx, prefix)
		if err != nil {
			return "", err
		}
		err = insert(number)
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		return number, err
	}
	return "", fmt.Errorf("%w: could not allocate a %s number after %d attempts", ErrConflict, prefix, n.attempts)
}
