package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimState is the outcome of claiming an event id.
type ClaimState int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed ClaimState = iota
	// AlreadyProcessed means a previous delivery completed the event.
	AlreadyProcessed
	// InFlight means another delivery holds the claim.
	InFlight
)

func (s ClaimState) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case AlreadyProcessed:
		return "already_processed"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// EventLedger records which Stripe event ids have been applied.
type EventLedger interface {
	Claim(ctx context.Context, eventID string) (ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

const (
	ledgerProcessing = "processing"
	ledgerDone       = "done"

	DefaultInflightTTL = 2 * time.Minute
	DefaultDoneTTL     = 30 * 24 * time.Hour
)

// RedisLedger keeps claims in Redis. An in-flight claim expires after inflightTTL so a
// crashed worker does not block the event forever.
type RedisLedger struct {
	rdb         redis.Cmdable
	prefix      string
	inflightTTL time.Duration
	doneTTL     time.Duration
}

// NewRedisLedger returns a ledger; non-positive TTLs fall back to the defaults.
func NewRedisLedger(rdb redis.Cmdable, inflightTTL, doneTTL time.Duration) *RedisLedger {
	if inflightTTL <= 0 {
		inflightTTL = DefaultInflightTTL
	}
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}
	return &RedisLedger{
		rdb:         rdb,
		prefix:      "captify:stripe:event:",
		inflightTTL: inflightTTL,
		doneTTL:     doneTTL,
	}
}

func (l *RedisLedger) key(eventID string) string {
	return l.prefix + eventID
}

func (l *RedisLedger) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key := l.key(eventID)
	// Two attempts: the existing claim can expire between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, ledgerProcessing, l.inflightTTL).Result()
		if err != nil {
			return InFlight, fmt.Errorf("claim event %s: %w", eventID, err)
		}
		if ok {
			return Claimed, nil
		}

		val, err := l.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return InFlight, fmt.Errorf("read event %s: %w", eventID, err)
		}
		if val == ledgerDone {
			return AlreadyProcessed, nil
		}
		return InFlight, nil
	}
	return InFlight, nil
}

func (l *RedisLedger) Complete(ctx context.Context, eventID string) error {
	if err := l.rdb.Set(ctx, l.key(eventID), ledgerDone, l.doneTTL).Err(); err != nil {
		return fmt.Errorf("complete event %s: %w", eventID, err)
	}
	return nil
}

func (l *RedisLedger) Release(ctx context.Context, eventID string) error {
	if err := l.rdb.Del(ctx, l.key(eventID)).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// MemoryLedger is a process-local ledger for local runs and tests.
type MemoryLedger struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	inflightTTL time.Duration
	doneTTL     time.Duration
	now         func() time.Time
}

type memoryEntry struct {
	state   string
	expires time.Time
}

func NewMemoryLedger(inflightTTL, doneTTL time.Duration) *MemoryLedger {
	if inflightTTL <= 0 {
		inflightTTL = DefaultInflightTTL
	}
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}
	return &MemoryLedger{
		entries:     map[string]memoryEntry{},
		inflightTTL: inflightTTL,
		doneTTL:     doneTTL,
		now:         time.Now,
	}
}

func (l *MemoryLedger) Claim(_ context.Context, eventID string) (ClaimState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[eventID]; ok && now.Before(e.expires) {
		if e.state == ledgerDone {
			return AlreadyProcessed, nil
		}
		return InFlight, nil
	}
	l.entries[eventID] = memoryEntry{state: ledgerProcessing, expires: now.Add(l.inflightTTL)}
	return Claimed, nil
}

func (l *MemoryLedger) Complete(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[eventID] = memoryEntry{state: ledgerDone, expires: l.now().Add(l.doneTTL)}
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, eventID)
	return nil
}
