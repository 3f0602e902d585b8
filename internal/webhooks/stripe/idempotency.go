package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/designdock/designdock-backend/pkg/redis"
)

// IdempotencyGuard short-circuits gateway redeliveries of the same event id.
// It is an optimization only; the unique constraint on orders.stripe_pid is
// what makes distinct events for the same intent safe.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}

// IsProcessed reports whether the event id has already been handled to
// completion by an earlier delivery.
func (g *IdempotencyGuard) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	_, err := g.store.Get(ctx, g.key(eventID))
	if err != nil {
		if redis.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return true, nil
}

// MarkProcessed records the event id once the handler has finished. The mark
// is written only after success: a handler failure, panic, or process crash
// leaves the key absent, so the gateway's retry is processed rather than
// acked as a duplicate.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if _, err := g.store.SetNX(ctx, g.key(eventID), "1", g.ttl); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
