package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStore maps (tenant_id, correlation_id) to the screening id
// that request produced, so re-invocations return the original screening
// without dispatching new provider calls.
type IdempotencyStore struct {
	cache Cache
	ttl   time.Duration
}

// NewIdempotencyStore builds the store over the generic cache.
func NewIdempotencyStore(c Cache, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{cache: c, ttl: ttl}
}

func idempotencyKey(tenantID, correlationID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", IdempotencyPrefix, tenantID, correlationID)
}

// Reserve atomically claims the key for a screening id. When the key was
// already claimed it returns the existing screening id and false.
func (s *IdempotencyStore) Reserve(ctx context.Context, tenantID, correlationID, screeningID uuid.UUID) (uuid.UUID, bool, error) {
	key := idempotencyKey(tenantID, correlationID)

	ok, err := s.cache.SetNX(ctx, key, screeningID.String(), s.ttl)
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return screeningID, true, nil
	}

	existing, err := s.cache.Get(ctx, key)
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(existing)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry %q: %w", existing, err)
	}
	return id, false, nil
}

// Lookup returns the screening id claimed for the key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, tenantID, correlationID uuid.UUID) (uuid.UUID, bool, error) {
	existing, err := s.cache.Get(ctx, idempotencyKey(tenantID, correlationID))
	if err != nil {
		if _, ok := err.(ErrCacheKeyNotFound); ok {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(existing)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry %q: %w", existing, err)
	}
	return id, true, nil
}
