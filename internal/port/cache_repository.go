package port

import (
	"context"
	"time"
)

// CacheRepository is the fast-path layer in front of the durable store.
// Everything here is advisory: the durable store remains authoritative and
// re-checks every claim inside its own transaction.
type CacheRepository interface {
	// ClaimKey sets a key if absent, returns false if already claimed
	ClaimKey(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseKey drops a previously claimed key (rollback on failure)
	ReleaseKey(ctx context.Context, key string) error

	// SetQuantity caches an on-hand snapshot for fast reads
	SetQuantity(ctx context.Context, tenantID, productID string, quantity int) error

	// GetQuantity returns the cached snapshot; found=false on a miss
	GetQuantity(ctx context.Context, tenantID, productID string) (int, bool, error)
}

// Locker provides short-lived mutual exclusion between workers attempting
// the same job. Obtain returns ok=false, without error, when the lock is
// held elsewhere; release must always be called when ok.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
