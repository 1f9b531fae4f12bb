package port

import (
	"context"
	"time"

	"github.com/lt0911/procure-flow/internal/core/domain"
)

// DatabaseRepository is the durable store behind the workflow, the ledger
// and the executor. Implementations must commit each method as a single
// atomic unit; the multi-row methods (CreatePaidTransition, ApplyStockDelta)
// exist precisely so that their steps cannot be observed half-applied.
type DatabaseRepository interface {
	// GetTenant retrieves a tenant by id.
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// GetProduct retrieves a product scoped to the tenant.
	GetProduct(ctx context.Context, tenantID, productID string) (*domain.Product, error)

	// CreateOrder persists a new purchase order in its initial state.
	CreateOrder(ctx context.Context, order domain.PurchaseOrder) error

	// GetOrder retrieves an order scoped to the tenant.
	GetOrder(ctx context.Context, tenantID, orderID string) (*domain.PurchaseOrder, error)

	// ListOrders returns the tenant's orders, newest first.
	ListOrders(ctx context.Context, tenantID string) ([]domain.PurchaseOrder, error)

	// UpdateOrder writes an order with a version check for optimistic
	// locking; returns domain.ErrVersionConflict on a stale write.
	UpdateOrder(ctx context.Context, order domain.PurchaseOrder, expectVersion int) error

	// CountOrdersInYear counts the tenant's orders created in the given
	// year, for reference generation.
	CountOrdersInYear(ctx context.Context, tenantID string, year int) (int, error)

	// CreatePaidTransition atomically writes the paid order (with version
	// check) and enqueues its fulfillment job. Fails with
	// domain.ErrPaymentRefTaken if the tenant already used the payment
	// reference, without touching either row.
	CreatePaidTransition(ctx context.Context, order domain.PurchaseOrder, expectVersion int, job domain.Job) error

	// ApplyStockDelta atomically adjusts on-hand quantity and appends the
	// audit record, returning the new quantity. Fails with
	// domain.ErrDuplicateApplication if a record for (causalOrderID,
	// productID) already exists, and domain.ErrInvalidDelta if the result
	// would be negative; in both cases quantity is untouched.
	ApplyStockDelta(ctx context.Context, tenantID, productID string, delta int, causalOrderID string) (int, error)

	// MutationsForOrder returns the audit records caused by an order.
	MutationsForOrder(ctx context.Context, tenantID, orderID string) ([]domain.StockMutationRecord, error)

	// CreateJob persists a job; if one with the same idempotency key
	// exists, it is returned instead and no new row is written.
	CreateJob(ctx context.Context, job domain.Job) (*domain.Job, error)

	// GetJob retrieves a job scoped to the tenant.
	GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error)

	// UpdateJob writes job status bookkeeping.
	UpdateJob(ctx context.Context, job domain.Job) error

	// DueJobs returns queued jobs whose NextRunAt is at or before now.
	DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
}
