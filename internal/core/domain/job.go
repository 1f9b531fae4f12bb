package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

const JobTypeFulfillOrder = "fulfill_order"

// Job is a unit of retryable background work owned by the executor. The
// payload is the id of the purchase order whose stock application it
// carries out.
type Job struct {
	ID             string
	TenantID       string
	Type           string
	OrderID        string
	IdempotencyKey string
	Status         JobStatus
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FulfillmentKey derives the deterministic idempotency key for applying a
// paid order to stock. Re-submitting the same order always yields the same
// key, so duplicate submissions collapse onto one job.
func FulfillmentKey(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(orderID+":"+string(OrderStatusFulfilled))).String()
}

// NewFulfillmentJob builds the job enqueued when an order is confirmed paid.
func NewFulfillmentJob(order PurchaseOrder, maxAttempts int, now time.Time) Job {
	return Job{
		ID:             uuid.NewString(),
		TenantID:       order.TenantID,
		Type:           JobTypeFulfillOrder,
		OrderID:        order.ID,
		IdempotencyKey: FulfillmentKey(order.ID),
		Status:         JobStatusQueued,
		MaxAttempts:    maxAttempts,
		NextRunAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
