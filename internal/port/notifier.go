package port

import "github.com/lt0911/procure-flow/internal/core/domain"

// Notifier is the fire-and-forget sink for operator-facing events.
// Implementations must never block the workflow; failures are swallowed
// and at most logged.
type Notifier interface {
	OrderFulfilled(order domain.PurchaseOrder)
	JobFailed(job domain.Job, reason string)
	LowStock(product domain.Product, quantity int)
}
