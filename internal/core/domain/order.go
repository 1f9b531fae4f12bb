package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved_pending_payment"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type LineItem struct {
	ProductID string
	Quantity  int
	UnitCost  decimal.Decimal
}

// Subtotal is quantity times unit cost.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitCost.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type PurchaseOrder struct {
	ID               string
	TenantID         string
	Reference        string // PO-<TENANT>-<YEAR>-<NNNN>, unique per tenant
	Items            []LineItem
	TotalAmount      decimal.Decimal
	Status           OrderStatus
	CreatedBy        string
	ApprovedBy       string
	ApprovedAt       *time.Time
	PaidBy           string
	PaidAt           *time.Time
	PaymentRef       string // unique per tenant once set
	FulfillmentJobID string
	Notes            string
	Version          int // optimistic locking
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Total sums line item subtotals.
func (o PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

// Terminal reports whether no further transition is possible.
func (o PurchaseOrder) Terminal() bool {
	return o.Status == OrderStatusFulfilled || o.Status == OrderStatusCancelled
}

// Cancellable reports whether the order may still be cancelled. Payment is
// the point of no return: once paid, stock application is committed work.
func (o PurchaseOrder) Cancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusApproved
}

// OrderReference builds the tenant-scoped human-readable reference.
func OrderReference(tenantCode string, year int, seq int) string {
	return fmt.Sprintf("PO-%s-%d-%04d", tenantCode, year, seq)
}
