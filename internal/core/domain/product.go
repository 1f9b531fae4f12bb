package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string
	TenantID     string
	SKU          string
	Name         string
	Price        decimal.Decimal
	OnHand       int // optimistic locking via Version, mutated only by the stock ledger
	ReorderLevel int
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LowStock reports whether on-hand has fallen to or below the reorder level.
func (p Product) LowStock() bool {
	return p.OnHand <= p.ReorderLevel
}

// StockMutationRecord is an append-only audit entry. Exactly one record
// exists per successful ledger mutation; the pair (CausedByOrderID,
// ProductID) is unique and is the idempotence source of truth for
// fulfillment retries.
type StockMutationRecord struct {
	ID              string
	TenantID        string
	ProductID       string
	Delta           int
	CausedByOrderID string
	AppliedAt       time.Time
}
