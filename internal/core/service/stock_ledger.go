package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/core/domain"
	"github.com/lt0911/procure-flow/internal/port"
)

// StockLedger is the single writer of on-hand quantity. Every mutation
// goes through ApplyDelta, which commits the quantity change together with
// its audit record; nothing else in the system touches stock.
type StockLedger struct {
	db       port.DatabaseRepository
	cache    port.CacheRepository
	notifier port.Notifier
	log      *logrus.Logger
}

func NewStockLedger(db port.DatabaseRepository, cache port.CacheRepository, notifier port.Notifier, log *logrus.Logger) *StockLedger {
	return &StockLedger{db: db, cache: cache, notifier: notifier, log: log}
}

// ApplyDelta adjusts on-hand quantity for a product and returns the new
// quantity. The mutation record for (causalOrderID, productID), not any job
// status, is what makes retries safe: a repeat call fails with
// domain.ErrDuplicateApplication and leaves quantity untouched.
func (l *StockLedger) ApplyDelta(ctx context.Context, tenantID, productID string, delta int, causalOrderID string) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("zero delta for product %s: %w", productID, domain.ErrInvalidDelta)
	}

	product, err := l.db.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return 0, l.guardErr(err, "product", productID, tenantID)
	}
	if product.TenantID != tenantID {
		return 0, l.securityErr("product", productID, tenantID)
	}

	newQty, err := l.db.ApplyStockDelta(ctx, tenantID, productID, delta, causalOrderID)
	if errors.Is(err, domain.ErrDuplicateApplication) {
		l.log.WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"product_id": productID,
			"order_id":   causalOrderID,
		}).Info("stock delta already applied, skipping")
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}

	if cacheErr := l.cache.SetQuantity(ctx, tenantID, productID, newQty); cacheErr != nil {
		l.log.WithField("product_id", productID).Warnf("quantity cache update failed: %v", cacheErr)
	}

	l.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"product_id": productID,
		"delta":      delta,
		"on_hand":    newQty,
		"order_id":   causalOrderID,
	}).Info("stock mutated")

	if newQty <= product.ReorderLevel {
		snapshot := *product
		snapshot.OnHand = newQty
		l.notifier.LowStock(snapshot, newQty)
	}

	return newQty, nil
}

// GetQuantity returns the current on-hand snapshot, serving from the cache
// when possible. The durable store stays authoritative; the cache is
// refreshed on every mutation and on misses.
func (l *StockLedger) GetQuantity(ctx context.Context, tenantID, productID string) (int, error) {
	if qty, found, err := l.cache.GetQuantity(ctx, tenantID, productID); err == nil && found {
		return qty, nil
	} else if err != nil {
		l.log.WithField("product_id", productID).Warnf("quantity cache read failed: %v", err)
	}

	product, err := l.db.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return 0, l.guardErr(err, "product", productID, tenantID)
	}
	if product.TenantID != tenantID {
		return 0, l.securityErr("product", productID, tenantID)
	}

	if cacheErr := l.cache.SetQuantity(ctx, tenantID, productID, product.OnHand); cacheErr != nil {
		l.log.WithField("product_id", productID).Warnf("quantity cache update failed: %v", cacheErr)
	}
	return product.OnHand, nil
}

// MutationsForOrder exposes the audit trail an order produced.
func (l *StockLedger) MutationsForOrder(ctx context.Context, tenantID, orderID string) ([]domain.StockMutationRecord, error) {
	records, err := l.db.MutationsForOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load mutations for order %s: %w", orderID, err)
	}
	return records, nil
}

func (l *StockLedger) guardErr(err error, kind, id, tenantID string) error {
	if errors.Is(err, domain.ErrCrossTenantAccess) {
		return l.securityErr(kind, id, tenantID)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func (l *StockLedger) securityErr(kind, id, tenantID string) error {
	l.log.WithFields(logrus.Fields{
		"security":  "cross_tenant",
		"entity":    kind,
		"entity_id": id,
		"tenant_id": tenantID,
	}).Warn("cross-tenant access rejected")
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrCrossTenantAccess)
}
