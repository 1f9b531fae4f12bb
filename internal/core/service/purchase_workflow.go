package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/core/domain"
	"github.com/lt0911/procure-flow/internal/port"
)

const paymentRefTTL = 24 * time.Hour

type CreateOrderItem struct {
	ProductID string          `validate:"required"`
	Quantity  int             `validate:"required,gt=0"`
	UnitCost  decimal.Decimal `validate:"-"`
}

type CreateOrderInput struct {
	Items []CreateOrderItem `validate:"required,min=1,dive"`
	Notes string            `validate:"max=2000"`
}

// PurchaseOrderWorkflow is the state machine governing a purchase order
// from creation through approval, payment confirmation and stock
// application. Stock is never touched here: payment confirmation only
// records intent by enqueueing a fulfillment job, atomically with the PAID
// transition.
type PurchaseOrderWorkflow struct {
	db          port.DatabaseRepository
	cache       port.CacheRepository
	log         *logrus.Logger
	validate    *validator.Validate
	maxAttempts int
}

func NewPurchaseOrderWorkflow(db port.DatabaseRepository, cache port.CacheRepository, log *logrus.Logger, jobMaxAttempts int) *PurchaseOrderWorkflow {
	return &PurchaseOrderWorkflow{
		db:          db,
		cache:       cache,
		log:         log,
		validate:    validator.New(),
		maxAttempts: jobMaxAttempts,
	}
}

// Create opens a new order in PENDING state on behalf of a staff
// principal. Line items are validated up front: non-empty, positive
// quantities, non-negative unit costs, no repeated product.
func (w *PurchaseOrderWorkflow) Create(ctx context.Context, actor domain.Principal, input CreateOrderInput) (*domain.PurchaseOrder, error) {
	if !actor.CanCreate() {
		return nil, fmt.Errorf("create requires staff capability: %w", domain.ErrNotPermitted)
	}
	if err := w.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid order input: %w", err)
	}

	seen := make(map[string]bool, len(input.Items))
	for _, item := range input.Items {
		if item.UnitCost.IsNegative() {
			return nil, fmt.Errorf("negative unit cost for product %s", item.ProductID)
		}
		if seen[item.ProductID] {
			return nil, fmt.Errorf("product %s listed more than once", item.ProductID)
		}
		seen[item.ProductID] = true

		product, err := w.db.GetProduct(ctx, actor.TenantID, item.ProductID)
		if err != nil {
			return nil, w.guardErr(err, "product", item.ProductID, actor.TenantID)
		}
		if product.TenantID != actor.TenantID {
			return nil, w.securityErr("product", item.ProductID, actor)
		}
	}

	tenant, err := w.db.GetTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", actor.TenantID, err)
	}

	now := time.Now().UTC()
	seq, err := w.db.CountOrdersInYear(ctx, actor.TenantID, now.Year())
	if err != nil {
		return nil, fmt.Errorf("count orders for reference: %w", err)
	}

	order := domain.PurchaseOrder{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		Reference: domain.OrderReference(tenant.Code(), now.Year(), seq+1),
		Status:    domain.OrderStatusPending,
		CreatedBy: actor.ID,
		Notes:     input.Notes,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, domain.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}
	order.TotalAmount = order.Total()

	if err := w.db.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"tenant_id": order.TenantID,
		"order_id":  order.ID,
		"reference": order.Reference,
		"items":     len(order.Items),
	}).Info("purchase order created")

	return &order, nil
}

// Approve moves a PENDING order to APPROVED. Exactly one of two concurrent
// approvals succeeds; the loser's stale version surfaces as an invalid
// transition.
func (w *PurchaseOrderWorkflow) Approve(ctx context.Context, actor domain.Principal, orderID string) (*domain.PurchaseOrder, error) {
	if !actor.CanApprove() {
		return nil, fmt.Errorf("approve requires finance capability: %w", domain.ErrNotPermitted)
	}
	order, err := w.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("approve from %s: %w", order.Status, domain.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	expect := order.Version
	order.Status = domain.OrderStatusApproved
	order.ApprovedBy = actor.ID
	order.ApprovedAt = &now
	order.UpdatedAt = now
	order.Version++

	if err := w.db.UpdateOrder(ctx, *order, expect); err != nil {
		return nil, w.transitionErr(err, "approve", orderID)
	}

	w.log.WithFields(logrus.Fields{
		"tenant_id": order.TenantID,
		"order_id":  order.ID,
		"actor":     actor.ID,
	}).Info("purchase order approved")

	return order, nil
}

// Cancel marks a PENDING or APPROVED order CANCELLED. Finance may cancel
// any order; the original creator may cancel their own. Cancellation is a
// state, not a removal: in-flight fulfillment discovers it and self-aborts.
func (w *PurchaseOrderWorkflow) Cancel(ctx context.Context, actor domain.Principal, orderID string) (*domain.PurchaseOrder, error) {
	order, err := w.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanApprove() && order.CreatedBy != actor.ID {
		return nil, fmt.Errorf("cancel requires finance capability or ownership: %w", domain.ErrNotPermitted)
	}
	if !order.Cancellable() {
		return nil, fmt.Errorf("cancel from %s: %w", order.Status, domain.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	expect := order.Version
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = now
	order.Version++

	if err := w.db.UpdateOrder(ctx, *order, expect); err != nil {
		return nil, w.transitionErr(err, "cancel", orderID)
	}

	w.log.WithFields(logrus.Fields{
		"tenant_id": order.TenantID,
		"order_id":  order.ID,
		"actor":     actor.ID,
	}).Info("purchase order cancelled")

	return order, nil
}

// ConfirmPayment moves an APPROVED order to PAID and enqueues the
// fulfillment job in the same store transaction, so an order can never be
// PAID without a job nor a job exist without its PAID order. The payment
// reference must be unique within the tenant.
func (w *PurchaseOrderWorkflow) ConfirmPayment(ctx context.Context, actor domain.Principal, orderID, paymentRef string) (*domain.PurchaseOrder, error) {
	if !actor.CanApprove() {
		return nil, fmt.Errorf("confirm payment requires finance capability: %w", domain.ErrNotPermitted)
	}
	if paymentRef == "" {
		return nil, fmt.Errorf("payment reference required: %w", domain.ErrInvalidTransition)
	}
	order, err := w.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusApproved {
		return nil, fmt.Errorf("confirm payment from %s: %w", order.Status, domain.ErrInvalidTransition)
	}

	// Fast-path claim; the store re-checks uniqueness inside its own
	// transaction and stays authoritative.
	refKey := "payref:" + actor.TenantID + ":" + paymentRef
	claimed, err := w.cache.ClaimKey(ctx, refKey, paymentRefTTL)
	if err != nil {
		w.log.WithField("order_id", orderID).Warnf("payment ref cache claim failed: %v", err)
	} else if !claimed {
		return nil, fmt.Errorf("payment reference %q: %w", paymentRef, domain.ErrPaymentRefTaken)
	}

	now := time.Now().UTC()
	expect := order.Version
	order.Status = domain.OrderStatusPaid
	order.PaidBy = actor.ID
	order.PaidAt = &now
	order.PaymentRef = paymentRef
	order.UpdatedAt = now
	order.Version++

	job := domain.NewFulfillmentJob(*order, w.maxAttempts, now)
	order.FulfillmentJobID = job.ID

	if err := w.db.CreatePaidTransition(ctx, *order, expect, job); err != nil {
		if releaseErr := w.cache.ReleaseKey(ctx, refKey); releaseErr != nil {
			w.log.WithField("order_id", orderID).Warnf("payment ref cache release failed: %v", releaseErr)
		}
		if errors.Is(err, domain.ErrPaymentRefTaken) {
			return nil, fmt.Errorf("payment reference %q: %w", paymentRef, err)
		}
		return nil, w.transitionErr(err, "confirm payment", orderID)
	}

	w.log.WithFields(logrus.Fields{
		"tenant_id":   order.TenantID,
		"order_id":    order.ID,
		"payment_ref": paymentRef,
		"job_id":      job.ID,
		"actor":       actor.ID,
	}).Info("payment confirmed, fulfillment enqueued")

	return order, nil
}

// Get returns a single order within the actor's tenant.
func (w *PurchaseOrderWorkflow) Get(ctx context.Context, actor domain.Principal, orderID string) (*domain.PurchaseOrder, error) {
	return w.loadOrder(ctx, actor, orderID)
}

// List returns the actor's tenant's orders, newest first.
func (w *PurchaseOrderWorkflow) List(ctx context.Context, actor domain.Principal) ([]domain.PurchaseOrder, error) {
	orders, err := w.db.ListOrders(ctx, actor.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (w *PurchaseOrderWorkflow) loadOrder(ctx context.Context, actor domain.Principal, orderID string) (*domain.PurchaseOrder, error) {
	order, err := w.db.GetOrder(ctx, actor.TenantID, orderID)
	if err != nil {
		return nil, w.guardErr(err, "order", orderID, actor.TenantID)
	}
	if order.TenantID != actor.TenantID {
		return nil, w.securityErr("order", orderID, actor)
	}
	return order, nil
}

func (w *PurchaseOrderWorkflow) guardErr(err error, kind, id, tenantID string) error {
	if errors.Is(err, domain.ErrCrossTenantAccess) {
		w.log.WithFields(logrus.Fields{
			"security":  "cross_tenant",
			"entity":    kind,
			"entity_id": id,
			"tenant_id": tenantID,
		}).Warn("cross-tenant access rejected")
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrCrossTenantAccess)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func (w *PurchaseOrderWorkflow) securityErr(kind, id string, actor domain.Principal) error {
	w.log.WithFields(logrus.Fields{
		"security":  "cross_tenant",
		"entity":    kind,
		"entity_id": id,
		"tenant_id": actor.TenantID,
		"actor":     actor.ID,
	}).Warn("cross-tenant access rejected")
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrCrossTenantAccess)
}

func (w *PurchaseOrderWorkflow) transitionErr(err error, op, orderID string) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%s %s lost concurrent update: %w", op, orderID, domain.ErrInvalidTransition)
	}
	return fmt.Errorf("%s %s: %w", op, orderID, err)
}
