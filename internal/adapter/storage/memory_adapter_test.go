package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lt0911/procure-flow/internal/core/domain"
)

func seedMemory(t *testing.T) (*MemoryAdapter, string, string) {
	t.Helper()
	m := NewMemoryAdapter()
	tenantID := uuid.NewString()
	productID := uuid.NewString()
	now := time.Now().UTC()
	m.SeedTenant(domain.Tenant{ID: tenantID, Name: "Acme Foods", CreatedAt: now})
	m.SeedProduct(domain.Product{ID: productID, TenantID: tenantID, SKU: "SKU-1", OnHand: 10, ReorderLevel: 2, CreatedAt: now, UpdatedAt: now})
	return m, tenantID, productID
}

func pendingOrder(tenantID string) domain.PurchaseOrder {
	now := time.Now().UTC()
	return domain.PurchaseOrder{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Reference: "PO-ACME-2026-0001",
		Status:    domain.OrderStatusPending,
		CreatedBy: uuid.NewString(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryUpdateOrder_VersionConflict(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()

	order := pendingOrder(tenantID)
	if err := m.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	order.Status = domain.OrderStatusApproved
	order.Version = 2
	if err := m.UpdateOrder(ctx, order, 1); err != nil {
		t.Fatalf("UpdateOrder failed: %v", err)
	}

	// stale writer still expects version 1
	order.Status = domain.OrderStatusCancelled
	if err := m.UpdateOrder(ctx, order, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	stored, _ := m.GetOrder(ctx, tenantID, order.ID)
	if stored.Status != domain.OrderStatusApproved {
		t.Errorf("stale write must not land, got %s", stored.Status)
	}
}

func TestMemoryCreatePaidTransition_Atomic(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	order := pendingOrder(tenantID)
	order.Status = domain.OrderStatusApproved
	if err := m.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	paid := order
	paid.Status = domain.OrderStatusPaid
	paid.PaymentRef = "PAY-1"
	paid.Version = 2
	job := domain.NewFulfillmentJob(paid, 3, now)
	paid.FulfillmentJobID = job.ID

	// version conflict leaves neither side written
	if err := m.CreatePaidTransition(ctx, paid, 99, job); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if _, err := m.GetJob(ctx, tenantID, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("job must not exist after failed transition")
	}

	if err := m.CreatePaidTransition(ctx, paid, 1, job); err != nil {
		t.Fatalf("CreatePaidTransition failed: %v", err)
	}
	storedJob, err := m.GetJob(ctx, tenantID, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if storedJob.Status != domain.JobStatusQueued {
		t.Errorf("expected queued job, got %s", storedJob.Status)
	}
}

func TestMemoryCreatePaidTransition_PaymentRefTaken(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := pendingOrder(tenantID)
	first.Status = domain.OrderStatusApproved
	m.CreateOrder(ctx, first)
	firstPaid := first
	firstPaid.Status = domain.OrderStatusPaid
	firstPaid.PaymentRef = "PAY-1"
	firstPaid.Version = 2
	if err := m.CreatePaidTransition(ctx, firstPaid, 1, domain.NewFulfillmentJob(firstPaid, 3, now)); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	second := pendingOrder(tenantID)
	second.Status = domain.OrderStatusApproved
	m.CreateOrder(ctx, second)
	secondPaid := second
	secondPaid.Status = domain.OrderStatusPaid
	secondPaid.PaymentRef = "PAY-1"
	secondPaid.Version = 2
	err := m.CreatePaidTransition(ctx, secondPaid, 1, domain.NewFulfillmentJob(secondPaid, 3, now))
	if !errors.Is(err, domain.ErrPaymentRefTaken) {
		t.Errorf("expected ErrPaymentRefTaken, got %v", err)
	}

	stored, _ := m.GetOrder(ctx, tenantID, second.ID)
	if stored.Status != domain.OrderStatusApproved {
		t.Errorf("loser must stay approved, got %s", stored.Status)
	}
}

func TestMemoryApplyStockDelta(t *testing.T) {
	m, tenantID, productID := seedMemory(t)
	ctx := context.Background()
	orderID := uuid.NewString()

	qty, err := m.ApplyStockDelta(ctx, tenantID, productID, 5, orderID)
	if err != nil || qty != 15 {
		t.Fatalf("ApplyStockDelta = %d, %v", qty, err)
	}

	if _, err := m.ApplyStockDelta(ctx, tenantID, productID, 5, orderID); !errors.Is(err, domain.ErrDuplicateApplication) {
		t.Errorf("expected ErrDuplicateApplication, got %v", err)
	}

	if _, err := m.ApplyStockDelta(ctx, tenantID, productID, -100, uuid.NewString()); !errors.Is(err, domain.ErrInvalidDelta) {
		t.Errorf("expected ErrInvalidDelta, got %v", err)
	}

	if _, err := m.ApplyStockDelta(ctx, uuid.NewString(), productID, 1, uuid.NewString()); !errors.Is(err, domain.ErrCrossTenantAccess) {
		t.Errorf("expected ErrCrossTenantAccess, got %v", err)
	}

	records, _ := m.MutationsForOrder(ctx, tenantID, orderID)
	if len(records) != 1 {
		t.Errorf("expected one record, got %d", len(records))
	}
}

func TestMemoryCreateJob_Dedupes(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	order := domain.PurchaseOrder{ID: uuid.NewString(), TenantID: tenantID}
	first, err := m.CreateJob(ctx, domain.NewFulfillmentJob(order, 3, now))
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	second, err := m.CreateJob(ctx, domain.NewFulfillmentJob(order, 3, now))
	if err != nil {
		t.Fatalf("second CreateJob failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("same idempotency key must return one job: %s vs %s", first.ID, second.ID)
	}
}

func TestMemoryDueJobs(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	early := domain.NewFulfillmentJob(domain.PurchaseOrder{ID: uuid.NewString(), TenantID: tenantID}, 3, now.Add(-time.Minute))
	late := domain.NewFulfillmentJob(domain.PurchaseOrder{ID: uuid.NewString(), TenantID: tenantID}, 3, now.Add(-time.Second))
	future := domain.NewFulfillmentJob(domain.PurchaseOrder{ID: uuid.NewString(), TenantID: tenantID}, 3, now.Add(time.Hour))
	for _, j := range []domain.Job{late, early, future} {
		if _, err := m.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}

	due, err := m.DueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueJobs failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Error("due jobs not ordered by readiness")
	}

	limited, _ := m.DueJobs(ctx, now, 1)
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d", len(limited))
	}
}

func TestMemoryGetOrder_CrossTenant(t *testing.T) {
	m, tenantID, _ := seedMemory(t)
	ctx := context.Background()

	order := pendingOrder(tenantID)
	m.CreateOrder(ctx, order)

	if _, err := m.GetOrder(ctx, uuid.NewString(), order.ID); !errors.Is(err, domain.ErrCrossTenantAccess) {
		t.Errorf("expected ErrCrossTenantAccess, got %v", err)
	}
}
