package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lt0911/procure-flow/internal/core/domain"
)

// MemoryAdapter is a mutex-guarded in-memory implementation of the store
// port with the same transactional semantics as the MySQL adapter. It
// backs the service tests and local development without external services.
type MemoryAdapter struct {
	mu          sync.Mutex
	tenants     map[string]domain.Tenant
	products    map[string]domain.Product
	orders      map[string]domain.PurchaseOrder
	jobs        map[string]domain.Job
	jobsByKey   map[string]string
	mutations   []domain.StockMutationRecord
	applied     map[string]bool   // orderID|productID
	paymentRefs map[string]string // tenantID|ref -> orderID
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		tenants:     make(map[string]domain.Tenant),
		products:    make(map[string]domain.Product),
		orders:      make(map[string]domain.PurchaseOrder),
		jobs:        make(map[string]domain.Job),
		jobsByKey:   make(map[string]string),
		applied:     make(map[string]bool),
		paymentRefs: make(map[string]string),
	}
}

// SeedTenant registers a tenant for tests and local runs.
func (m *MemoryAdapter) SeedTenant(t domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

// SeedProduct registers a product for tests and local runs.
func (m *MemoryAdapter) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryAdapter) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := t
	return &out, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, tenantID, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	out := p
	return &out, nil
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrderLocked(tenantID, orderID)
}

func (m *MemoryAdapter) getOrderLocked(tenantID, orderID string) (*domain.PurchaseOrder, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	out := cloneOrder(o)
	return &out, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, tenantID string) ([]domain.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PurchaseOrder
	for _, o := range m.orders {
		if o.TenantID == tenantID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryAdapter) UpdateOrder(ctx context.Context, order domain.PurchaseOrder, expectVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateOrderLocked(order, expectVersion)
}

func (m *MemoryAdapter) updateOrderLocked(order domain.PurchaseOrder, expectVersion int) error {
	current, ok := m.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.TenantID != order.TenantID {
		return domain.ErrCrossTenantAccess
	}
	if current.Version != expectVersion {
		return domain.ErrVersionConflict
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryAdapter) CountOrdersInYear(ctx context.Context, tenantID string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, o := range m.orders {
		if o.TenantID == tenantID && o.CreatedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

func (m *MemoryAdapter) CreatePaidTransition(ctx context.Context, order domain.PurchaseOrder, expectVersion int, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	refKey := order.TenantID + "|" + order.PaymentRef
	if holder, taken := m.paymentRefs[refKey]; taken && holder != order.ID {
		return domain.ErrPaymentRefTaken
	}
	if err := m.updateOrderLocked(order, expectVersion); err != nil {
		return err
	}
	m.paymentRefs[refKey] = order.ID
	m.jobs[job.ID] = job
	m.jobsByKey[job.IdempotencyKey] = job.ID
	return nil
}

func (m *MemoryAdapter) ApplyStockDelta(ctx context.Context, tenantID, productID string, delta int, causalOrderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if p.TenantID != tenantID {
		return 0, domain.ErrCrossTenantAccess
	}
	appliedKey := causalOrderID + "|" + productID
	if m.applied[appliedKey] {
		return 0, domain.ErrDuplicateApplication
	}
	if p.OnHand+delta < 0 {
		return 0, domain.ErrInvalidDelta
	}

	p.OnHand += delta
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	m.applied[appliedKey] = true
	m.mutations = append(m.mutations, domain.StockMutationRecord{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ProductID:       productID,
		Delta:           delta,
		CausedByOrderID: causalOrderID,
		AppliedAt:       time.Now().UTC(),
	})
	return p.OnHand, nil
}

func (m *MemoryAdapter) MutationsForOrder(ctx context.Context, tenantID, orderID string) ([]domain.StockMutationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StockMutationRecord
	for _, rec := range m.mutations {
		if rec.TenantID == tenantID && rec.CausedByOrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) CreateJob(ctx context.Context, job domain.Job) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.jobsByKey[job.IdempotencyKey]; ok {
		existing := m.jobs[existingID]
		return &existing, nil
	}
	m.jobs[job.ID] = job
	m.jobsByKey[job.IdempotencyKey] = job.ID
	out := job
	return &out, nil
}

func (m *MemoryAdapter) GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	out := j
	return &out, nil
}

func (m *MemoryAdapter) UpdateJob(ctx context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryAdapter) DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusQueued && !j.NextRunAt.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneOrder(o domain.PurchaseOrder) domain.PurchaseOrder {
	out := o
	out.Items = append([]domain.LineItem(nil), o.Items...)
	return out
}
