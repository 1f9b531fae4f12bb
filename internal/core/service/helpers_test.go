package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/adapter/storage"
	"github.com/lt0911/procure-flow/internal/core/domain"
)

// Mock CacheRepository
type mockCache struct {
	mu    sync.Mutex
	keys  map[string]bool
	stock map[string]int
}

func newMockCache() *mockCache {
	return &mockCache{keys: make(map[string]bool), stock: make(map[string]int)}
}

func (m *mockCache) ClaimKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockCache) ReleaseKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *mockCache) SetQuantity(ctx context.Context, tenantID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[tenantID+":"+productID] = quantity
	return nil
}

func (m *mockCache) GetQuantity(ctx context.Context, tenantID, productID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stock[tenantID+":"+productID]
	return qty, ok, nil
}

func (m *mockCache) cachedQuantity(tenantID, productID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stock[tenantID+":"+productID]
	return qty, ok
}

// Mock Locker
type mockLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool)}
}

func (m *mockLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}
	return release, true, nil
}

func (m *mockLocker) hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// Mock Notifier, records every call.
type mockNotifier struct {
	mu        sync.Mutex
	fulfilled []string
	failed    []string
	lowStock  []string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{}
}

func (m *mockNotifier) OrderFulfilled(order domain.PurchaseOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulfilled = append(m.fulfilled, order.ID)
}

func (m *mockNotifier) JobFailed(job domain.Job, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, job.ID)
}

func (m *mockNotifier) LowStock(product domain.Product, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lowStock = append(m.lowStock, product.ID)
}

func (m *mockNotifier) fulfilledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fulfilled)
}

func (m *mockNotifier) failedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failed)
}

func (m *mockNotifier) lowStockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lowStock)
}

// testEnv wires the services against the in-memory adapter.
type testEnv struct {
	db       *storage.MemoryAdapter
	cache    *mockCache
	locker   *mockLocker
	notifier *mockNotifier
	ledger   *StockLedger
	workflow *PurchaseOrderWorkflow
	executor *JobExecutor

	tenantID  string
	productID string
	staff     domain.Principal
	finance   domain.Principal
}

func newTestEnv() *testEnv {
	logg := logrus.New()
	logg.SetOutput(io.Discard)

	env := &testEnv{
		db:       storage.NewMemoryAdapter(),
		cache:    newMockCache(),
		locker:   newMockLocker(),
		notifier: newMockNotifier(),
		tenantID: uuid.NewString(),
	}

	env.db.SeedTenant(domain.Tenant{ID: env.tenantID, Name: "Acme Foods", CreatedAt: time.Now().UTC()})
	env.productID = env.seedProduct("RICE-25KG", 100, 10)

	env.staff = domain.Principal{ID: uuid.NewString(), TenantID: env.tenantID, Role: domain.RoleStaff}
	env.finance = domain.Principal{ID: uuid.NewString(), TenantID: env.tenantID, Role: domain.RoleFinance}

	env.ledger = NewStockLedger(env.db, env.cache, env.notifier, logg)
	env.workflow = NewPurchaseOrderWorkflow(env.db, env.cache, logg, 3)
	env.executor = NewJobExecutor(env.db, env.cache, env.locker, env.ledger, env.notifier, logg, ExecutorConfig{
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
		BackoffBase:    2 * time.Second,
		BackoffCap:     time.Minute,
		LockTTL:        10 * time.Second,
		PollInterval:   10 * time.Millisecond,
		BatchSize:      50,
	})
	return env
}

func (e *testEnv) seedProduct(sku string, onHand, reorderLevel int) string {
	id := uuid.NewString()
	now := time.Now().UTC()
	e.db.SeedProduct(domain.Product{
		ID:           id,
		TenantID:     e.tenantID,
		SKU:          sku,
		Name:         sku,
		Price:        decimal.NewFromInt(10),
		OnHand:       onHand,
		ReorderLevel: reorderLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return id
}

func (e *testEnv) createOrder(qty int) *domain.PurchaseOrder {
	order, err := e.workflow.Create(context.Background(), e.staff, CreateOrderInput{
		Items: []CreateOrderItem{{ProductID: e.productID, Quantity: qty, UnitCost: decimal.NewFromFloat(42.50)}},
	})
	if err != nil {
		panic("test env createOrder: " + err.Error())
	}
	return order
}

func (e *testEnv) paidOrder(qty int, paymentRef string) *domain.PurchaseOrder {
	order := e.createOrder(qty)
	ctx := context.Background()
	if _, err := e.workflow.Approve(ctx, e.finance, order.ID); err != nil {
		panic("test env approve: " + err.Error())
	}
	paid, err := e.workflow.ConfirmPayment(ctx, e.finance, order.ID, paymentRef)
	if err != nil {
		panic("test env confirm payment: " + err.Error())
	}
	return paid
}
