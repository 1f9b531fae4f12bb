package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/lt0911/procure-flow/internal/core/domain"
)

const mysqlDupEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func isDupEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDupEntry
}

func (m *MySQLAdapter) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tenants WHERE id = ?`, tenantID,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return &t, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, tenantID, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, sku, name, price, on_hand, reorder_level, version, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Price, &p.OnHand, &p.ReorderLevel, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	// Rows are fetched by id and the tenancy checked here so that a
	// foreign row surfaces as a security violation, not a silent miss.
	if p.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	return &p, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.PurchaseOrder) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders
			(id, tenant_id, reference, total_amount, status, created_by, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.TenantID, order.Reference, order.TotalAmount, order.Status,
		order.CreatedBy, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (order_id, product_id, quantity, unit_cost)
			VALUES (?, ?, ?, ?)`,
			order.ID, item.ProductID, item.Quantity, item.UnitCost,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.PurchaseOrder, error) {
	order, err := m.scanOrder(m.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, reference, total_amount, status, created_by, approved_by, approved_at,
		       paid_by, paid_at, payment_ref, fulfillment_job_id, notes, version, created_at, updated_at
		FROM purchase_orders WHERE id = ?`, orderID))
	if err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	if err := m.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, tenantID string) ([]domain.PurchaseOrder, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, tenant_id, reference, total_amount, status, created_by, approved_by, approved_at,
		       paid_by, paid_at, payment_ref, fulfillment_job_id, notes, version, created_at, updated_at
		FROM purchase_orders WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.PurchaseOrder
	for rows.Next() {
		order, err := m.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	for i := range orders {
		if err := m.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (m *MySQLAdapter) UpdateOrder(ctx context.Context, order domain.PurchaseOrder, expectVersion int) error {
	result, err := m.db.ExecContext(ctx, orderUpdateSQL, orderUpdateArgs(order, expectVersion)...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (m *MySQLAdapter) CountOrdersInYear(ctx context.Context, tenantID string, year int) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM purchase_orders WHERE tenant_id = ? AND YEAR(created_at) = ?`,
		tenantID, year,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (m *MySQLAdapter) CreatePaidTransition(ctx context.Context, order domain.PurchaseOrder, expectVersion int, job domain.Job) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, orderUpdateSQL, orderUpdateArgs(order, expectVersion)...)
	if err != nil {
		// The unique (tenant_id, payment_ref) index is the authoritative
		// uniqueness check.
		if isDupEntry(err) {
			return domain.ErrPaymentRefTaken
		}
		return fmt.Errorf("update order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs
			(id, tenant_id, type, order_id, idempotency_key, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.Type, job.OrderID, job.IdempotencyKey, job.Status,
		job.Attempts, job.MaxAttempts, job.NextRunAt, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ApplyStockDelta(ctx context.Context, tenantID, productID string, delta int, causalOrderID string) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The mutation record goes in first: its unique (order, product) key
	// makes the whole transaction a no-op on a retry.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_mutations (id, tenant_id, product_id, delta, caused_by_order_id, applied_at)
		VALUES (UUID(), ?, ?, ?, ?, ?)`,
		tenantID, productID, delta, causalOrderID, time.Now().UTC(),
	)
	if err != nil {
		if isDupEntry(err) {
			return 0, domain.ErrDuplicateApplication
		}
		return 0, fmt.Errorf("insert mutation record: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET on_hand = on_hand + ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND tenant_id = ? AND on_hand + ? >= 0`,
		delta, productID, tenantID, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update product stock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, domain.ErrInvalidDelta
	}

	var onHand int
	err = tx.QueryRowContext(ctx, `
		SELECT on_hand FROM products WHERE id = ? AND tenant_id = ?`, productID, tenantID,
	).Scan(&onHand)
	if err != nil {
		return 0, fmt.Errorf("read new quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stock delta: %w", err)
	}
	return onHand, nil
}

func (m *MySQLAdapter) MutationsForOrder(ctx context.Context, tenantID, orderID string) ([]domain.StockMutationRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, tenant_id, product_id, delta, caused_by_order_id, applied_at
		FROM stock_mutations WHERE tenant_id = ? AND caused_by_order_id = ? ORDER BY applied_at`,
		tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	var records []domain.StockMutationRecord
	for rows.Next() {
		var rec domain.StockMutationRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ProductID, &rec.Delta, &rec.CausedByOrderID, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *MySQLAdapter) CreateJob(ctx context.Context, job domain.Job) (*domain.Job, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, tenant_id, type, order_id, idempotency_key, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.Type, job.OrderID, job.IdempotencyKey, job.Status,
		job.Attempts, job.MaxAttempts, job.NextRunAt, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isDupEntry(err) {
			return m.getJobByKey(ctx, job.IdempotencyKey)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	out := job
	return &out, nil
}

func (m *MySQLAdapter) GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	job, err := m.scanJob(m.db.QueryRowContext(ctx, jobSelectSQL+` WHERE id = ?`, jobID))
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	return job, nil
}

func (m *MySQLAdapter) UpdateJob(ctx context.Context, job domain.Job) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, attempts = ?, next_run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		job.Status, job.Attempts, job.NextRunAt, job.LastError, job.UpdatedAt,
		job.ID, job.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	rows, err := m.db.QueryContext(ctx, jobSelectSQL+`
		WHERE status = ? AND next_run_at <= ? ORDER BY next_run_at LIMIT ?`,
		domain.JobStatusQueued, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := m.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

const jobSelectSQL = `
	SELECT id, tenant_id, type, order_id, idempotency_key, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at
	FROM jobs`

func (m *MySQLAdapter) getJobByKey(ctx context.Context, key string) (*domain.Job, error) {
	return m.scanJob(m.db.QueryRowContext(ctx, jobSelectSQL+` WHERE idempotency_key = ?`, key))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *MySQLAdapter) scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(&job.ID, &job.TenantID, &job.Type, &job.OrderID, &job.IdempotencyKey,
		&job.Status, &job.Attempts, &job.MaxAttempts, &job.NextRunAt, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}

func (m *MySQLAdapter) scanOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	var (
		order      domain.PurchaseOrder
		approvedBy sql.NullString
		approvedAt sql.NullTime
		paidBy     sql.NullString
		paidAt     sql.NullTime
		paymentRef sql.NullString
		jobID      sql.NullString
	)
	err := row.Scan(&order.ID, &order.TenantID, &order.Reference, &order.TotalAmount, &order.Status,
		&order.CreatedBy, &approvedBy, &approvedAt, &paidBy, &paidAt, &paymentRef, &jobID,
		&order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	order.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		order.ApprovedAt = &approvedAt.Time
	}
	order.PaidBy = paidBy.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	order.PaymentRef = paymentRef.String
	order.FulfillmentJobID = jobID.String
	return &order, nil
}

func (m *MySQLAdapter) loadItems(ctx context.Context, order *domain.PurchaseOrder) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_cost
		FROM purchase_order_items WHERE order_id = ? ORDER BY id`, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitCost); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

const orderUpdateSQL = `
	UPDATE purchase_orders
	SET status = ?, approved_by = ?, approved_at = ?, paid_by = ?, paid_at = ?,
	    payment_ref = ?, fulfillment_job_id = ?, version = ?, updated_at = ?
	WHERE id = ? AND tenant_id = ? AND version = ?`

func orderUpdateArgs(order domain.PurchaseOrder, expectVersion int) []any {
	return []any{
		order.Status, nullStr(order.ApprovedBy), order.ApprovedAt, nullStr(order.PaidBy), order.PaidAt,
		nullStr(order.PaymentRef), nullStr(order.FulfillmentJobID), order.Version, order.UpdatedAt,
		order.ID, order.TenantID, expectVersion,
	}
}

// nullStr maps empty strings to NULL so unique indexes ignore unset values.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
