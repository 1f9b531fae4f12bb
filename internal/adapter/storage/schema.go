package storage

// Schema holds the MySQL DDL, one statement per entry. The unique keys on
// payment_ref, idempotency_key and (order, product) mutations are load
// bearing: the adapters map their duplicate-key errors onto domain
// sentinels.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(150) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		sku VARCHAR(100) NOT NULL,
		name VARCHAR(150) NOT NULL,
		price DECIMAL(12,2) NOT NULL DEFAULT 0,
		on_hand INT NOT NULL DEFAULT 0,
		reorder_level INT NOT NULL DEFAULT 10,
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_products_tenant_sku (tenant_id, sku)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		reference VARCHAR(120) NOT NULL,
		total_amount DECIMAL(14,2) NOT NULL DEFAULT 0,
		status VARCHAR(30) NOT NULL,
		created_by VARCHAR(36) NOT NULL,
		approved_by VARCHAR(36) NULL,
		approved_at DATETIME NULL,
		paid_by VARCHAR(36) NULL,
		paid_at DATETIME NULL,
		payment_ref VARCHAR(120) NULL,
		fulfillment_job_id VARCHAR(36) NULL,
		notes TEXT,
		version INT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_orders_tenant_reference (tenant_id, reference),
		UNIQUE KEY uq_orders_tenant_payment_ref (tenant_id, payment_ref),
		KEY idx_orders_tenant_created (tenant_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(36) NOT NULL,
		product_id VARCHAR(36) NOT NULL,
		quantity INT NOT NULL,
		unit_cost DECIMAL(12,2) NOT NULL,
		KEY idx_items_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_mutations (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		product_id VARCHAR(36) NOT NULL,
		delta INT NOT NULL,
		caused_by_order_id VARCHAR(36) NOT NULL,
		applied_at DATETIME NOT NULL,
		UNIQUE KEY uq_mutations_order_product (caused_by_order_id, product_id),
		KEY idx_mutations_tenant_order (tenant_id, caused_by_order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		type VARCHAR(50) NOT NULL,
		order_id VARCHAR(36) NOT NULL,
		idempotency_key VARCHAR(36) NOT NULL,
		status VARCHAR(20) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		max_attempts INT NOT NULL,
		next_run_at DATETIME NOT NULL,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_jobs_idempotency_key (idempotency_key),
		KEY idx_jobs_due (status, next_run_at)
	)`,
}
