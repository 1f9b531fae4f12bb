package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lt0911/procure-flow/internal/adapter/storage"
	"github.com/lt0911/procure-flow/internal/config"
)

// Dev utility: creates the schema and seeds a demo tenant with a couple of
// products, so the daemon and the integration tests have something to
// chew on.

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	for _, stmt := range storage.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("schema: %v", err)
		}
	}
	log.Println("schema ready")

	now := time.Now().UTC()
	tenantID := uuid.NewString()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		tenantID, "Acme Foods", now,
	); err != nil {
		log.Fatalf("seed tenant: %v", err)
	}

	products := []struct {
		sku, name string
		price     decimal.Decimal
		onHand    int
	}{
		{"RICE-25KG", "Rice 25kg", decimal.NewFromFloat(42.50), 80},
		{"OIL-5L", "Sunflower Oil 5L", decimal.NewFromFloat(12.90), 40},
		{"FLOUR-10KG", "Wheat Flour 10kg", decimal.NewFromFloat(18.00), 25},
	}
	for _, p := range products {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO products (id, tenant_id, sku, name, price, on_hand, reorder_level, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 10, 0, ?, ?)`,
			uuid.NewString(), tenantID, p.sku, p.name, p.price, p.onHand, now, now,
		); err != nil {
			log.Fatalf("seed product %s: %v", p.sku, err)
		}
	}

	log.Printf("seeded tenant %s with %d products", tenantID, len(products))
}
