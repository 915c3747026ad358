package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
)

func TestMigrationBackfillClassifiesLegacySales(t *testing.T) {
	databaseURL := os.Getenv("SHOPBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHOPBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("set dialect: %v", err)
	}

	// Rewind to the base schema, before payment_method and is_credit exist.
	if err := goose.DownToContext(ctx, db, "migrations", 0); err != nil {
		t.Fatalf("rewind migrations: %v", err)
	}
	if err := goose.UpToContext(ctx, db, "migrations", 1); err != nil {
		t.Fatalf("apply base schema: %v", err)
	}

	stamp := time.Now().UnixNano()
	itemID := fmt.Sprintf("itm-mig-%d", stamp)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO items (id, name, quantity, sell_price)
		VALUES ($1, $2, 10, 17400)
	`, itemID, fmt.Sprintf("Gula Migrasi %d", stamp)); err != nil {
		t.Fatalf("insert item: %v", err)
	}

	saleID := func(suffix string) string { return fmt.Sprintf("sale-mig-%s-%d", suffix, stamp) }
	due := time.Now().UTC().AddDate(0, 0, 7)
	legacy := []struct {
		id       string
		customer any
		due      any
	}{
		{saleID("credit"), "Bu Siti", due},
		{saleID("name-only"), "Pak Budi", nil},
		{saleID("due-only"), "", due},
		{saleID("bare"), nil, nil},
	}
	for _, row := range legacy {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO sales (id, item_id, item_name, quantity, sell_price, total, customer_name, due_date, day_key, created_at)
			VALUES ($1, $2, 'Gula Migrasi', 1, 17400, 17400, $3, $4, '2025-06-15', now())
		`, row.id, itemID, row.customer, row.due); err != nil {
			t.Fatalf("seed legacy sale %s: %v", row.id, err)
		}
	}

	t.Cleanup(func() {
		for _, row := range legacy {
			_, _ = db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, row.id)
		}
		_, _ = db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	})

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		t.Fatalf("apply backfill migrations: %v", err)
	}

	// A legacy row is credit iff it carries both a customer name and a due
	// date; everything else becomes cash.
	want := map[string]struct {
		method string
		credit bool
	}{
		saleID("credit"):    {"credit", true},
		saleID("name-only"): {"cash", false},
		saleID("due-only"):  {"cash", false},
		saleID("bare"):      {"cash", false},
	}
	for id, expect := range want {
		var method string
		var isCredit bool
		if err := db.QueryRowContext(ctx, `
			SELECT payment_method, is_credit FROM sales WHERE id = $1
		`, id).Scan(&method, &isCredit); err != nil {
			t.Fatalf("query backfilled sale %s: %v", id, err)
		}
		if method != expect.method || isCredit != expect.credit {
			t.Fatalf("sale %s classified as (%s, %v), want (%s, %v)",
				id, method, isCredit, expect.method, expect.credit)
		}
	}
}
