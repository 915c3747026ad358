package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"shopbook/backend/internal/domain"
)

func TestWriteSales(t *testing.T) {
	due := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		{
			ID: "sale-1", ItemName: "Gula 1kg", Quantity: 2, SellPrice: 17400,
			Total: 34800, PaymentMethod: "cash", DayKey: "2025-06-15",
			CreatedAt: time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			ID: "sale-2", ItemName: "Beras 5kg", Quantity: 1, SellPrice: 68000,
			Total: 68000, PaymentMethod: "credit", CustomerName: "Bu Siti",
			DueDate: &due, DayKey: "2025-06-15",
			CreatedAt: time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := WriteSales(&buf, sales); err != nil {
		t.Fatalf("write sales failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,item_name,quantity") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[2], "Bu Siti") || !strings.Contains(lines[2], "2025-06-20") {
		t.Fatalf("credit row missing customer or due date: %s", lines[2])
	}
	if !strings.Contains(lines[1], ",,") {
		t.Fatalf("cash row must have empty customer and due date: %s", lines[1])
	}
}

func TestWriteDebts(t *testing.T) {
	debts := []domain.DebtView{
		{
			Debt: domain.Debt{
				ID: "dbt-1", Origin: domain.DebtOriginManual, CustomerName: "Pak Budi",
				Total: 10000, Paid: 4000, Status: domain.CreditStatusOpen,
				DueDate: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
			},
			Overdue:   true,
			Remaining: 6000,
		},
	}

	var buf bytes.Buffer
	if err := WriteDebts(&buf, debts); err != nil {
		t.Fatalf("write debts failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "6000") || !strings.Contains(lines[1], "true") {
		t.Fatalf("row missing remaining or overdue: %s", lines[1])
	}
}
