// Package export renders ledger data as CSV for backup and bookkeeping.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"shopbook/backend/internal/domain"
)

// WriteSales writes one row per sale preceded by a header row.
func WriteSales(w io.Writer, sales []domain.Sale) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "item_name", "quantity", "sell_price", "total", "payment_method", "customer_name", "due_date", "day_key", "created_at"}); err != nil {
		return err
	}
	for _, sale := range sales {
		dueDate := ""
		if sale.DueDate != nil {
			dueDate = sale.DueDate.Format("2006-01-02")
		}
		row := []string{
			sale.ID,
			sale.ItemName,
			strconv.Itoa(sale.Quantity),
			strconv.FormatInt(sale.SellPrice, 10),
			strconv.FormatInt(sale.Total, 10),
			sale.PaymentMethod,
			sale.CustomerName,
			dueDate,
			sale.DayKey,
			sale.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDebts writes one row per debt with its computed remaining balance.
func WriteDebts(w io.Writer, debts []domain.DebtView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "origin", "customer_name", "phone", "total", "paid", "remaining", "due_date", "status", "overdue"}); err != nil {
		return err
	}
	for _, debt := range debts {
		row := []string{
			debt.ID,
			debt.Origin,
			debt.CustomerName,
			debt.Phone,
			strconv.FormatInt(debt.Total, 10),
			strconv.FormatInt(debt.Paid, 10),
			strconv.FormatInt(debt.Remaining, 10),
			debt.DueDate.Format("2006-01-02"),
			debt.Status,
			strconv.FormatBool(debt.Overdue),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
