package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/installment"
	"shopbook/backend/internal/store"
	"shopbook/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

// New opens the pool, verifies connectivity, and applies any pending
// schema migrations before the store is handed out. Each migration runs
// in its own transaction, so a failed version leaves the schema at the
// previous version.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%w: run migrations: %v", store.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, quantity, cost_price, sell_price, reorder_level, demo, created_at, updated_at
		FROM items
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" || item.Quantity < 0 || item.SellPrice < 0 {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, quantity, cost_price, sell_price, reorder_level, demo, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, item.ID, item.Name, item.Category, item.Quantity, item.CostPrice, item.SellPrice, item.ReorderLevel, item.Demo, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, quantity, cost_price, sell_price, reorder_level, demo, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) RestockItem(ctx context.Context, id string, qty int, costPrice int64) (*domain.Item, error) {
	if qty < 1 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM items WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if costPrice > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity + $2, cost_price = $3, updated_at = now() WHERE id = $1
		`, id, qty, costPrice)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity + $2, updated_at = now() WHERE id = $1
		`, id, qty)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, id)
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, quantity, cost_price, sell_price, reorder_level, demo, created_at, updated_at
		FROM items
		WHERE quantity <= reorder_level
		ORDER BY quantity ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// RecordSale retries the serializable transaction on serialization
// failures before giving up with ErrTransactionAborted.
func (s *Store) RecordSale(ctx context.Context, sale domain.Sale, credit *domain.CreditDetails) (*domain.Sale, error) {
	var created *domain.Sale
	backoff := retry.WithMaxRetries(3, retry.NewConstant(150*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := s.recordSaleTx(ctx, sale, credit)
		if err != nil {
			if isSerializationFailure(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		if isSerializationFailure(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrTransactionAborted, err)
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) recordSaleTx(ctx context.Context, sale domain.Sale, credit *domain.CreditDetails) (*domain.Sale, error) {
	if sale.ID == "" || sale.ItemID == "" || sale.Quantity < 1 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The outbox marker is the idempotency guard: a replayed sale id means
	// the whole transaction already committed, so the stored sale is
	// returned unchanged and nothing is re-applied.
	var marker string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM sale_outbox WHERE id = $1
	`, sale.ID).Scan(&marker)
	if err == nil {
		existing, err := s.getSaleTx(ctx, tx, sale.ID)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Authoritative stock check: any pre-read the caller did is advisory
	// only. The row lock makes the decrement safe against concurrent sales
	// of the same item.
	var itemName string
	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT name, quantity FROM items WHERE id = $1 FOR UPDATE
	`, sale.ItemID).Scan(&itemName, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if available < sale.Quantity {
		return nil, &store.InsufficientStockError{ItemID: sale.ItemID, Remaining: available}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items SET quantity = quantity - $2, updated_at = now() WHERE id = $1
	`, sale.ItemID, sale.Quantity)
	if err != nil {
		return nil, err
	}

	sale.ItemName = itemName
	sale.Total = sale.SellPrice * int64(sale.Quantity)
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.DayKey == "" {
		sale.DayKey = sale.CreatedAt.Format("2006-01-02")
	}
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = "cash"
	}
	sale.IsCredit = credit != nil

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, item_id, item_name, quantity, sell_price, total, payment_method, is_credit, customer_name, due_date, day_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.ItemID, sale.ItemName, sale.Quantity, sale.SellPrice, sale.Total,
		sale.PaymentMethod, sale.IsCredit, nullIfEmpty(sale.CustomerName), nullTime(sale.DueDate), sale.DayKey, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.GetSale(ctx, sale.ID)
		}
		return nil, err
	}

	if credit != nil {
		if err := s.createCreditTx(ctx, tx, sale, credit); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(sale)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_outbox (id, kind, payload, created_at)
		VALUES ($1,$2,$3,$4)
	`, sale.ID, domain.OutboxKindSale, payload, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.GetSale(ctx, sale.ID)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) createCreditTx(ctx context.Context, tx *sql.Tx, sale domain.Sale, credit *domain.CreditDetails) error {
	name := strings.TrimSpace(credit.CustomerName)
	if name == "" || sale.DueDate == nil {
		return store.ErrValidation
	}

	var consentAt any
	if credit.Consent {
		consentAt = time.Now().UTC()
	}

	// Existing customers keep their stored phone and consent unless the new
	// sale supplies fresh values.
	var customerID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, name_lower, phone, consent_at, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (name_lower) DO UPDATE SET
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), customers.phone),
			consent_at = COALESCE(EXCLUDED.consent_at, customers.consent_at)
		RETURNING id
	`, xid.New("cus"), name, strings.ToLower(name), strings.TrimSpace(credit.Phone), consentAt).Scan(&customerID)
	if err != nil {
		return err
	}

	creditID := xid.New("cr")
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credits (id, sale_id, customer_id, principal, paid, due_date, status, created_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7)
	`, creditID, sale.ID, customerID, sale.Total, *sale.DueDate, domain.CreditStatusOpen, sale.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO debts (id, origin, sale_id, credit_id, customer_id, customer_name, phone, total, paid, due_date, status, frequency, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,'',$11)
	`, xid.New("dbt"), domain.DebtOriginSale, sale.ID, creditID, customerID, name,
		strings.TrimSpace(credit.Phone), sale.Total, *sale.DueDate, domain.CreditStatusOpen, sale.CreatedAt)
	return err
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT id, item_id, item_name, quantity, sell_price, total, payment_method, is_credit, customer_name, due_date, day_key, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) getSaleTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Sale, error) {
	sale, err := scanSale(tx.QueryRowContext(ctx, `
		SELECT id, item_id, item_name, quantity, sell_price, total, payment_method, is_credit, customer_name, due_date, day_key, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSalesByDay(ctx context.Context, dayKey string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, item_name, quantity, sell_price, total, payment_method, is_credit, customer_name, due_date, day_key, created_at
		FROM sales
		WHERE day_key = $1
		ORDER BY created_at ASC
	`, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetOutboxEntry(ctx context.Context, id string) (*domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, payload, created_at
		FROM sale_outbox
		WHERE id = $1
	`, id).Scan(&entry.ID, &entry.Kind, &entry.Payload, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func (s *Store) GetCustomerByName(ctx context.Context, nameLower string) (*domain.Customer, error) {
	var c domain.Customer
	var consent sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, name_lower, phone, consent_at, created_at
		FROM customers
		WHERE name_lower = $1
	`, strings.ToLower(strings.TrimSpace(nameLower))).Scan(&c.ID, &c.Name, &c.NameLower, &c.Phone, &consent, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if consent.Valid {
		t := consent.Time.UTC()
		c.ConsentAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, name_lower, phone, consent_at, created_at
		FROM customers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		var consent sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.NameLower, &c.Phone, &consent, &c.CreatedAt); err != nil {
			return nil, err
		}
		if consent.Valid {
			t := consent.Time.UTC()
			c.ConsentAt = &t
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.CustomerName == "" || debt.Total <= 0 {
		return nil, store.ErrValidation
	}
	if debt.ID == "" {
		debt.ID = xid.New("dbt")
	}
	if debt.Origin == "" {
		debt.Origin = domain.DebtOriginManual
	}
	if debt.Status == "" {
		debt.Status = domain.CreditStatusOpen
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO debts (id, origin, sale_id, credit_id, customer_id, customer_name, phone, total, paid, due_date, status, frequency, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, debt.ID, debt.Origin, nullIfEmpty(debt.SaleID), nullIfEmpty(debt.CreditID), nullIfEmpty(debt.CustomerID),
		debt.CustomerName, debt.Phone, debt.Total, debt.Paid, debt.DueDate, debt.Status, debt.Frequency, debt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.GetDebt(ctx, debt.ID)
		}
		return nil, err
	}

	for _, entry := range debt.Installments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO debt_installments (debt_id, number, due_date, amount, paid, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, debt.ID, entry.Number, entry.DueDate, entry.Amount, entry.Paid, nullTime(entry.PaidAt))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := debt
	return &created, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	debt, err := scanDebt(s.db.QueryRowContext(ctx, `
		SELECT id, origin, sale_id, credit_id, customer_id, customer_name, phone, total, paid, due_date, status, frequency, created_at
		FROM debts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	entries, err := s.listInstallments(ctx, id)
	if err != nil {
		return nil, err
	}
	debt.Installments = entries
	return &debt, nil
}

func (s *Store) GetCreditBySaleID(ctx context.Context, saleID string) (*domain.Credit, error) {
	var c domain.Credit
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, customer_id, principal, paid, due_date, status, created_at
		FROM credits
		WHERE sale_id = $1
	`, saleID).Scan(&c.ID, &c.SaleID, &c.CustomerID, &c.Principal, &c.Paid, &c.DueDate, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.DueDate = c.DueDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListDebts(ctx context.Context, status string) ([]domain.Debt, error) {
	query := `
		SELECT id, origin, sale_id, credit_id, customer_id, customer_name, phone, total, paid, due_date, status, frequency, created_at
		FROM debts
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY due_date ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, 32)
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range debts {
		entries, err := s.listInstallments(ctx, debts[i].ID)
		if err != nil {
			return nil, err
		}
		debts[i].Installments = entries
	}
	return debts, nil
}

// ApplyPayment retries on serialization failures like RecordSale does.
func (s *Store) ApplyPayment(ctx context.Context, debtID string, amount int64, method string) (*domain.Debt, error) {
	var updated *domain.Debt
	backoff := retry.WithMaxRetries(3, retry.NewConstant(150*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := s.applyPaymentTx(ctx, debtID, amount, method)
		if err != nil {
			if isSerializationFailure(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated = out
		return nil
	})
	if err != nil {
		if isSerializationFailure(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrTransactionAborted, err)
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) applyPaymentTx(ctx context.Context, debtID string, amount int64, method string) (*domain.Debt, error) {
	if amount <= 0 {
		return nil, store.ErrValidation
	}
	if method == "" {
		method = "cash"
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	debt, err := scanDebt(tx.QueryRowContext(ctx, `
		SELECT id, origin, sale_id, credit_id, customer_id, customer_name, phone, total, paid, due_date, status, frequency, created_at
		FROM debts
		WHERE id = $1
		FOR UPDATE
	`, debtID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	remaining := debt.Total - debt.Paid
	if amount > remaining {
		return nil, &store.ExceedsBalanceError{DebtID: debtID, Remaining: remaining}
	}

	entries, err := listInstallmentsTx(ctx, tx, debtID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if len(entries) > 0 {
		allocated := installment.Allocate(entries, amount, now)
		for _, entry := range allocated {
			_, err := tx.ExecContext(ctx, `
				UPDATE debt_installments
				SET paid = $3, paid_at = $4
				WHERE debt_id = $1 AND number = $2
			`, debtID, entry.Number, entry.Paid, nullTime(entry.PaidAt))
			if err != nil {
				return nil, err
			}
		}
		debt.Installments = allocated
	}

	debt.Paid += amount
	debt.Status = domain.CreditStatusOpen
	if debt.Paid == debt.Total {
		debt.Status = domain.CreditStatusPaid
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE debts SET paid = $2, status = $3 WHERE id = $1
	`, debtID, debt.Paid, debt.Status)
	if err != nil {
		return nil, err
	}

	// Sale-origin debts mirror a credit row; the two move in lock step
	// inside the same transaction.
	if debt.CreditID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE credits
			SET paid = paid + $2,
			    status = CASE WHEN paid + $2 >= principal THEN 'paid' ELSE 'open' END
			WHERE id = $1
		`, debt.CreditID, amount)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, debt_id, credit_id, amount, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("pay"), debtID, nullIfEmpty(debt.CreditID), amount, method, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &debt, nil
}

func (s *Store) ListPaymentsByDebt(ctx context.Context, debtID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, debt_id, credit_id, amount, method, created_at
		FROM payments
		WHERE debt_id = $1
		ORDER BY created_at ASC
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	for rows.Next() {
		var p domain.Payment
		var creditID sql.NullString
		if err := rows.Scan(&p.ID, &p.DebtID, &creditID, &p.Amount, &p.Method, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreditID = creditID.String
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) DaySummary(ctx context.Context, day string) (domain.DaySummary, error) {
	summary := domain.DaySummary{Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total) FILTER (WHERE NOT is_credit), 0),
		       COALESCE(SUM(total) FILTER (WHERE is_credit), 0),
		       COALESCE(SUM(total), 0)
		FROM sales
		WHERE day_key = $1
	`, day).Scan(&summary.SalesCount, &summary.CashTotal, &summary.CreditTotal, &summary.GrossTotal)
	if err != nil {
		return domain.DaySummary{}, err
	}
	return summary, nil
}

func (s *Store) Receivables(ctx context.Context) (domain.ReceivablesSummary, error) {
	var summary domain.ReceivablesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total - paid), 0)
		FROM debts
		WHERE status = 'open'
	`).Scan(&summary.OpenDebts, &summary.Outstanding)
	if err != nil {
		return domain.ReceivablesSummary{}, err
	}
	return summary, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	if key == "" {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) listInstallments(ctx context.Context, debtID string) ([]domain.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, due_date, amount, paid, paid_at
		FROM debt_installments
		WHERE debt_id = $1
		ORDER BY number ASC
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func listInstallmentsTx(ctx context.Context, tx *sql.Tx, debtID string) ([]domain.Installment, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT number, due_date, amount, paid, paid_at
		FROM debt_installments
		WHERE debt_id = $1
		ORDER BY number ASC
		FOR UPDATE
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

func collectInstallments(rows *sql.Rows) ([]domain.Installment, error) {
	entries := make([]domain.Installment, 0, 4)
	for rows.Next() {
		var entry domain.Installment
		var paidAt sql.NullTime
		if err := rows.Scan(&entry.Number, &entry.DueDate, &entry.Amount, &entry.Paid, &paidAt); err != nil {
			return nil, err
		}
		entry.DueDate = entry.DueDate.UTC()
		if paidAt.Valid {
			t := paidAt.Time.UTC()
			entry.PaidAt = &t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Quantity, &item.CostPrice,
		&item.SellPrice, &item.ReorderLevel, &item.Demo, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return domain.Item{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerName sql.NullString
	var dueDate sql.NullTime
	err := row.Scan(&sale.ID, &sale.ItemID, &sale.ItemName, &sale.Quantity, &sale.SellPrice, &sale.Total,
		&sale.PaymentMethod, &sale.IsCredit, &customerName, &dueDate, &sale.DayKey, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CustomerName = customerName.String
	if dueDate.Valid {
		t := dueDate.Time.UTC()
		sale.DueDate = &t
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func scanDebt(row rowScanner) (domain.Debt, error) {
	var debt domain.Debt
	var saleID, creditID, customerID sql.NullString
	err := row.Scan(&debt.ID, &debt.Origin, &saleID, &creditID, &customerID, &debt.CustomerName, &debt.Phone,
		&debt.Total, &debt.Paid, &debt.DueDate, &debt.Status, &debt.Frequency, &debt.CreatedAt)
	if err != nil {
		return domain.Debt{}, err
	}
	debt.SaleID = saleID.String
	debt.CreditID = creditID.String
	debt.CustomerID = customerID.String
	debt.DueDate = debt.DueDate.UTC()
	debt.CreatedAt = debt.CreatedAt.UTC()
	return debt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
