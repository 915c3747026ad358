package store

import (
	"context"
	"errors"
	"fmt"

	"shopbook/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrDuplicateName      = errors.New("name already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError is raised inside the sale transaction when the
// authoritative in-transaction re-check fails. Remaining carries the actual
// quantity left so callers can show the limiting value.
type InsufficientStockError struct {
	ItemID    string
	Remaining int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d available", e.Remaining)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ExceedsBalanceError rejects a payment larger than what is still owed.
type ExceedsBalanceError struct {
	DebtID    string
	Remaining int64
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("amount exceeds balance of %d", e.Remaining)
}

func (e *ExceedsBalanceError) Unwrap() error { return ErrValidation }

// Repository is the ledger's storage contract. All multi-entity mutations
// (RecordSale, ApplyPayment) are atomic: a reader observes either the fully
// pre-commit or fully post-commit state, never an intermediate one.
type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	RestockItem(ctx context.Context, id string, qty int, costPrice int64) (*domain.Item, error)
	ListLowStock(ctx context.Context) ([]domain.Item, error)

	// RecordSale runs the whole sale protocol in one transaction: insert
	// sale, re-check and decrement stock, upsert customer plus credit and
	// mirrored debt for credit sales, write the outbox marker. A sale id
	// that was already committed returns the existing sale unchanged.
	RecordSale(ctx context.Context, sale domain.Sale, credit *domain.CreditDetails) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesByDay(ctx context.Context, dayKey string) ([]domain.Sale, error)
	GetOutboxEntry(ctx context.Context, id string) (*domain.OutboxEntry, error)

	GetCustomerByName(ctx context.Context, nameLower string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	GetDebt(ctx context.Context, id string) (*domain.Debt, error)
	GetCreditBySaleID(ctx context.Context, saleID string) (*domain.Credit, error)
	ListDebts(ctx context.Context, status string) ([]domain.Debt, error)

	// ApplyPayment validates the amount against the remaining balance,
	// appends the payment, allocates it oldest-due-first across pending
	// installments, and updates the debt (and linked credit for
	// sale-origin debts) in one transaction.
	ApplyPayment(ctx context.Context, debtID string, amount int64, method string) (*domain.Debt, error)
	ListPaymentsByDebt(ctx context.Context, debtID string) ([]domain.Payment, error)

	DaySummary(ctx context.Context, day string) (domain.DaySummary, error)
	Receivables(ctx context.Context) (domain.ReceivablesSummary, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key string, value string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
