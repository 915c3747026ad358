package domain

import (
	"encoding/json"
	"time"
)

type Item struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Quantity     int       `json:"quantity"`
	CostPrice    int64     `json:"cost_price"`
	SellPrice    int64     `json:"sell_price"`
	ReorderLevel int       `json:"reorder_level"`
	Demo         bool      `json:"demo"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ItemCreateRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Quantity     int    `json:"quantity"`
	CostPrice    int64  `json:"cost_price"`
	SellPrice    int64  `json:"sell_price"`
	ReorderLevel int    `json:"reorder_level"`
}

type RestockRequest struct {
	Quantity  int   `json:"quantity"`
	CostPrice int64 `json:"cost_price,omitempty"`
}

// Sale is immutable once recorded. SellPrice is the unit price captured at
// sale time; DayKey is the calendar day ("2006-01-02") used for daily
// aggregation.
type Sale struct {
	ID            string     `json:"id"`
	ItemID        string     `json:"item_id"`
	ItemName      string     `json:"item_name"`
	Quantity      int        `json:"quantity"`
	SellPrice     int64      `json:"sell_price"`
	Total         int64      `json:"total"`
	PaymentMethod string     `json:"payment_method"`
	IsCredit      bool       `json:"is_credit"`
	CustomerName  string     `json:"customer_name,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	DayKey        string     `json:"day_key"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SaleRequest identifies the item either by ID or by free-text query; the
// query path goes through the fuzzy resolver and auto-selects a sole match.
type SaleRequest struct {
	SaleID        string         `json:"sale_id"`
	ItemID        string         `json:"item_id,omitempty"`
	ItemQuery     string         `json:"item_query,omitempty"`
	Quantity      int            `json:"quantity"`
	SellPrice     int64          `json:"sell_price"`
	PaymentMethod string         `json:"payment_method"`
	Credit        *CreditDetails `json:"credit,omitempty"`
}

type CreditDetails struct {
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone,omitempty"`
	DueDate      time.Time `json:"due_date"`
	WantsRemind  bool      `json:"wants_remind,omitempty"`
	Consent      bool      `json:"consent,omitempty"`
}

type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	NameLower string     `json:"name_lower"`
	Phone     string     `json:"phone,omitempty"`
	ConsentAt *time.Time `json:"consent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const (
	CreditStatusOpen = "open"
	CreditStatusPaid = "paid"
)

// Credit is the per-sale receivable: exactly one per credit sale, keyed by
// the sale id. Invariant: 0 <= Paid <= Principal, and Status is paid only
// when Paid == Principal.
type Credit struct {
	ID         string    `json:"id"`
	SaleID     string    `json:"sale_id"`
	CustomerID string    `json:"customer_id"`
	Principal  int64     `json:"principal"`
	Paid       int64     `json:"paid"`
	DueDate    time.Time `json:"due_date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	DebtOriginSale   = "sale"
	DebtOriginManual = "manual"
)

const (
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// Installment is one dated slice of a debt. Paid tracks partial coverage;
// PaidAt is set only once the slice is fully covered.
type Installment struct {
	Number  int        `json:"number"`
	DueDate time.Time  `json:"due_date"`
	Amount  int64      `json:"amount"`
	Paid    int64      `json:"paid"`
	PaidAt  *time.Time `json:"paid_at,omitempty"`
}

// Debt is the single normalized owed-balance entity. Origin tags where it
// came from (a credit sale mirror or a manual entry) and is collapsed at
// ingestion; readers never reconcile two shapes.
type Debt struct {
	ID           string        `json:"id"`
	Origin       string        `json:"origin"`
	SaleID       string        `json:"sale_id,omitempty"`
	CreditID     string        `json:"credit_id,omitempty"`
	CustomerID   string        `json:"customer_id,omitempty"`
	CustomerName string        `json:"customer_name"`
	Phone        string        `json:"phone,omitempty"`
	Total        int64         `json:"total"`
	Paid         int64         `json:"paid"`
	DueDate      time.Time     `json:"due_date"`
	Status       string        `json:"status"`
	Frequency    string        `json:"frequency,omitempty"`
	Installments []Installment `json:"installments,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (d Debt) Remaining() int64 {
	return d.Total - d.Paid
}

type InstallmentParams struct {
	Count     int       `json:"count"`
	Frequency string    `json:"frequency"`
	StartDate time.Time `json:"start_date"`
}

type DebtCreateRequest struct {
	CustomerName string             `json:"customer_name"`
	Phone        string             `json:"phone,omitempty"`
	Total        int64              `json:"total"`
	DueDate      time.Time          `json:"due_date"`
	Plan         *InstallmentParams `json:"plan,omitempty"`
}

// PaymentRequest records money received against a debt. Reference is the
// provider reference for non-cash payments and triggers gateway
// verification when one is configured.
type PaymentRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Payment is the append-only log backing a debt's paid total. CreditID is
// set when the debt mirrors a credit sale.
type Payment struct {
	ID        string    `json:"id"`
	DebtID    string    `json:"debt_id"`
	CreditID  string    `json:"credit_id,omitempty"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

const OutboxKindSale = "record_sale"

// OutboxEntry is the idempotency marker: its ID equals the sale id it
// guards, so a retried submission finds the marker and becomes a no-op.
type OutboxEntry struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaleResult reports a committed sale together with the aggregates
// recomputed after commit. Duplicate marks an idempotent replay: the stored
// sale is returned and no state changed.
type SaleResult struct {
	Sale        Sale               `json:"sale"`
	Duplicate   bool               `json:"duplicate"`
	Summary     DaySummary         `json:"summary"`
	Receivables ReceivablesSummary `json:"receivables"`
}

// DebtView decorates a debt with its computed overdue flag. Overdue is
// derived at read time from the due date and is never persisted.
type DebtView struct {
	Debt
	Overdue   bool  `json:"overdue"`
	Remaining int64 `json:"remaining"`
}

// DaySummary is always recomputed from committed sales, never maintained
// incrementally.
type DaySummary struct {
	Day         string `json:"day"`
	SalesCount  int    `json:"sales_count"`
	CashTotal   int64  `json:"cash_total"`
	CreditTotal int64  `json:"credit_total"`
	GrossTotal  int64  `json:"gross_total"`
}

type ReceivablesSummary struct {
	OpenDebts   int   `json:"open_debts"`
	Outstanding int64 `json:"outstanding"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
