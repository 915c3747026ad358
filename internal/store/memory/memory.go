package memory

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/installment"
	"shopbook/backend/internal/store"
	"shopbook/backend/internal/xid"
)

// Store keeps the full ledger in process memory. It implements the same
// contract as the Postgres store, including atomicity of the sale and
// payment protocols, and backs the dev/demo mode and the test suite.
type Store struct {
	mu               sync.RWMutex
	items            map[string]domain.Item
	sales            map[string]domain.Sale
	outbox           map[string]domain.OutboxEntry
	customers        map[string]domain.Customer
	customersByLower map[string]string
	credits          map[string]domain.Credit
	creditsBySale    map[string]string
	debts            map[string]domain.Debt
	payments         map[string][]domain.Payment
	settings         map[string]string
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		items:            map[string]domain.Item{},
		sales:            map[string]domain.Sale{},
		outbox:           map[string]domain.OutboxEntry{},
		customers:        map[string]domain.Customer{},
		customersByLower: map[string]string{},
		credits:          map[string]domain.Credit{},
		creditsBySale:    map[string]string{},
		debts:            map[string]domain.Debt{},
		payments:         map[string][]domain.Payment{},
		settings:         map[string]string{},
		usersByUsername:  map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store preloaded with demo inventory and dev user
// accounts. Seed credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; unset variables fall back to dev defaults with a
// warning. The seeded store is never used when DATABASE_URL is set.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, item := range []domain.Item{
		{ID: "itm-demo-beras", Name: "Beras 5kg", Category: "grocery", Quantity: 40, CostPrice: 62000, SellPrice: 68000, ReorderLevel: 10},
		{ID: "itm-demo-minyak", Name: "Minyak Goreng 1L", Category: "grocery", Quantity: 36, CostPrice: 15500, SellPrice: 17500, ReorderLevel: 12},
		{ID: "itm-demo-gula", Name: "Gula 1kg", Category: "grocery", Quantity: 30, CostPrice: 15800, SellPrice: 17400, ReorderLevel: 10},
		{ID: "itm-demo-kopi", Name: "Kopi Sachet", Category: "beverage", Quantity: 120, CostPrice: 1700, SellPrice: 2600, ReorderLevel: 24},
		{ID: "itm-demo-sabun", Name: "Sabun Mandi", Category: "household", Quantity: 48, CostPrice: 5000, SellPrice: 7400, ReorderLevel: 12},
		{ID: "itm-demo-telur", Name: "Telur 10 Butir", Category: "grocery", Quantity: 25, CostPrice: 23000, SellPrice: 26500, ReorderLevel: 8},
	} {
		item.Demo = true
		item.CreatedAt = now
		item.UpdatedAt = now
		s.items[item.ID] = item
	}

	s.usersByUsername = seedUsers()
	return s
}

func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" || item.Quantity < 0 || item.SellPrice < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if strings.EqualFold(existing.Name, item.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item

	created := item
	return &created, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) RestockItem(ctx context.Context, id string, qty int, costPrice int64) (*domain.Item, error) {
	if qty < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.Quantity += qty
	if costPrice > 0 {
		item.CostPrice = costPrice
	}
	item.UpdatedAt = time.Now().UTC()
	s.items[id] = item

	updated := item
	return &updated, nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, 8)
	for _, item := range s.items {
		if item.Quantity <= item.ReorderLevel {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Quantity != items[j].Quantity {
			return items[i].Quantity < items[j].Quantity
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Store) RecordSale(ctx context.Context, sale domain.Sale, credit *domain.CreditDetails) (*domain.Sale, error) {
	if sale.ID == "" || sale.ItemID == "" || sale.Quantity < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[sale.ID]; ok {
		existing, ok := s.sales[sale.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		found := existing
		return &found, nil
	}

	item, ok := s.items[sale.ItemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if item.Quantity < sale.Quantity {
		return nil, &store.InsufficientStockError{ItemID: sale.ItemID, Remaining: item.Quantity}
	}

	if credit != nil {
		if strings.TrimSpace(credit.CustomerName) == "" || sale.DueDate == nil {
			return nil, store.ErrValidation
		}
	}

	item.Quantity -= sale.Quantity
	item.UpdatedAt = time.Now().UTC()
	s.items[sale.ItemID] = item

	sale.ItemName = item.Name
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
	s.sales[sale.ID] = sale

	if credit != nil {
		s.createCreditLocked(sale, credit)
	}

	payload, err := json.Marshal(sale)
	if err != nil {
		return nil, err
	}
	s.outbox[sale.ID] = domain.OutboxEntry{
		ID:        sale.ID,
		Kind:      domain.OutboxKindSale,
		Payload:   payload,
		CreatedAt: sale.CreatedAt,
	}

	created := sale
	return &created, nil
}

func (s *Store) createCreditLocked(sale domain.Sale, credit *domain.CreditDetails) {
	name := strings.TrimSpace(credit.CustomerName)
	lower := strings.ToLower(name)
	phone := strings.TrimSpace(credit.Phone)

	customerID, ok := s.customersByLower[lower]
	if ok {
		customer := s.customers[customerID]
		if phone != "" {
			customer.Phone = phone
		}
		if credit.Consent && customer.ConsentAt == nil {
			now := time.Now().UTC()
			customer.ConsentAt = &now
		}
		s.customers[customerID] = customer
	} else {
		customerID = xid.New("cus")
		customer := domain.Customer{
			ID:        customerID,
			Name:      name,
			NameLower: lower,
			Phone:     phone,
			CreatedAt: time.Now().UTC(),
		}
		if credit.Consent {
			now := time.Now().UTC()
			customer.ConsentAt = &now
		}
		s.customers[customerID] = customer
		s.customersByLower[lower] = customerID
	}

	creditID := xid.New("cr")
	s.credits[creditID] = domain.Credit{
		ID:         creditID,
		SaleID:     sale.ID,
		CustomerID: customerID,
		Principal:  sale.Total,
		Paid:       0,
		DueDate:    *sale.DueDate,
		Status:     domain.CreditStatusOpen,
		CreatedAt:  sale.CreatedAt,
	}
	s.creditsBySale[sale.ID] = creditID

	debtID := xid.New("dbt")
	s.debts[debtID] = domain.Debt{
		ID:           debtID,
		Origin:       domain.DebtOriginSale,
		SaleID:       sale.ID,
		CreditID:     creditID,
		CustomerID:   customerID,
		CustomerName: name,
		Phone:        phone,
		Total:        sale.Total,
		Paid:         0,
		DueDate:      *sale.DueDate,
		Status:       domain.CreditStatusOpen,
		CreatedAt:    sale.CreatedAt,
	}
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) ListSalesByDay(ctx context.Context, dayKey string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.DayKey == dayKey {
			sales = append(sales, sale)
		}
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	return sales, nil
}

func (s *Store) GetOutboxEntry(ctx context.Context, id string) (*domain.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.outbox[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := entry
	return &found, nil
}

func (s *Store) GetCustomerByName(ctx context.Context, nameLower string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.customersByLower[strings.ToLower(strings.TrimSpace(nameLower))]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer := s.customers[id]
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.CustomerName == "" || debt.Total <= 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if debt.ID == "" {
		debt.ID = xid.New("dbt")
	}
	if existing, ok := s.debts[debt.ID]; ok {
		found := existing
		return &found, nil
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
	s.debts[debt.ID] = debt

	created := debt
	return &created, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, ok := s.debts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := debt
	return &found, nil
}

func (s *Store) GetCreditBySaleID(ctx context.Context, saleID string) (*domain.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.creditsBySale[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	credit := s.credits[id]
	return &credit, nil
}

func (s *Store) ListDebts(ctx context.Context, status string) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debts := make([]domain.Debt, 0, len(s.debts))
	for _, debt := range s.debts {
		if status != "" && debt.Status != status {
			continue
		}
		debts = append(debts, debt)
	}
	sort.Slice(debts, func(i, j int) bool {
		if !debts[i].DueDate.Equal(debts[j].DueDate) {
			return debts[i].DueDate.Before(debts[j].DueDate)
		}
		return debts[i].CreatedAt.Before(debts[j].CreatedAt)
	})
	return debts, nil
}

func (s *Store) ApplyPayment(ctx context.Context, debtID string, amount int64, method string) (*domain.Debt, error) {
	if amount <= 0 {
		return nil, store.ErrValidation
	}
	if method == "" {
		method = "cash"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	debt, ok := s.debts[debtID]
	if !ok {
		return nil, store.ErrNotFound
	}

	remaining := debt.Total - debt.Paid
	if amount > remaining {
		return nil, &store.ExceedsBalanceError{DebtID: debtID, Remaining: remaining}
	}

	now := time.Now().UTC()
	if len(debt.Installments) > 0 {
		debt.Installments = installment.Allocate(debt.Installments, amount, now)
	}
	debt.Paid += amount
	debt.Status = domain.CreditStatusOpen
	if debt.Paid == debt.Total {
		debt.Status = domain.CreditStatusPaid
	}
	s.debts[debtID] = debt

	if debt.CreditID != "" {
		credit := s.credits[debt.CreditID]
		credit.Paid += amount
		if credit.Paid >= credit.Principal {
			credit.Status = domain.CreditStatusPaid
		}
		s.credits[debt.CreditID] = credit
	}

	s.payments[debtID] = append(s.payments[debtID], domain.Payment{
		ID:        xid.New("pay"),
		DebtID:    debtID,
		CreditID:  debt.CreditID,
		Amount:    amount,
		Method:    method,
		CreatedAt: now,
	})

	updated := debt
	return &updated, nil
}

func (s *Store) ListPaymentsByDebt(ctx context.Context, debtID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, len(s.payments[debtID]))
	copy(payments, s.payments[debtID])
	return payments, nil
}

func (s *Store) DaySummary(ctx context.Context, day string) (domain.DaySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DaySummary{Day: day}
	for _, sale := range s.sales {
		if sale.DayKey != day {
			continue
		}
		summary.SalesCount++
		summary.GrossTotal += sale.Total
		if sale.IsCredit {
			summary.CreditTotal += sale.Total
		} else {
			summary.CashTotal += sale.Total
		}
	}
	return summary, nil
}

func (s *Store) Receivables(ctx context.Context) (domain.ReceivablesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.ReceivablesSummary
	for _, debt := range s.debts {
		if debt.Status != domain.CreditStatusOpen {
			continue
		}
		summary.OpenDebts++
		summary.Outstanding += debt.Total - debt.Paid
	}
	return summary, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) error {
	if key == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[user.Username]; ok {
		return store.ErrValidation
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
