package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopbook/backend/internal/dates"
	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/events"
	"shopbook/backend/internal/gateway"
	"shopbook/backend/internal/installment"
	"shopbook/backend/internal/match"
	"shopbook/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// AmbiguousItemError reports a free-text item query that matched more than
// one candidate at the best priority. The caller is expected to re-submit
// with an explicit item id.
type AmbiguousItemError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousItemError) Error() string {
	return fmt.Sprintf("query %q matches %d items", e.Query, len(e.Candidates))
}

func (e *AmbiguousItemError) Unwrap() error { return store.ErrValidation }

// Service orchestrates the ledger: it validates requests, drives the store
// protocols, recomputes aggregates after every commit, and publishes events.
type Service struct {
	repo    store.Repository
	bus     *events.Bus
	log     *zap.SugaredLogger
	gateway *gateway.Client
	now     func() time.Time
}

func New(repo store.Repository, bus *events.Bus, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Service{
		repo: repo,
		bus:  bus,
		log:  logger,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Quantity < 0 || req.SellPrice < 0 || req.ReorderLevel < 0 {
		return domain.Item{}, store.ErrValidation
	}

	created, err := s.repo.CreateItem(ctx, domain.Item{
		Name:         req.Name,
		Category:     strings.TrimSpace(req.Category),
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice,
		SellPrice:    req.SellPrice,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.log.Infow("item created", "item_id", created.ID, "name", created.Name)
	return *created, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) RestockItem(ctx context.Context, id string, req domain.RestockRequest) (domain.Item, error) {
	if req.Quantity < 1 {
		return domain.Item{}, store.ErrValidation
	}
	updated, err := s.repo.RestockItem(ctx, id, req.Quantity, req.CostPrice)
	if err != nil {
		return domain.Item{}, err
	}
	s.log.Infow("item restocked", "item_id", id, "quantity", req.Quantity)
	return *updated, nil
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListLowStock(ctx)
}

// ResolveItem runs the fuzzy resolver over the current item names and
// returns the matched items in ranked order.
func (s *Service) ResolveItem(ctx context.Context, query string) ([]domain.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, store.ErrValidation
	}

	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.Item, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		byName[item.Name] = item
		names = append(names, item.Name)
	}

	matches := match.Resolve(query, names)
	resolved := make([]domain.Item, 0, len(matches))
	for _, m := range matches {
		resolved = append(resolved, byName[m.Name])
	}
	return resolved, nil
}

// RecordSale runs the sale protocol end to end. A replayed sale id is
// answered from the outbox without touching stock or the ledger; the
// in-store stock re-check stays authoritative regardless of the advisory
// check done here.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.SaleResult{}, fmt.Errorf("%w: sale id is required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.SaleResult{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if req.SellPrice < 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: sell price must not be negative", store.ErrValidation)
	}
	if req.Credit != nil {
		if strings.TrimSpace(req.Credit.CustomerName) == "" {
			return domain.SaleResult{}, fmt.Errorf("%w: credit sale requires a customer name", store.ErrValidation)
		}
		if req.Credit.DueDate.IsZero() {
			return domain.SaleResult{}, fmt.Errorf("%w: credit sale requires a due date", store.ErrValidation)
		}
		if req.Credit.WantsRemind {
			if !req.Credit.Consent {
				return domain.SaleResult{}, fmt.Errorf("%w: reminders require customer consent", store.ErrValidation)
			}
			if strings.TrimSpace(req.Credit.Phone) == "" {
				return domain.SaleResult{}, fmt.Errorf("%w: reminders require a phone number", store.ErrValidation)
			}
		}
	}

	if _, err := s.repo.GetOutboxEntry(ctx, req.SaleID); err == nil {
		return s.replayResult(ctx, req.SaleID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SaleResult{}, err
	}

	item, err := s.resolveSaleItem(ctx, req)
	if err != nil {
		return domain.SaleResult{}, err
	}

	// Advisory fast path. Losing a race here is fine: the transaction
	// re-checks under a row lock and returns the same typed error.
	if item.Quantity < req.Quantity {
		return domain.SaleResult{}, &store.InsufficientStockError{ItemID: item.ID, Remaining: item.Quantity}
	}

	// Zero means "use the catalog price"; the effective price must still be
	// positive, so an item with no catalog price needs an explicit one.
	sellPrice := req.SellPrice
	if sellPrice == 0 {
		sellPrice = item.SellPrice
	}
	if sellPrice <= 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: sell price must be positive", store.ErrValidation)
	}

	sale := domain.Sale{
		ID:            req.SaleID,
		ItemID:        item.ID,
		Quantity:      req.Quantity,
		SellPrice:     sellPrice,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		CreatedAt:     s.now(),
	}
	sale.DayKey = dates.DayKey(sale.CreatedAt)
	if req.Credit != nil {
		due := dates.BeginningOfDay(req.Credit.DueDate)
		sale.DueDate = &due
		sale.CustomerName = strings.TrimSpace(req.Credit.CustomerName)
		sale.PaymentMethod = "credit"
	} else if sale.PaymentMethod == "" {
		sale.PaymentMethod = "cash"
	}

	recorded, err := s.repo.RecordSale(ctx, sale, req.Credit)
	if err != nil {
		return domain.SaleResult{}, err
	}

	summary, receivables, err := s.recompute(ctx, recorded.DayKey)
	if err != nil {
		return domain.SaleResult{}, err
	}

	s.bus.Publish(events.Event{
		Kind:        events.SaleRecorded,
		Sale:        recorded,
		Summary:     summary,
		Receivables: receivables,
	})
	s.log.Infow("sale recorded",
		"sale_id", recorded.ID, "item_id", recorded.ItemID,
		"quantity", recorded.Quantity, "total", recorded.Total,
		"credit", recorded.IsCredit)

	return domain.SaleResult{
		Sale:        *recorded,
		Summary:     summary,
		Receivables: receivables,
	}, nil
}

func (s *Service) replayResult(ctx context.Context, saleID string) (domain.SaleResult, error) {
	existing, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleResult{}, err
	}
	summary, receivables, err := s.recompute(ctx, existing.DayKey)
	if err != nil {
		return domain.SaleResult{}, err
	}
	s.log.Infow("sale replayed", "sale_id", saleID)
	return domain.SaleResult{
		Sale:        *existing,
		Duplicate:   true,
		Summary:     summary,
		Receivables: receivables,
	}, nil
}

func (s *Service) resolveSaleItem(ctx context.Context, req domain.SaleRequest) (domain.Item, error) {
	if req.ItemID != "" {
		item, err := s.repo.GetItem(ctx, req.ItemID)
		if err != nil {
			return domain.Item{}, err
		}
		return *item, nil
	}

	query := strings.TrimSpace(req.ItemQuery)
	if query == "" {
		return domain.Item{}, fmt.Errorf("%w: item id or item query is required", store.ErrValidation)
	}

	resolved, err := s.ResolveItem(ctx, query)
	if err != nil {
		return domain.Item{}, err
	}
	if len(resolved) == 0 {
		return domain.Item{}, fmt.Errorf("%w: no item matches %q", store.ErrNotFound, query)
	}
	if len(resolved) > 1 {
		names := make([]string, 0, len(resolved))
		for _, item := range resolved {
			names = append(names, item.Name)
		}
		return domain.Item{}, &AmbiguousItemError{Query: query, Candidates: names}
	}
	return resolved[0], nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSalesByDay(ctx context.Context, day string) ([]domain.Sale, error) {
	if day == "" {
		day = dates.DayKey(s.now())
	}
	return s.repo.ListSalesByDay(ctx, day)
}

func (s *Service) DaySummary(ctx context.Context, day string) (domain.DaySummary, error) {
	if day == "" {
		day = dates.DayKey(s.now())
	}
	return s.repo.DaySummary(ctx, day)
}

func (s *Service) Receivables(ctx context.Context) (domain.ReceivablesSummary, error) {
	return s.repo.Receivables(ctx)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// CreateDebt records a manual debt. A payment plan splits the total into
// dated installments and the debt's own due date becomes the first
// installment's.
func (s *Service) CreateDebt(ctx context.Context, req domain.DebtCreateRequest) (domain.DebtView, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.DebtView{}, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	if req.Total <= 0 {
		return domain.DebtView{}, fmt.Errorf("%w: total must be positive", store.ErrValidation)
	}

	debt := domain.Debt{
		Origin:       domain.DebtOriginManual,
		CustomerName: req.CustomerName,
		Phone:        strings.TrimSpace(req.Phone),
		Total:        req.Total,
		DueDate:      dates.BeginningOfDay(req.DueDate),
		Status:       domain.CreditStatusOpen,
		CreatedAt:    s.now(),
	}

	if req.Plan != nil {
		start := req.Plan.StartDate
		if start.IsZero() {
			start = debt.DueDate
		}
		entries, err := installment.Schedule(req.Total, req.Plan.Count, req.Plan.Frequency, dates.BeginningOfDay(start))
		if err != nil {
			return domain.DebtView{}, err
		}
		debt.Installments = entries
		debt.Frequency = req.Plan.Frequency
		debt.DueDate = entries[0].DueDate
	} else if req.DueDate.IsZero() {
		return domain.DebtView{}, fmt.Errorf("%w: due date is required", store.ErrValidation)
	}

	created, err := s.repo.CreateDebt(ctx, debt)
	if err != nil {
		return domain.DebtView{}, err
	}

	receivables, err := s.repo.Receivables(ctx)
	if err != nil {
		return domain.DebtView{}, err
	}
	s.bus.Publish(events.Event{
		Kind:        events.DebtCreated,
		Debt:        created,
		Receivables: receivables,
	})
	s.log.Infow("debt created", "debt_id", created.ID, "customer", created.CustomerName, "total", created.Total)

	return s.view(*created), nil
}

func (s *Service) GetDebt(ctx context.Context, id string) (domain.DebtView, error) {
	debt, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return domain.DebtView{}, err
	}
	return s.view(*debt), nil
}

// ListDebts returns debts with the overdue flag computed against the
// current day. Overdue is never stored; two calls straddling midnight may
// legitimately disagree.
func (s *Service) ListDebts(ctx context.Context, status string) ([]domain.DebtView, error) {
	debts, err := s.repo.ListDebts(ctx, status)
	if err != nil {
		return nil, err
	}
	views := make([]domain.DebtView, 0, len(debts))
	for _, debt := range debts {
		views = append(views, s.view(debt))
	}
	return views, nil
}

// OverdueDebts lists open debts whose due date has passed. The reminder
// sweep is its only internal caller but it is exposed for the API as well.
func (s *Service) OverdueDebts(ctx context.Context) ([]domain.DebtView, error) {
	debts, err := s.repo.ListDebts(ctx, domain.CreditStatusOpen)
	if err != nil {
		return nil, err
	}
	views := make([]domain.DebtView, 0, len(debts))
	for _, debt := range debts {
		view := s.view(debt)
		if view.Overdue {
			views = append(views, view)
		}
	}
	return views, nil
}

// AttachGateway enables provider-side verification of referenced non-cash
// payments.
func (s *Service) AttachGateway(client *gateway.Client) {
	s.gateway = client
}

func (s *Service) RecordPayment(ctx context.Context, debtID string, req domain.PaymentRequest) (domain.DebtView, error) {
	if debtID == "" {
		return domain.DebtView{}, store.ErrValidation
	}
	if req.Amount <= 0 {
		return domain.DebtView{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	if req.Reference != "" && s.gateway != nil {
		verification, err := s.gateway.VerifyPayment(ctx, req.Reference)
		if err != nil {
			return domain.DebtView{}, fmt.Errorf("%w: verify payment reference: %v", store.ErrValidation, err)
		}
		if verification.Status != gateway.StatusSettled {
			return domain.DebtView{}, fmt.Errorf("%w: payment %s not settled (status %s)", store.ErrValidation, req.Reference, verification.Status)
		}
		if verification.Amount > 0 && verification.Amount != req.Amount {
			return domain.DebtView{}, fmt.Errorf("%w: payment %s settled for %d, not %d", store.ErrValidation, req.Reference, verification.Amount, req.Amount)
		}
	}

	updated, err := s.repo.ApplyPayment(ctx, debtID, req.Amount, req.Method)
	if err != nil {
		return domain.DebtView{}, err
	}

	receivables, err := s.repo.Receivables(ctx)
	if err != nil {
		return domain.DebtView{}, err
	}
	s.bus.Publish(events.Event{
		Kind:        events.PaymentRecorded,
		Debt:        updated,
		Receivables: receivables,
	})
	s.log.Infow("payment recorded",
		"debt_id", debtID, "amount", req.Amount,
		"remaining", updated.Remaining(), "status", updated.Status)

	return s.view(*updated), nil
}

func (s *Service) ListPaymentsByDebt(ctx context.Context, debtID string) ([]domain.Payment, error) {
	if _, err := s.repo.GetDebt(ctx, debtID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByDebt(ctx, debtID)
}

func (s *Service) Events() *events.Bus {
	return s.bus
}

func (s *Service) Setting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key)
}

func (s *Service) SaveSetting(ctx context.Context, key string, value string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	return s.repo.SetSetting(ctx, key, value)
}

func (s *Service) view(debt domain.Debt) domain.DebtView {
	return domain.DebtView{
		Debt:      debt,
		Overdue:   debt.Status == domain.CreditStatusOpen && dates.OverdueOn(debt.DueDate, s.now()),
		Remaining: debt.Remaining(),
	}
}

func (s *Service) recompute(ctx context.Context, day string) (domain.DaySummary, domain.ReceivablesSummary, error) {
	summary, err := s.repo.DaySummary(ctx, day)
	if err != nil {
		return domain.DaySummary{}, domain.ReceivablesSummary{}, err
	}
	receivables, err := s.repo.Receivables(ctx)
	if err != nil {
		return domain.DaySummary{}, domain.ReceivablesSummary{}, err
	}
	return summary, receivables, nil
}
