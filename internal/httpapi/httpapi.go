package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/export"
	"shopbook/backend/internal/remind"
	"shopbook/backend/internal/service"
	"shopbook/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           *zap.SugaredLogger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		log:           logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.cors)

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("cashier", "admin"))

			r.Get("/items", a.handleListItems)
			r.Get("/items/low-stock", a.handleLowStock)
			r.Get("/items/resolve", a.handleResolveItem)

			r.Post("/sales", a.handleRecordSale)
			r.Get("/sales", a.handleListSales)
			r.Get("/sales/export", a.handleExportSales)
			r.Get("/sales/{id}", a.handleGetSale)

			r.Get("/summary/day", a.handleDaySummary)
			r.Get("/summary/receivables", a.handleReceivables)

			r.Post("/debts", a.handleCreateDebt)
			r.Get("/debts", a.handleListDebts)
			r.Get("/debts/overdue", a.handleOverdueDebts)
			r.Get("/debts/export", a.handleExportDebts)
			r.Get("/debts/{id}", a.handleGetDebt)
			r.Post("/debts/{id}/payments", a.handleRecordPayment)
			r.Get("/debts/{id}/payments", a.handleListPayments)
			r.Get("/debts/{id}/whatsapp-link", a.handleWhatsAppLink)

			r.Get("/customers", a.handleListCustomers)
			r.Get("/settings/reminder-template", a.handleGetReminderTemplate)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("admin"))

			r.Post("/items", a.handleCreateItem)
			r.Post("/items/{id}/restock", a.handleRestockItem)
			r.Put("/settings/reminder-template", a.handleSetReminderTemplate)
		})
	})

	return r
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				a.writeError(w, http.StatusUnauthorized, err)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				a.writeError(w, http.StatusForbidden, errors.New("insufficient role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Login(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleRestockItem(w http.ResponseWriter, r *http.Request) {
	var req domain.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	item, err := a.service.RestockItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListLowStock(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleResolveItem(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	items, err := a.service.ResolveItem(r.Context(), query)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"query": query, "items": items})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	a.writeJSON(w, status, result)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSalesByDay(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleExportSales(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	sales, err := a.service.ListSalesByDay(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sales-"+day+".csv"))
	if err := export.WriteSales(w, sales); err != nil {
		a.log.Errorw("sales export failed", "error", err)
	}
}

func (a *API) handleDaySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DaySummary(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleReceivables(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Receivables(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req domain.DebtCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	debt, err := a.service.CreateDebt(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{"debt": debt})
}

func (a *API) handleListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := a.service.ListDebts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
}

func (a *API) handleOverdueDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := a.service.OverdueDebts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
}

func (a *API) handleExportDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := a.service.ListDebts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="debts.csv"`)
	if err := export.WriteDebts(w, debts); err != nil {
		a.log.Errorw("debts export failed", "error", err)
	}
}

func (a *API) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	debt, err := a.service.GetDebt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"debt": debt})
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	debt, err := a.service.RecordPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"debt": debt})
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPaymentsByDebt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handleWhatsAppLink(w http.ResponseWriter, r *http.Request) {
	debt, err := a.service.GetDebt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if debt.Phone == "" {
		a.writeError(w, http.StatusUnprocessableEntity, errors.New("debt has no phone number"))
		return
	}
	template, err := a.service.Setting(r.Context(), remind.TemplateSettingKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.writeServiceError(w, err)
			return
		}
		template = remind.DefaultTemplate
	}
	body := remind.Message(template, debt)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"link":    remind.WhatsAppLink(debt.Phone, body),
		"message": body,
	})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleGetReminderTemplate(w http.ResponseWriter, r *http.Request) {
	template, err := a.service.Setting(r.Context(), remind.TemplateSettingKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.writeServiceError(w, err)
			return
		}
		template = remind.DefaultTemplate
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"template": template})
}

func (a *API) handleSetReminderTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Template) == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("template is required"))
		return
	}
	if err := a.service.SaveSetting(r.Context(), remind.TemplateSettingKey, req.Template); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"template": req.Template})
}

// writeServiceError translates the store's typed errors into HTTP answers.
// Typed errors carry extra fields (remaining stock, remaining balance,
// candidate names) that clients need to recover.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *store.InsufficientStockError
	if errors.As(err, &stockErr) {
		a.writeJSON(w, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"item_id":   stockErr.ItemID,
			"remaining": stockErr.Remaining,
		})
		return
	}
	var balanceErr *store.ExceedsBalanceError
	if errors.As(err, &balanceErr) {
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     balanceErr.Error(),
			"debt_id":   balanceErr.DebtID,
			"remaining": balanceErr.Remaining,
		})
		return
	}
	var ambiguousErr *service.AmbiguousItemError
	if errors.As(err, &ambiguousErr) {
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      ambiguousErr.Error(),
			"query":      ambiguousErr.Query,
			"candidates": ambiguousErr.Candidates,
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateName):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrValidation):
		a.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrForbidden):
		a.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrTransactionAborted), errors.Is(err, store.ErrStorageUnavailable):
		a.writeError(w, http.StatusServiceUnavailable, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx answers get a generic message so internals (SQL errors, paths)
	// never reach clients.
	msg := err.Error()
	if status >= 500 {
		a.log.Errorw("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	a.writeJSON(w, status, map[string]any{"error": msg})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
