// Package remind sends overdue-debt reminders. The scheduler sweeps open
// overdue debts on a cron cadence; the throttle guarantees at most one
// reminder per debt per rolling 24 hours no matter how often the sweep runs.
package remind

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/service"
	"shopbook/backend/internal/store"
)

const (
	// TemplateSettingKey addresses the message template in the settings
	// store. Placeholders: {name}, {amount}, {due}.
	TemplateSettingKey = "reminder_template"

	// DefaultTemplate is used when no template has been stored.
	DefaultTemplate = "Halo {name}, mengingatkan tagihan sebesar {amount} yang jatuh tempo {due}. Terima kasih."

	defaultCronSpec = "0 9 * * *"
)

type Scheduler struct {
	svc      *service.Service
	repo     store.Repository
	throttle Throttle
	sender   Sender
	log      *zap.SugaredLogger
	cron     *cron.Cron
	spec     string
}

func NewScheduler(svc *service.Service, repo store.Repository, throttle Throttle, sender Sender, logger *zap.SugaredLogger, spec string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if spec == "" {
		spec = defaultCronSpec
	}
	return &Scheduler{
		svc:      svc,
		repo:     repo,
		throttle: throttle,
		sender:   sender,
		log:      logger,
		spec:     spec,
	}
}

func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Errorw("reminder sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Infow("reminder scheduler started", "spec", s.spec)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep sends a reminder for every overdue open debt that has a phone
// number and an unclaimed throttle slot. Send failures are logged per debt
// and do not stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) error {
	overdue, err := s.svc.OverdueDebts(ctx)
	if err != nil {
		return err
	}

	template := s.template(ctx)
	sent := 0
	for _, debt := range overdue {
		if debt.Phone == "" {
			continue
		}
		allowed, err := s.throttle.Allow(ctx, debt.ID)
		if err != nil {
			s.log.Warnw("throttle check failed", "debt_id", debt.ID, "error", err)
			continue
		}
		if !allowed {
			continue
		}
		body := Message(template, debt)
		if err := s.sender.Send(ctx, debt.Phone, body); err != nil {
			s.log.Warnw("reminder send failed", "debt_id", debt.ID, "error", err)
			continue
		}
		sent++
	}

	s.log.Infow("reminder sweep done", "overdue", len(overdue), "sent", sent)
	return nil
}

func (s *Scheduler) template(ctx context.Context) string {
	template, err := s.repo.GetSetting(ctx, TemplateSettingKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warnw("load reminder template failed", "error", err)
		}
		return DefaultTemplate
	}
	return template
}

// Message renders the reminder body for one debt.
func Message(template string, debt domain.DebtView) string {
	replacer := strings.NewReplacer(
		"{name}", debt.CustomerName,
		"{amount}", fmt.Sprintf("Rp%d", debt.Remaining),
		"{due}", debt.DueDate.Format("2006-01-02"),
	)
	return replacer.Replace(template)
}
