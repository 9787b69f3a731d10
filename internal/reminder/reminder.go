package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"shopdesk/backend/internal/config"
	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
)

// Sweeper reports the sales whose commitment date has passed.
type Sweeper interface {
	SweepOverdueDues(ctx context.Context) ([]domain.OverdueDue, error)
}

type Notifier interface {
	NotifyOverdue(ctx context.Context, dues []domain.OverdueDue) error
}

type Scheduler struct {
	cron     *gocron.Scheduler
	sweeper  Sweeper
	notifier Notifier
	logger   *logrus.Logger
	timeout  time.Duration
}

func NewScheduler(sweeper Sweeper, notifier Notifier, loc *time.Location, logger *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:     cron,
		sweeper:  sweeper,
		notifier: notifier,
		logger:   logger,
		timeout:  time.Minute,
	}
}

// Start schedules the sweep on a five-field cron expression and runs the
// scheduler in the background.
func (s *Scheduler) Start(expr string) error {
	if _, err := s.cron.Cron(expr).Do(s.runJob); err != nil {
		return fmt.Errorf("schedule overdue sweep %q: %w", expr, err)
	}
	s.cron.StartAsync()
	s.logger.WithFields(logrus.Fields{"module": "reminder", "cron": expr}).Info("overdue sweep scheduled")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		logging.LogError(s.logger, "reminder", "runJob", "overdue sweep", nil, err)
	}
}

// RunOnce sweeps the ledger and hands any overdue dues to the notifier.
// It returns how many dues were overdue.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	dues, err := s.sweeper.SweepOverdueDues(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep overdue dues: %w", err)
	}
	if len(dues) == 0 {
		return 0, nil
	}
	if err := s.notifier.NotifyOverdue(ctx, dues); err != nil {
		return len(dues), fmt.Errorf("notify overdue dues: %w", err)
	}
	return len(dues), nil
}

// LogNotifier writes one warning per overdue due.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (n LogNotifier) NotifyOverdue(_ context.Context, dues []domain.OverdueDue) error {
	for _, due := range dues {
		n.Logger.WithFields(logrus.Fields{
			"module":          "reminder",
			"sale_id":         due.SaleID,
			"customer_name":   due.CustomerName,
			"customer_phone":  due.CustomerPhone,
			"due_amount":      due.DueAmount.StringFixed(2),
			"commitment_date": due.CommitmentDate,
			"days_overdue":    due.DaysOverdue,
		}).Warn("due payment overdue")
	}
	return nil
}

// MailNotifier sends a single digest of all overdue dues.
type MailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     []string
}

func NewMailNotifier(cfg config.SMTPConfig, to []string) *MailNotifier {
	return &MailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     to,
	}
}

func (n *MailNotifier) NotifyOverdue(_ context.Context, dues []domain.OverdueDue) error {
	if len(n.to) == 0 {
		return fmt.Errorf("no reminder recipients configured")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", digestSubject(dues))
	m.SetBody("text/plain", digestBody(dues))
	return n.dialer.DialAndSend(m)
}

func digestSubject(dues []domain.OverdueDue) string {
	if len(dues) == 1 {
		return "1 overdue due payment"
	}
	return fmt.Sprintf("%d overdue due payments", len(dues))
}

func digestBody(dues []domain.OverdueDue) string {
	var b strings.Builder
	b.WriteString("The following customers have passed their commitment date:\n\n")
	for _, due := range dues {
		fmt.Fprintf(&b, "- %s (%s): %s due since %s, %d days overdue [sale %s]\n",
			due.CustomerName,
			due.CustomerPhone,
			due.DueAmount.StringFixed(2),
			due.CommitmentDate,
			due.DaysOverdue,
			due.SaleID,
		)
	}
	return b.String()
}
