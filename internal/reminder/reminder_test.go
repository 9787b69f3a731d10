package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"shopdesk/backend/internal/config"
	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/service"
	"shopdesk/backend/internal/store/memory"
)

type sweeperStub struct {
	dues []domain.OverdueDue
	err  error
}

func (s sweeperStub) SweepOverdueDues(context.Context) ([]domain.OverdueDue, error) {
	return s.dues, s.err
}

type notifierStub struct {
	calls int
	got   []domain.OverdueDue
	err   error
}

func (n *notifierStub) NotifyOverdue(_ context.Context, dues []domain.OverdueDue) error {
	n.calls++
	n.got = dues
	return n.err
}

func sampleDue() domain.OverdueDue {
	return domain.OverdueDue{
		SaleID:         "sale-1",
		CustomerName:   "Rahim",
		CustomerPhone:  "+8801712345678",
		DueAmount:      decimal.NewFromInt(500),
		CommitmentDate: "2025-01-10",
		DaysOverdue:    5,
	}
}

func TestRunOnceSkipsNotifierWhenNothingOverdue(t *testing.T) {
	notifier := &notifierStub{}
	s := NewScheduler(sweeperStub{}, notifier, time.UTC, nil)

	n, err := s.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected no overdue dues, got %d %v", n, err)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected notifier untouched, got %d calls", notifier.calls)
	}
}

func TestRunOncePropagatesFailures(t *testing.T) {
	boom := errors.New("boom")

	s := NewScheduler(sweeperStub{err: boom}, &notifierStub{}, time.UTC, nil)
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sweep error, got %v", err)
	}

	s = NewScheduler(sweeperStub{dues: []domain.OverdueDue{sampleDue()}}, &notifierStub{err: boom}, time.UTC, nil)
	n, err := s.RunOnce(context.Background())
	if !errors.Is(err, boom) || n != 1 {
		t.Fatalf("expected notify error with one due, got %d %v", n, err)
	}
}

func TestRunOnceNotifiesOverdueSales(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	if _, err := repo.CreateProduct(ctx, domain.Product{ID: "p1", Category: "Neckband", Brand: "Oraimo", ModelName: "Loop", Price: decimal.NewFromInt(100), Quantity: 5}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := repo.RecordSaleTransaction(ctx, domain.SaleTransaction{
		CustomerName:   "Rahim",
		CustomerPhone:  "+8801712345678",
		Date:           "2025-01-01",
		PaidAmount:     decimal.NewFromInt(50),
		DueAmount:      decimal.NewFromInt(70),
		CommitmentDate: "2025-01-10",
		Items: []domain.SaleItem{{
			ProductID:   "p1",
			ProductName: "Loop",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(120),
			BuyingPrice: decimal.NewFromInt(100),
			Total:       decimal.NewFromInt(120),
		}},
	}); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	svc := service.New(repo, service.Options{Now: func() time.Time {
		return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	}})
	notifier := &notifierStub{}
	s := NewScheduler(svc, notifier, time.UTC, nil)

	n, err := s.RunOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one overdue due, got %d %v", n, err)
	}
	if notifier.got[0].CustomerName != "Rahim" || notifier.got[0].DaysOverdue != 5 {
		t.Fatalf("unexpected overdue due %+v", notifier.got[0])
	}
}

func TestStartRejectsBadCronExpression(t *testing.T) {
	s := NewScheduler(sweeperStub{}, &notifierStub{}, time.UTC, nil)
	defer s.Stop()

	if err := s.Start("every day please"); err == nil {
		t.Fatalf("expected invalid cron expression to be rejected")
	}
}

func TestLogNotifierWritesOneEntryPerDue(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	second := sampleDue()
	second.SaleID = "sale-2"

	if err := (LogNotifier{Logger: logger}).NotifyOverdue(context.Background(), []domain.OverdueDue{sampleDue(), second}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[1].Level != logrus.WarnLevel || entries[1].Data["sale_id"] != "sale-2" {
		t.Fatalf("unexpected entry %+v", entries[1].Data)
	}
}

func TestDigestListsEveryDue(t *testing.T) {
	dues := []domain.OverdueDue{sampleDue(), sampleDue()}
	if got := digestSubject(dues); got != "2 overdue due payments" {
		t.Fatalf("unexpected subject %q", got)
	}
	body := digestBody(dues)
	if strings.Count(body, "Rahim (+8801712345678): 500.00 due since 2025-01-10, 5 days overdue") != 2 {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestMailNotifierNeedsRecipients(t *testing.T) {
	n := NewMailNotifier(config.SMTPConfig{Host: "localhost", Port: 2525}, nil)
	if err := n.NotifyOverdue(context.Background(), []domain.OverdueDue{sampleDue()}); err == nil {
		t.Fatalf("expected missing recipients to be reported")
	}
}
