package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/store"
)

// ApplyPayment records a payment against a sale's outstanding due. The
// sale is read from storage, and the write only lands if no other payment
// changed the paid amount in between.
func (s *Service) ApplyPayment(ctx context.Context, saleID string, req domain.PaymentRequest) (domain.SaleRecord, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleRecord{}, domain.ErrSaleNotFound
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleRecord{}, domain.ErrSaleNotFound
		}
		return domain.SaleRecord{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	if !req.Amount.IsPositive() {
		return domain.SaleRecord{}, domain.ErrInvalidAmount
	}
	if !domain.IsMoney(req.Amount) {
		return domain.SaleRecord{}, domain.Invalid(domain.CodeInvalidAmount, "amount", "payment amount must have at most 2 decimal places")
	}
	if req.Amount.GreaterThan(sale.DueAmount) {
		return domain.SaleRecord{}, domain.ErrAmountExceedsDue
	}

	newPaid := sale.PaidAmount.Add(req.Amount)
	newDue := decimal.Max(decimal.Zero, sale.TotalAmount.Sub(newPaid))

	commitment := ""
	if newDue.IsPositive() {
		commitment = strings.TrimSpace(req.CommitmentDate)
		if commitment == "" {
			return domain.SaleRecord{}, domain.ErrCommitmentDateRequired
		}
		if err := parseDate(commitment, "commitment_date"); err != nil {
			return domain.SaleRecord{}, err
		}
	}

	updated, err := s.repo.UpdateSalePayment(ctx, domain.PaymentUpdate{
		SaleID:         sale.ID,
		ExpectedPaid:   sale.PaidAmount,
		PaidAmount:     newPaid,
		DueAmount:      newDue,
		CommitmentDate: commitment,
	})
	if err != nil {
		outcome := "storage_error"
		if errors.Is(err, store.ErrStaleRecord) {
			outcome = "stale"
		}
		s.recorder.DuePayment(outcome)
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleRecord{}, domain.ErrSaleNotFound
		}
		logging.LogError(s.logger, "service", "ApplyPayment", "update sale payment", logrus.Fields{
			"sale_id": sale.ID,
			"amount":  req.Amount.String(),
		}, err)
		return domain.SaleRecord{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	s.recorder.DuePayment("ok")
	s.logAudit(ctx, "due_payment", updated.ID, logrus.Fields{
		"amount": req.Amount.String(),
		"paid":   updated.PaidAmount.String(),
		"due":    updated.DueAmount.String(),
	})
	s.afterMutation(ctx, "due_payment")
	return *updated, nil
}
