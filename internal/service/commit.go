package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shopdesk/backend/internal/cart"
	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/store"
)

type paymentTerms struct {
	phone          string
	paid           decimal.Decimal
	due            decimal.Decimal
	commitmentDate string
}

// BuildCart replays lines through a fresh cart against the current catalog.
// The first failing line is reported with its index in the error field.
func (s *Service) BuildCart(ctx context.Context, lines []domain.CartLineInput) (*cart.Cart, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	c := cart.New(s.cartPolicy)
	for i, line := range lines {
		if err := c.AddLine(st.catalog, strings.TrimSpace(line.ProductID), line.Quantity, line.UnitPrice); err != nil {
			return nil, lineError(i, err)
		}
	}
	return c, nil
}

func (s *Service) ValidateCart(ctx context.Context, lines []domain.CartLineInput) (domain.CartResponse, error) {
	if len(lines) == 0 {
		return domain.CartResponse{}, domain.ErrEmptyCart
	}
	c, err := s.BuildCart(ctx, lines)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return domain.CartResponse{Lines: c.Lines(), Total: c.Total()}, nil
}

// CommitSale validates the request locally and then persists the sale and
// its stock decrements in one storage call. Nothing is retried.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.SaleRecord, error) {
	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		return domain.SaleRecord{}, domain.ErrCustomerNameRequired
	}
	if len(req.Lines) == 0 {
		return domain.SaleRecord{}, domain.ErrEmptyCart
	}

	c, err := s.BuildCart(ctx, req.Lines)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	total := c.Total()

	terms, err := s.resolvePaymentTerms(total, req)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.Today()
	} else if err := parseDate(date, "date"); err != nil {
		return domain.SaleRecord{}, err
	}

	record, err := s.repo.RecordSaleTransaction(ctx, domain.SaleTransaction{
		CustomerName:   customer,
		CustomerPhone:  terms.phone,
		Date:           date,
		Timestamp:      s.now().UnixMilli(),
		PaidAmount:     terms.paid,
		DueAmount:      terms.due,
		CommitmentDate: terms.commitmentDate,
		Items:          c.Lines(),
	})
	if err != nil {
		outcome := "storage_error"
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			outcome = "insufficient_stock"
		case errors.Is(err, store.ErrNotFound):
			outcome = "product_missing"
			err = fmt.Errorf("%w: %w", ErrCatalogChanged, err)
		}
		s.recorder.SaleCommit(outcome)
		logging.LogError(s.logger, "service", "CommitSale", "record sale transaction", logrus.Fields{
			"customer": customer,
			"lines":    c.Len(),
			"total":    total.String(),
		}, err)
		return domain.SaleRecord{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	s.recorder.SaleCommit("ok")
	s.logAudit(ctx, "sale_commit", record.ID, logrus.Fields{
		"total": record.TotalAmount.String(),
		"paid":  record.PaidAmount.String(),
		"due":   record.DueAmount.String(),
		"lines": len(record.Items),
	})
	s.afterMutation(ctx, "sale_commit")
	return *record, nil
}

// resolvePaymentTerms settles paid, due and commitment date for a cart
// total. A sale without a requested due is paid in full.
func (s *Service) resolvePaymentTerms(total decimal.Decimal, req domain.CommitSaleRequest) (paymentTerms, error) {
	phone := strings.TrimSpace(req.CustomerPhone)
	if req.PaidAmount != nil && !domain.IsMoney(*req.PaidAmount) {
		return paymentTerms{}, domain.Invalid(domain.CodeInvalidPaidAmount, "paid_amount", "paid amount must have at most 2 decimal places")
	}
	if req.DueAmount != nil && !domain.IsMoney(*req.DueAmount) {
		return paymentTerms{}, domain.Invalid(domain.CodeInvalidPaidAmount, "due_amount", "due amount must have at most 2 decimal places")
	}

	dueRequested := (req.DueAmount != nil && req.DueAmount.IsPositive()) ||
		(req.PaidAmount != nil && req.PaidAmount.LessThan(total))
	if !dueRequested {
		if req.PaidAmount != nil && req.PaidAmount.GreaterThan(total) {
			return paymentTerms{}, domain.ErrInvalidPaidAmount
		}
		return paymentTerms{phone: phone, paid: total, due: decimal.Zero}, nil
	}

	if phone == "" {
		return paymentTerms{}, domain.ErrPhoneRequiredForDue
	}
	phone, err := s.normalizePhone(phone)
	if err != nil {
		return paymentTerms{}, err
	}

	var paid decimal.Decimal
	if req.PaidAmount != nil {
		paid = *req.PaidAmount
	} else {
		paid = total.Sub(*req.DueAmount)
	}
	if paid.IsNegative() || paid.GreaterThan(total) {
		return paymentTerms{}, domain.ErrInvalidPaidAmount
	}
	due := total.Sub(paid)
	if req.PaidAmount != nil && req.DueAmount != nil && !req.DueAmount.Equal(due) {
		return paymentTerms{}, domain.Invalid(domain.CodeInvalidPaidAmount, "due_amount", "paid and due amounts must add up to the sale total")
	}

	terms := paymentTerms{phone: phone, paid: paid, due: due}
	if due.IsPositive() {
		commitment := strings.TrimSpace(req.CommitmentDate)
		if commitment == "" {
			return paymentTerms{}, domain.ErrCommitmentDateRequired
		}
		if err := parseDate(commitment, "commitment_date"); err != nil {
			return paymentTerms{}, err
		}
		terms.commitmentDate = commitment
	}
	return terms, nil
}

func lineError(index int, err error) error {
	ve, ok := domain.AsValidation(err)
	if !ok {
		return err
	}
	return &domain.ValidationError{
		Code:    ve.Code,
		Field:   fmt.Sprintf("lines[%d].%s", index, ve.Field),
		Message: ve.Message,
	}
}
