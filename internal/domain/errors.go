package domain

import "errors"

type ErrorCode string

const (
	CodeProductNotFound        ErrorCode = "product_not_found"
	CodeInvalidQuantity        ErrorCode = "invalid_quantity"
	CodeInsufficientStock      ErrorCode = "insufficient_stock"
	CodePriceRequired          ErrorCode = "price_required"
	CodeInvalidPrice           ErrorCode = "invalid_price"
	CodePriceBelowCost         ErrorCode = "price_below_cost"
	CodeCustomerNameRequired   ErrorCode = "customer_name_required"
	CodeEmptyCart              ErrorCode = "empty_cart"
	CodePhoneRequiredForDue    ErrorCode = "phone_required_for_due"
	CodeInvalidPhone           ErrorCode = "invalid_phone"
	CodeInvalidPaidAmount      ErrorCode = "invalid_paid_amount"
	CodeCommitmentDateRequired ErrorCode = "commitment_date_required"
	CodeInvalidDate            ErrorCode = "invalid_date"
	CodeSaleNotFound           ErrorCode = "sale_not_found"
	CodeInvalidAmount          ErrorCode = "invalid_amount"
	CodeAmountExceedsDue       ErrorCode = "amount_exceeds_due"
	CodeInvalidProduct         ErrorCode = "invalid_product"
	CodeInvalidRequest         ErrorCode = "invalid_request"
)

// ValidationError reports a failed precondition. Nothing has been written
// when one is returned. errors.Is matches on Code, so the sentinels below
// can be compared against errors carrying a different message or field.
type ValidationError struct {
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// NotFound reports whether the error names a missing entity.
func (e *ValidationError) NotFound() bool {
	return e.Code == CodeProductNotFound || e.Code == CodeSaleNotFound
}

func Invalid(code ErrorCode, field string, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// AsValidation unwraps err into a ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var (
	ErrProductNotFound        = Invalid(CodeProductNotFound, "product_id", "product not found")
	ErrInvalidQuantity        = Invalid(CodeInvalidQuantity, "quantity", "quantity must be at least 1")
	ErrInsufficientStock      = Invalid(CodeInsufficientStock, "quantity", "quantity exceeds available stock")
	ErrPriceRequired          = Invalid(CodePriceRequired, "unit_price", "unit price is required")
	ErrInvalidPrice           = Invalid(CodeInvalidPrice, "unit_price", "unit price must not be negative")
	ErrPriceBelowCost         = Invalid(CodePriceBelowCost, "unit_price", "unit price is below the buying price")
	ErrCustomerNameRequired   = Invalid(CodeCustomerNameRequired, "customer_name", "customer name is required")
	ErrEmptyCart              = Invalid(CodeEmptyCart, "lines", "cart is empty")
	ErrPhoneRequiredForDue    = Invalid(CodePhoneRequiredForDue, "customer_phone", "customer phone is required when a due is recorded")
	ErrInvalidPhone           = Invalid(CodeInvalidPhone, "customer_phone", "customer phone is not a valid number")
	ErrInvalidPaidAmount      = Invalid(CodeInvalidPaidAmount, "paid_amount", "paid amount must be between 0 and the sale total")
	ErrCommitmentDateRequired = Invalid(CodeCommitmentDateRequired, "commitment_date", "commitment date is required while a due remains")
	ErrInvalidDate            = Invalid(CodeInvalidDate, "date", "date must be formatted as YYYY-MM-DD")
	ErrSaleNotFound           = Invalid(CodeSaleNotFound, "sale_id", "sale not found")
	ErrInvalidAmount          = Invalid(CodeInvalidAmount, "amount", "payment amount must be greater than 0")
	ErrAmountExceedsDue       = Invalid(CodeAmountExceedsDue, "amount", "payment amount exceeds the outstanding due")
	ErrInvalidProduct         = Invalid(CodeInvalidProduct, "", "invalid product")
)
