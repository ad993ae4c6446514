package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/reconciler/internal/domain/shared"
)

// InvoiceState represents the lifecycle state of a financial document
type InvoiceState string

const (
	InvoiceStateDraft     InvoiceState = "DRAFT"
	InvoiceStatePosted    InvoiceState = "POSTED"
	InvoiceStateCancelled InvoiceState = "CANCELLED"
)

// IsValid checks if the invoice state is valid
func (s InvoiceState) IsValid() bool {
	switch s {
	case InvoiceStateDraft, InvoiceStatePosted, InvoiceStateCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceState) String() string {
	return string(s)
}

// InvoiceType distinguishes debit from credit documents
type InvoiceType string

const (
	InvoiceTypeInvoice    InvoiceType = "INVOICE"
	InvoiceTypeCreditNote InvoiceType = "CREDIT_NOTE"
)

// IsValid checks if the invoice type is valid
func (t InvoiceType) IsValid() bool {
	return t == InvoiceTypeInvoice || t == InvoiceTypeCreditNote
}

// Invoice is a financial document potentially linked to an order. Proxy keys
// are mirrored from the order context at creation time and may be partially
// absent; the matcher works with whatever subset is present.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string
	State         InvoiceState
	Type          InvoiceType
	AmountTotal   decimal.Decimal

	LinkedOrderID   *uuid.UUID
	ManuallyMatched bool

	DealID      *uuid.UUID
	ProjectID   *uuid.UUID
	UnitID      *uuid.UUID
	BuyerID     *uuid.UUID
	BookingDate *time.Time
}

// NewInvoice creates an invoice with validated state and type
func NewInvoice(invoiceNumber string, state InvoiceState, invType InvoiceType, amountTotal decimal.Decimal) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice number is required")
	}
	if !state.IsValid() {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invalid invoice state: "+string(state))
	}
	if !invType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invalid invoice type: "+string(invType))
	}
	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		State:             state,
		Type:              invType,
		AmountTotal:       amountTotal,
	}, nil
}

// Validate rejects malformed records before they reach the matcher
func (i *Invoice) Validate() error {
	if !i.State.IsValid() || !i.Type.IsValid() {
		return shared.ErrInvalidInput
	}
	if i.AmountTotal.IsNegative() {
		return shared.ErrInvalidInput
	}
	return nil
}

// IsMatchCandidate reports whether the automated matcher may consider this
// invoice: no authoritative link, not manually matched, not cancelled
func (i *Invoice) IsMatchCandidate() bool {
	return i.LinkedOrderID == nil && !i.ManuallyMatched && i.State != InvoiceStateCancelled
}

// MatchableKey extracts the proxy-key value object once, so the cascade
// never reaches back into the record mid-evaluation
func (i *Invoice) MatchableKey() MatchableKey {
	return MatchableKey{
		DealID:      i.DealID,
		ProjectID:   i.ProjectID,
		UnitID:      i.UnitID,
		BuyerID:     i.BuyerID,
		BookingDate: i.BookingDate,
	}
}
