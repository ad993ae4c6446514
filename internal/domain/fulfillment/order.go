package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/reconciler/internal/domain/shared"
)

// OrderStatus represents the lifecycle state of a commercial order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusDone      OrderStatus = "DONE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusConfirmed, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether orders in this state participate in link matching
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusDraft, OrderStatusConfirmed, OrderStatusDone:
		return true
	}
	return false
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// CoarseStatus is the externally maintained invoicing summary on an order.
// It can lag behind reality; the classifier only reads it to flag drift.
type CoarseStatus string

const (
	CoarseStatusNone      CoarseStatus = "none"
	CoarseStatusToInvoice CoarseStatus = "to_invoice"
	CoarseStatusInvoiced  CoarseStatus = "invoiced"
)

// IsValid checks if the coarse status is valid
func (s CoarseStatus) IsValid() bool {
	switch s {
	case CoarseStatusNone, CoarseStatusToInvoice, CoarseStatusInvoiced:
		return true
	}
	return false
}

// OrderLine is a line item tracking ordered versus invoiced quantity
type OrderLine struct {
	ID               uuid.UUID
	ProductName      string
	QuantityOrdered  decimal.Decimal
	QuantityInvoiced decimal.Decimal
}

// Order is the aggregate root the reconciliation engine keeps consistent.
// LinkedInvoiceIDs is the authoritative link set maintained by external
// collaborators; MatchedInvoiceID is the single repaired link this engine
// may set, at most once, and never overwrite.
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber string
	Status      OrderStatus
	Lines       []OrderLine
	TotalAmount decimal.Decimal

	LinkedInvoiceIDs []uuid.UUID
	MatchedInvoiceID *uuid.UUID
	MatchedVia       MatchStep

	StatusTag             StatusTag
	FulfillmentPercentage decimal.Decimal
	NeedsAttention        bool
	TotalInvoicedAmount   decimal.Decimal
	RemainingAmount       decimal.Decimal
	UpsellAmount          decimal.Decimal

	CoarseStatus CoarseStatus

	DealID      *uuid.UUID
	ProjectID   *uuid.UUID
	UnitID      *uuid.UUID
	BuyerID     *uuid.UUID
	BookingDate *time.Time

	// Content hash of the reachable invoice set at the last successful
	// classification. Unchanged hash means classification is skipped.
	LastReconciledHash string
}

// NewOrder creates an order with validated lines
func NewOrder(orderNumber string, status OrderStatus, lines []OrderLine, totalAmount decimal.Decimal, coarse CoarseStatus) (*Order, error) {
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order number is required")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_ORDER", "Invalid order status: "+string(status))
	}
	if totalAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order total cannot be negative")
	}
	if coarse == "" {
		coarse = CoarseStatusNone
	}
	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		Status:            status,
		Lines:             lines,
		TotalAmount:       totalAmount,
		StatusTag:         StatusTagNotStarted,
		CoarseStatus:      coarse,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate rejects malformed records before they reach the classifier
func (o *Order) Validate() error {
	if o.TotalAmount.IsNegative() {
		return shared.ErrInvalidInput
	}
	for _, line := range o.Lines {
		if line.QuantityOrdered.IsNegative() || line.QuantityInvoiced.IsNegative() {
			return shared.ErrInvalidInput
		}
	}
	return nil
}

// ReachableInvoiceIDs returns the deduplicated union of the authoritative
// link set and the repaired matched link
func (o *Order) ReachableInvoiceIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.LinkedInvoiceIDs)+1)
	ids := make([]uuid.UUID, 0, len(o.LinkedInvoiceIDs)+1)
	for _, id := range o.LinkedInvoiceIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if o.MatchedInvoiceID != nil {
		if _, ok := seen[*o.MatchedInvoiceID]; !ok {
			ids = append(ids, *o.MatchedInvoiceID)
		}
	}
	return ids
}

// MatchableKey returns the proxy-key value object for this order
func (o *Order) MatchableKey() MatchableKey {
	return MatchableKey{
		DealID:      o.DealID,
		ProjectID:   o.ProjectID,
		UnitID:      o.UnitID,
		BuyerID:     o.BuyerID,
		BookingDate: o.BookingDate,
	}
}

// SummaryEquals reports whether the stored fulfillment summary already
// matches a classification result
func (o *Order) SummaryEquals(result ClassificationResult) bool {
	return o.StatusTag == result.Tag &&
		o.NeedsAttention == result.NeedsAttention &&
		o.FulfillmentPercentage.Equal(result.Percentage) &&
		o.TotalInvoicedAmount.Equal(result.TotalInvoicedAmount) &&
		o.RemainingAmount.Equal(result.RemainingAmount) &&
		o.UpsellAmount.Equal(result.UpsellAmount)
}

// ApplyClassification writes a classification result and the hash it was
// derived from onto the order. Returns true when the summary changed.
func (o *Order) ApplyClassification(result ClassificationResult, invoiceSetHash string) bool {
	changed := !o.SummaryEquals(result)
	o.StatusTag = result.Tag
	o.FulfillmentPercentage = result.Percentage
	o.NeedsAttention = result.NeedsAttention
	o.TotalInvoicedAmount = result.TotalInvoicedAmount
	o.RemainingAmount = result.RemainingAmount
	o.UpsellAmount = result.UpsellAmount
	o.LastReconciledHash = invoiceSetHash
	o.UpdatedAt = time.Now()
	return changed
}
