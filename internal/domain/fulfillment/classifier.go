package fulfillment

import (
	"github.com/shopspring/decimal"
)

// StatusTag is the derived fulfillment status of an order
type StatusTag string

const (
	StatusTagNotStarted    StatusTag = "not_started"
	StatusTagFullyInvoiced StatusTag = "fully_invoiced"
	StatusTagPartial       StatusTag = "partial"
	StatusTagDraftOnly     StatusTag = "draft_only"
	StatusTagCancelled     StatusTag = "cancelled"
	StatusTagUpsell        StatusTag = "upsell"
)

// IsValid checks if the status tag is valid
func (t StatusTag) IsValid() bool {
	switch t {
	case StatusTagNotStarted, StatusTagFullyInvoiced, StatusTagPartial,
		StatusTagDraftOnly, StatusTagCancelled, StatusTagUpsell:
		return true
	}
	return false
}

// Comparisons near boundary values (the 99.9 completion threshold, exact
// equality of totals) use a fixed relative tolerance so repeated runs over
// the same data never flap between tags.
var (
	relativeTolerance   = decimal.RequireFromString("0.0001")
	completionThreshold = decimal.RequireFromString("99.9")
	hundred             = decimal.NewFromInt(100)
)

// ClassificationResult is the full derived fulfillment summary for an order
type ClassificationResult struct {
	Tag                 StatusTag
	Percentage          decimal.Decimal
	TotalInvoicedAmount decimal.Decimal
	RemainingAmount     decimal.Decimal
	UpsellAmount        decimal.Decimal
	NeedsAttention      bool
	Warnings            []string
}

// Classify derives the fulfillment summary for an order from its lines and
// the invoices reachable from it. Pure: no I/O, deterministic for fixed
// input. Callers must reject malformed records (negative quantities or
// amounts) before invoking; see Order.Validate and Invoice.Validate.
func Classify(lines []OrderLine, orderTotal decimal.Decimal, coarse CoarseStatus, invoices []Invoice) ClassificationResult {
	result := ClassificationResult{
		Tag:             StatusTagNotStarted,
		Percentage:      decimal.Zero,
		RemainingAmount: orderTotal,
		UpsellAmount:    decimal.Zero,
	}

	result.Percentage = fulfillmentPercentage(lines, &result.Warnings)

	var postedInvoices, draft, cancelled, postedCreditNotes []Invoice
	for _, inv := range invoices {
		switch {
		case inv.State == InvoiceStateCancelled:
			cancelled = append(cancelled, inv)
		case inv.State == InvoiceStateDraft:
			draft = append(draft, inv)
		case inv.Type == InvoiceTypeCreditNote:
			postedCreditNotes = append(postedCreditNotes, inv)
		default:
			postedInvoices = append(postedInvoices, inv)
		}
	}

	totalInvoiced := decimal.Zero
	for _, inv := range postedInvoices {
		totalInvoiced = totalInvoiced.Add(inv.AmountTotal)
	}
	for _, cn := range postedCreditNotes {
		totalInvoiced = totalInvoiced.Sub(cn.AmountTotal)
	}
	result.TotalInvoicedAmount = totalInvoiced

	remaining := orderTotal.Sub(totalInvoiced)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	result.RemainingAmount = remaining

	switch {
	case len(invoices) == 0:
		result.Tag = StatusTagNotStarted
	case len(postedInvoices) > 0 && geqWithTolerance(result.Percentage, completionThreshold):
		result.Tag = StatusTagFullyInvoiced
	case len(postedInvoices) > 0 && result.Percentage.IsPositive():
		result.Tag = StatusTagPartial
	case len(draft) > 0 && len(postedInvoices) == 0:
		result.Tag = StatusTagDraftOnly
	case len(cancelled) > 0 && len(postedInvoices) == 0 && len(draft) == 0 && len(postedCreditNotes) == 0:
		result.Tag = StatusTagCancelled
	default:
		result.Tag = StatusTagNotStarted
	}

	// Over-invoicing beyond rounding tolerance overrides the quantity-based tag.
	if exceedsWithTolerance(totalInvoiced, orderTotal) {
		result.Tag = StatusTagUpsell
		result.UpsellAmount = totalInvoiced.Sub(orderTotal)
	}

	result.NeedsAttention = detectDrift(result.Tag, len(postedInvoices) > 0, coarse)

	return result
}

// fulfillmentPercentage computes invoiced/ordered quantity across lines as a
// percentage, defined as 0 when nothing is ordered and clamped to [0, 100]
func fulfillmentPercentage(lines []OrderLine, warnings *[]string) decimal.Decimal {
	totalOrdered := decimal.Zero
	totalInvoiced := decimal.Zero
	for _, line := range lines {
		totalOrdered = totalOrdered.Add(line.QuantityOrdered)
		totalInvoiced = totalInvoiced.Add(line.QuantityInvoiced)
	}
	if totalOrdered.IsZero() {
		return decimal.Zero
	}
	pct := totalInvoiced.Div(totalOrdered).Mul(hundred)
	if pct.GreaterThan(hundred) {
		*warnings = append(*warnings, "invoiced quantity exceeds ordered quantity")
		return hundred
	}
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}

// detectDrift flags disagreement between the derived tag and the externally
// maintained coarse status
func detectDrift(tag StatusTag, hasPosted bool, coarse CoarseStatus) bool {
	if tag == StatusTagDraftOnly && coarse == CoarseStatusInvoiced {
		return true
	}
	if hasPosted && coarse == CoarseStatusToInvoice {
		return true
	}
	if tag == StatusTagCancelled && coarse != CoarseStatusNone {
		return true
	}
	return false
}

// geqWithTolerance reports a >= threshold, allowing the relative tolerance
// below the threshold
func geqWithTolerance(a, threshold decimal.Decimal) bool {
	margin := threshold.Mul(relativeTolerance)
	return a.GreaterThanOrEqual(threshold.Sub(margin))
}

// exceedsWithTolerance reports a > b by more than the relative tolerance of b
func exceedsWithTolerance(a, b decimal.Decimal) bool {
	margin := b.Abs().Mul(relativeTolerance)
	return a.GreaterThan(b.Add(margin))
}
