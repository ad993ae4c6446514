package fulfillment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(ordered, invoiced string) OrderLine {
	return OrderLine{
		QuantityOrdered:  decimal.RequireFromString(ordered),
		QuantityInvoiced: decimal.RequireFromString(invoiced),
	}
}

func invoice(t *testing.T, state InvoiceState, invType InvoiceType, amount string) Invoice {
	t.Helper()
	inv, err := NewInvoice("INV-TEST", state, invType, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return *inv
}

func TestClassify_FullyInvoiced(t *testing.T) {
	lines := []OrderLine{line("10", "10")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "1000")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagFullyInvoiced, result.Tag)
	assert.True(t, result.Percentage.Equal(decimal.NewFromInt(100)), "percentage = %s", result.Percentage)
	assert.False(t, result.NeedsAttention)
	assert.True(t, result.TotalInvoicedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.RemainingAmount.IsZero())
	assert.True(t, result.UpsellAmount.IsZero())
}

func TestClassify_DraftOnlyWithDriftFlag(t *testing.T) {
	lines := []OrderLine{line("10", "0")}
	invoices := []Invoice{invoice(t, InvoiceStateDraft, InvoiceTypeInvoice, "500")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagDraftOnly, result.Tag)
	assert.True(t, result.NeedsAttention, "draft_only while coarse status claims invoiced must flag drift")
}

func TestClassify_DraftOnlyWithoutDrift(t *testing.T) {
	lines := []OrderLine{line("10", "0")}
	invoices := []Invoice{invoice(t, InvoiceStateDraft, InvoiceTypeInvoice, "500")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusToInvoice, invoices)

	assert.Equal(t, StatusTagDraftOnly, result.Tag)
	assert.False(t, result.NeedsAttention)
}

func TestClassify_Upsell(t *testing.T) {
	lines := []OrderLine{line("10", "10")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "1200")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagUpsell, result.Tag)
	assert.True(t, result.UpsellAmount.Equal(decimal.NewFromInt(200)), "upsell = %s", result.UpsellAmount)
	assert.True(t, result.RemainingAmount.IsZero())
}

func TestClassify_CancelledWithDriftFlag(t *testing.T) {
	lines := []OrderLine{line("10", "0")}
	invoices := []Invoice{invoice(t, InvoiceStateCancelled, InvoiceTypeInvoice, "1000")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusToInvoice, invoices)

	assert.Equal(t, StatusTagCancelled, result.Tag)
	assert.True(t, result.NeedsAttention, "cancelled while coarse status is not none must flag drift")
}

func TestClassify_CancelledWithoutDrift(t *testing.T) {
	invoices := []Invoice{invoice(t, InvoiceStateCancelled, InvoiceTypeInvoice, "1000")}

	result := Classify([]OrderLine{line("10", "0")}, decimal.RequireFromString("1000"), CoarseStatusNone, invoices)

	assert.Equal(t, StatusTagCancelled, result.Tag)
	assert.False(t, result.NeedsAttention)
}

func TestClassify_NoInvoices(t *testing.T) {
	result := Classify([]OrderLine{line("10", "0")}, decimal.RequireFromString("1000"), CoarseStatusNone, nil)

	assert.Equal(t, StatusTagNotStarted, result.Tag)
	assert.True(t, result.Percentage.IsZero())
	assert.True(t, result.RemainingAmount.Equal(decimal.NewFromInt(1000)))
}

func TestClassify_Partial(t *testing.T) {
	lines := []OrderLine{line("10", "4")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "400")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusToInvoice, invoices)

	assert.Equal(t, StatusTagPartial, result.Tag)
	assert.True(t, result.Percentage.Equal(decimal.NewFromInt(40)))
	assert.True(t, result.RemainingAmount.Equal(decimal.NewFromInt(600)))
	assert.True(t, result.NeedsAttention, "posted invoices while coarse status claims to_invoice must flag inverse drift")
}

func TestClassify_PostedCoarseToInvoiceDrift(t *testing.T) {
	lines := []OrderLine{line("10", "10")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "1000")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusToInvoice, invoices)

	assert.Equal(t, StatusTagFullyInvoiced, result.Tag)
	assert.True(t, result.NeedsAttention)
}

func TestClassify_CreditNoteReducesInvoicedAmount(t *testing.T) {
	lines := []OrderLine{line("10", "10")}
	invoices := []Invoice{
		invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "1200"),
		invoice(t, InvoiceStatePosted, InvoiceTypeCreditNote, "200"),
	}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagFullyInvoiced, result.Tag, "credit note brings totals back within tolerance")
	assert.True(t, result.TotalInvoicedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.UpsellAmount.IsZero())
}

func TestClassify_ZeroOrderedQuantity(t *testing.T) {
	result := Classify(nil, decimal.Zero, CoarseStatusNone, nil)

	assert.True(t, result.Percentage.IsZero(), "percentage is defined as 0 when nothing is ordered")
	assert.Equal(t, StatusTagNotStarted, result.Tag)
}

func TestClassify_ThresholdTolerance(t *testing.T) {
	// 999/1000 quantities give 99.9 exactly; tolerance keeps it complete.
	lines := []OrderLine{line("1000", "999")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "999")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagFullyInvoiced, result.Tag)
}

func TestClassify_JustBelowThresholdIsPartial(t *testing.T) {
	lines := []OrderLine{line("1000", "990")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "990")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.Equal(t, StatusTagPartial, result.Tag)
}

func TestClassify_OverInvoicedQuantityClampsPercentage(t *testing.T) {
	lines := []OrderLine{line("10", "12")}
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "1000")}

	result := Classify(lines, decimal.RequireFromString("1000"), CoarseStatusInvoiced, invoices)

	assert.True(t, result.Percentage.Equal(decimal.NewFromInt(100)))
	assert.NotEmpty(t, result.Warnings)
}

func TestClassify_Deterministic(t *testing.T) {
	lines := []OrderLine{line("10", "4"), line("5", "5")}
	invoices := []Invoice{
		invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "400"),
		invoice(t, InvoiceStateDraft, InvoiceTypeInvoice, "100"),
	}
	total := decimal.RequireFromString("1500")

	first := Classify(lines, total, CoarseStatusToInvoice, invoices)
	for i := 0; i < 10; i++ {
		again := Classify(lines, total, CoarseStatusToInvoice, invoices)
		assert.Equal(t, first.Tag, again.Tag)
		assert.True(t, first.Percentage.Equal(again.Percentage))
		assert.Equal(t, first.NeedsAttention, again.NeedsAttention)
	}
}

func TestClassify_PercentageMonotonicity(t *testing.T) {
	invoices := []Invoice{invoice(t, InvoiceStatePosted, InvoiceTypeInvoice, "100")}
	previous := decimal.NewFromInt(-1)
	for invoiced := 0; invoiced <= 10; invoiced++ {
		lines := []OrderLine{{
			QuantityOrdered:  decimal.NewFromInt(10),
			QuantityInvoiced: decimal.NewFromInt(int64(invoiced)),
		}}
		result := Classify(lines, decimal.NewFromInt(1000), CoarseStatusNone, invoices)
		assert.True(t, result.Percentage.GreaterThanOrEqual(previous),
			"percentage must not decrease as invoiced quantity grows: %s < %s", result.Percentage, previous)
		previous = result.Percentage
	}
}
