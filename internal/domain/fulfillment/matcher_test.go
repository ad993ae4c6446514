package fulfillment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, number string) *Order {
	t.Helper()
	order, err := NewOrder(number, OrderStatusConfirmed, nil, decimal.NewFromInt(1000), CoarseStatusNone)
	require.NoError(t, err)
	return order
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func TestMatchOrder_DealIDWins(t *testing.T) {
	dealID := uuid.New()
	order := newTestOrder(t, "SO-001")
	order.DealID = uuidPtr(dealID)

	result := MatchOrder(MatchableKey{DealID: uuidPtr(dealID)}, []Order{*order})

	require.NotNil(t, result)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, MatchStepDealID, result.Step)
}

func TestMatchOrder_ExactStepBeatsLooserStep(t *testing.T) {
	// Invoice has no deal id but carries project+unit and project+buyer.
	// Order X satisfies step 2 (project+unit), order Y only step 3
	// (project+buyer). The cascade must stop at step 2 and return X.
	projectID := uuid.New()
	unitID := uuid.New()
	buyerID := uuid.New()

	orderX := newTestOrder(t, "SO-X")
	orderX.ProjectID = uuidPtr(projectID)
	orderX.UnitID = uuidPtr(unitID)

	orderY := newTestOrder(t, "SO-Y")
	orderY.ProjectID = uuidPtr(projectID)
	orderY.BuyerID = uuidPtr(buyerID)

	key := MatchableKey{
		ProjectID: uuidPtr(projectID),
		UnitID:    uuidPtr(unitID),
		BuyerID:   uuidPtr(buyerID),
	}
	result := MatchOrder(key, []Order{*orderY, *orderX})

	require.NotNil(t, result)
	assert.Equal(t, orderX.ID, result.OrderID)
	assert.Equal(t, MatchStepProjectUnit, result.Step)
}

func TestMatchOrder_DealIDBeatsProjectBuyer(t *testing.T) {
	dealID := uuid.New()
	projectID := uuid.New()
	buyerID := uuid.New()

	dealOrder := newTestOrder(t, "SO-DEAL")
	dealOrder.DealID = uuidPtr(dealID)

	proxyOrder := newTestOrder(t, "SO-PROXY")
	proxyOrder.ProjectID = uuidPtr(projectID)
	proxyOrder.BuyerID = uuidPtr(buyerID)

	key := MatchableKey{
		DealID:    uuidPtr(dealID),
		ProjectID: uuidPtr(projectID),
		BuyerID:   uuidPtr(buyerID),
	}
	result := MatchOrder(key, []Order{*proxyOrder, *dealOrder})

	require.NotNil(t, result)
	assert.Equal(t, dealOrder.ID, result.OrderID)
	assert.Equal(t, MatchStepDealID, result.Step)
}

func TestMatchOrder_TieBreakLowestOrderID(t *testing.T) {
	dealID := uuid.New()
	first := newTestOrder(t, "SO-A")
	first.DealID = uuidPtr(dealID)
	second := newTestOrder(t, "SO-B")
	second.DealID = uuidPtr(dealID)

	expected := first.ID
	if second.ID.String() < first.ID.String() {
		expected = second.ID
	}

	key := MatchableKey{DealID: uuidPtr(dealID)}
	result := MatchOrder(key, []Order{*first, *second})

	require.NotNil(t, result)
	assert.Equal(t, expected, result.OrderID)
	assert.True(t, result.Ambiguous())
	assert.Equal(t, 2, result.CandidateCount)

	// Candidate order must not influence the winner.
	reversed := MatchOrder(key, []Order{*second, *first})
	require.NotNil(t, reversed)
	assert.Equal(t, expected, reversed.OrderID)
}

func TestMatchOrder_BookingDateAndBuyer(t *testing.T) {
	buyerID := uuid.New()
	booking := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	order := newTestOrder(t, "SO-001")
	order.BuyerID = uuidPtr(buyerID)
	order.BookingDate = &booking

	// Different time of day on the invoice side still matches the date.
	invoiceBooking := time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC)
	key := MatchableKey{BuyerID: uuidPtr(buyerID), BookingDate: &invoiceBooking}
	result := MatchOrder(key, []Order{*order})

	require.NotNil(t, result)
	assert.Equal(t, MatchStepBookingBuyer, result.Step)
}

func TestMatchOrder_CancelledOrdersExcluded(t *testing.T) {
	dealID := uuid.New()
	order := newTestOrder(t, "SO-001")
	order.DealID = uuidPtr(dealID)
	order.Status = OrderStatusCancelled

	result := MatchOrder(MatchableKey{DealID: uuidPtr(dealID)}, []Order{*order})

	assert.Nil(t, result)
}

func TestMatchOrder_NoMatch(t *testing.T) {
	order := newTestOrder(t, "SO-001")
	order.DealID = uuidPtr(uuid.New())

	result := MatchOrder(MatchableKey{DealID: uuidPtr(uuid.New())}, []Order{*order})

	assert.Nil(t, result)
}

func TestMatchOrder_EmptyKey(t *testing.T) {
	order := newTestOrder(t, "SO-001")

	result := MatchOrder(MatchableKey{}, []Order{*order})

	assert.Nil(t, result)
}

func TestMatchOrder_PartialKeySkipsInapplicableSteps(t *testing.T) {
	// Only buyer id present: no step is applicable without a second field.
	buyerID := uuid.New()
	order := newTestOrder(t, "SO-001")
	order.BuyerID = uuidPtr(buyerID)

	result := MatchOrder(MatchableKey{BuyerID: uuidPtr(buyerID)}, []Order{*order})

	assert.Nil(t, result)
}
