package fulfillment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchStep identifies which cascade rule produced a repaired link
type MatchStep string

const (
	MatchStepDealID       MatchStep = "deal_id"
	MatchStepProjectUnit  MatchStep = "project_unit"
	MatchStepProjectBuyer MatchStep = "project_buyer"
	MatchStepBookingBuyer MatchStep = "booking_date_buyer"
)

// MatchableKey is the proxy-attribute value object used for link repair.
// Fields are nullable; a cascade step only applies when every field it
// needs is present on the invoice side.
type MatchableKey struct {
	DealID      *uuid.UUID
	ProjectID   *uuid.UUID
	UnitID      *uuid.UUID
	BuyerID     *uuid.UUID
	BookingDate *time.Time
}

// IsEmpty reports whether no cascade step can ever apply to this key
func (k MatchableKey) IsEmpty() bool {
	return k.DealID == nil && k.ProjectID == nil && k.UnitID == nil &&
		k.BuyerID == nil && k.BookingDate == nil
}

// MatchResult is the outcome of a successful cascade evaluation
type MatchResult struct {
	OrderID        uuid.UUID
	Step           MatchStep
	CandidateCount int
}

// Ambiguous reports whether more than one order satisfied the winning step
func (r *MatchResult) Ambiguous() bool {
	return r.CandidateCount > 1
}

// matchRule is one cascade step: applicable checks the invoice key has the
// fields the rule needs, matches compares against one candidate order.
type matchRule struct {
	step       MatchStep
	applicable func(k MatchableKey) bool
	matches    func(k MatchableKey, o *Order) bool
}

var matchCascade = []matchRule{
	{
		step:       MatchStepDealID,
		applicable: func(k MatchableKey) bool { return k.DealID != nil },
		matches: func(k MatchableKey, o *Order) bool {
			return uuidEqual(k.DealID, o.DealID)
		},
	},
	{
		step:       MatchStepProjectUnit,
		applicable: func(k MatchableKey) bool { return k.ProjectID != nil && k.UnitID != nil },
		matches: func(k MatchableKey, o *Order) bool {
			return uuidEqual(k.ProjectID, o.ProjectID) && uuidEqual(k.UnitID, o.UnitID)
		},
	},
	{
		step:       MatchStepProjectBuyer,
		applicable: func(k MatchableKey) bool { return k.ProjectID != nil && k.BuyerID != nil },
		matches: func(k MatchableKey, o *Order) bool {
			return uuidEqual(k.ProjectID, o.ProjectID) && uuidEqual(k.BuyerID, o.BuyerID)
		},
	},
	{
		step:       MatchStepBookingBuyer,
		applicable: func(k MatchableKey) bool { return k.BookingDate != nil && k.BuyerID != nil },
		matches: func(k MatchableKey, o *Order) bool {
			return dateEqual(k.BookingDate, o.BookingDate) && uuidEqual(k.BuyerID, o.BuyerID)
		},
	},
}

// MatchOrder runs the priority cascade for an orphan invoice key over the
// candidate orders. Only orders in an active state are considered. The first
// step yielding at least one candidate wins; later, looser steps are never
// consulted even when the winning set is ambiguous. Ties within a step
// resolve to the lowest order id. Returns nil when no step matches.
func MatchOrder(key MatchableKey, candidates []Order) *MatchResult {
	if key.IsEmpty() {
		return nil
	}
	for _, rule := range matchCascade {
		if !rule.applicable(key) {
			continue
		}
		var winner *Order
		count := 0
		for idx := range candidates {
			order := &candidates[idx]
			if !order.Status.IsActive() {
				continue
			}
			if !rule.matches(key, order) {
				continue
			}
			count++
			if winner == nil || strings.Compare(order.ID.String(), winner.ID.String()) < 0 {
				winner = order
			}
		}
		if winner != nil {
			return &MatchResult{
				OrderID:        winner.ID,
				Step:           rule.step,
				CandidateCount: count,
			}
		}
	}
	return nil
}

func uuidEqual(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func dateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
