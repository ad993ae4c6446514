package fulfillment

import (
	"github.com/google/uuid"

	"github.com/erp/reconciler/internal/domain/shared"
)

// AuditReason is the cause recorded for a reconciliation correction
type AuditReason string

const (
	AuditReasonAutoMatched  AuditReason = "auto-matched"
	AuditReasonReclassified AuditReason = "reclassified"
)

// AuditLogEntry records one correction made by the reconciliation engine.
// Entries are append-only and never mutated or deleted.
type AuditLogEntry struct {
	shared.BaseEntity
	OrderID     uuid.UUID
	PreviousTag StatusTag
	NewTag      StatusTag
	Reason      AuditReason
	MatchedVia  MatchStep
	InvoiceID   *uuid.UUID
	Detail      string
}

// NewMatchAuditEntry records an automated link repair. Ambiguity within the
// winning cascade step is not an error; it is noted in the detail for human
// review.
func NewMatchAuditEntry(orderID, invoiceID uuid.UUID, step MatchStep, detail string) *AuditLogEntry {
	return &AuditLogEntry{
		BaseEntity: shared.NewBaseEntity(),
		OrderID:    orderID,
		Reason:     AuditReasonAutoMatched,
		MatchedVia: step,
		InvoiceID:  &invoiceID,
		Detail:     detail,
	}
}

// NewReclassifyAuditEntry records a status transition observed by the
// classification pass
func NewReclassifyAuditEntry(orderID uuid.UUID, previousTag, newTag StatusTag, detail string) *AuditLogEntry {
	return &AuditLogEntry{
		BaseEntity:  shared.NewBaseEntity(),
		OrderID:     orderID,
		PreviousTag: previousTag,
		NewTag:      newTag,
		Reason:      AuditReasonReclassified,
		Detail:      detail,
	}
}
