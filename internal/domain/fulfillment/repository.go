package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

// OrderFilter narrows order listings for the operator read surface
type OrderFilter struct {
	StatusTag      *StatusTag
	NeedsAttention *bool
	Page           int
	PageSize       int
}

// OrderRepository defines the persistence interface for orders
type OrderRepository interface {
	// Save persists a new order
	Save(ctx context.Context, order *Order) error
	// FindByID retrieves an order by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindActive retrieves all orders in an active state, the matcher's
	// candidate set
	FindActive(ctx context.Context) ([]Order, error)
	// FindAll retrieves orders matching the filter with the total count
	FindAll(ctx context.Context, filter OrderFilter) ([]Order, int64, error)
	// ClaimMatchedInvoice atomically sets the repaired link on an order,
	// only when its matched link is still empty and the invoice is not
	// already reachable from another order. Returns false when the claim
	// was lost, which is not an error.
	ClaimMatchedInvoice(ctx context.Context, orderID, invoiceID uuid.UUID, via MatchStep) (bool, error)
	// UpdateFulfillment persists the fulfillment summary and reconciled
	// hash with an optimistic version check
	UpdateFulfillment(ctx context.Context, order *Order) error
}

// InvoiceRepository defines the persistence interface for invoices
type InvoiceRepository interface {
	// Save persists a new invoice
	Save(ctx context.Context, invoice *Invoice) error
	// FindByID retrieves an invoice by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByIDs retrieves the invoices for a set of IDs; missing IDs are
	// silently absent from the result
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Invoice, error)
	// FindUnlinked retrieves invoices with no authoritative order link
	// that are eligible for automated matching
	FindUnlinked(ctx context.Context) ([]Invoice, error)
}

// AuditLogRepository defines the append-only persistence interface for
// reconciliation audit entries. There is deliberately no update or delete.
type AuditLogRepository interface {
	// Append durably stores a new entry
	Append(ctx context.Context, entry *AuditLogEntry) error
	// HistoryForOrder retrieves entries for an order, oldest first
	HistoryForOrder(ctx context.Context, orderID uuid.UUID, page, pageSize int) ([]AuditLogEntry, error)
	// CountForOrder returns the number of entries for an order
	CountForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}
