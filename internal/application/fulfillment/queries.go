package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/erp/reconciler/internal/domain/fulfillment"
)

// GetOrder retrieves one order with its fulfillment summary
func (s *ReconcileService) GetOrder(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// ListOrders retrieves orders matching the filter with the total count
func (s *ReconcileService) ListOrders(ctx context.Context, filter fulfillment.OrderFilter) ([]fulfillment.Order, int64, error) {
	return s.orders.FindAll(ctx, filter)
}

// AuditHistory retrieves the reconciliation audit trail for an order,
// oldest first, with the total entry count
func (s *ReconcileService) AuditHistory(ctx context.Context, orderID uuid.UUID, page, pageSize int) ([]fulfillment.AuditLogEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	entries, err := s.audit.HistoryForOrder(ctx, orderID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.audit.CountForOrder(ctx, orderID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListUnlinkedInvoices retrieves orphan invoices still awaiting a link
func (s *ReconcileService) ListUnlinkedInvoices(ctx context.Context) ([]fulfillment.Invoice, error) {
	return s.invoices.FindUnlinked(ctx)
}
