package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
)

var activeOrderStatuses = []string{
	string(fulfillment.OrderStatusDraft),
	string(fulfillment.OrderStatusConfirmed),
	string(fulfillment.OrderStatusDone),
}

// GormOrderRepository implements fulfillment.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GORM-based order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save persists a new order with its lines
func (r *GormOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	var model models.OrderModel
	model.FromDomain(order)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// FindByID retrieves an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var model models.OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("id = ?", id).First(&model).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return model.ToDomain(), nil
}

// FindActive retrieves all orders in an active state
func (r *GormOrderRepository) FindActive(ctx context.Context) ([]fulfillment.Order, error) {
	var list []models.OrderModel
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("status IN ?", activeOrderStatuses).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	orders := make([]fulfillment.Order, len(list))
	for i := range list {
		orders[i] = *list[i].ToDomain()
	}
	return orders, nil
}

// FindAll retrieves orders matching the filter with the total count
func (r *GormOrderRepository) FindAll(ctx context.Context, filter fulfillment.OrderFilter) ([]fulfillment.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.StatusTag != nil {
		query = query.Where("status_tag = ?", string(*filter.StatusTag))
	}
	if filter.NeedsAttention != nil {
		query = query.Where("needs_attention = ?", *filter.NeedsAttention)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapStoreError(err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var list []models.OrderModel
	err := query.
		Preload("Lines").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	if err != nil {
		return nil, 0, wrapStoreError(err)
	}
	orders := make([]fulfillment.Order, len(list))
	for i := range list {
		orders[i] = *list[i].ToDomain()
	}
	return orders, total, nil
}

// ClaimMatchedInvoice atomically repairs the link on an order. The write
// applies only when the order's matched link is still empty and no other
// order already reaches the invoice through its matched or authoritative
// link set. Losing the claim returns false, not an error.
func (r *GormOrderRepository) ClaimMatchedInvoice(ctx context.Context, orderID, invoiceID uuid.UUID, via fulfillment.MatchStep) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.OrderModel{}).
		Where("id = ? AND matched_invoice_id IS NULL", orderID).
		Where("NOT EXISTS (SELECT 1 FROM orders o2 WHERE o2.matched_invoice_id = ? OR o2.linked_invoice_ids @> ?)",
			invoiceID, `["`+invoiceID.String()+`"]`).
		Updates(map[string]any{
			"matched_invoice_id": invoiceID,
			"matched_via":        string(via),
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return false, wrapStoreError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateFulfillment persists the fulfillment summary with an optimistic
// version check
func (r *GormOrderRepository) UpdateFulfillment(ctx context.Context, order *fulfillment.Order) error {
	result := r.db.WithContext(ctx).Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"status_tag":             string(order.StatusTag),
			"fulfillment_percentage": order.FulfillmentPercentage,
			"needs_attention":        order.NeedsAttention,
			"total_invoiced_amount":  order.TotalInvoicedAmount,
			"remaining_amount":       order.RemainingAmount,
			"upsell_amount":          order.UpsellAmount,
			"last_reconciled_hash":   order.LastReconciledHash,
			"version":                order.Version + 1,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return wrapStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	order.IncrementVersion()
	return nil
}

var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)
