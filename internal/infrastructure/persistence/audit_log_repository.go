package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
)

// GormAuditLogRepository implements fulfillment.AuditLogRepository using
// GORM. Append-only: there is no update or delete path.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GORM-based audit log repository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Append durably stores a new entry
func (r *GormAuditLogRepository) Append(ctx context.Context, entry *fulfillment.AuditLogEntry) error {
	var model models.AuditLogModel
	model.FromDomain(entry)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// HistoryForOrder retrieves entries for an order, oldest first
func (r *GormAuditLogRepository) HistoryForOrder(ctx context.Context, orderID uuid.UUID, page, pageSize int) ([]fulfillment.AuditLogEntry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	var list []models.AuditLogModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	entries := make([]fulfillment.AuditLogEntry, len(list))
	for i := range list {
		entries[i] = *list[i].ToDomain()
	}
	return entries, nil
}

// CountForOrder returns the number of entries for an order
func (r *GormAuditLogRepository) CountForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AuditLogModel{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(err)
	}
	return count, nil
}

var _ fulfillment.AuditLogRepository = (*GormAuditLogRepository)(nil)
