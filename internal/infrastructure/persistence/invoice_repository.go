package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements fulfillment.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GORM-based invoice repository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Save persists a new invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *fulfillment.Invoice) error {
	var model models.InvoiceModel
	model.FromDomain(invoice)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// FindByID retrieves an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDs retrieves the invoices for a set of IDs
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]fulfillment.Invoice, error) {
	if len(ids) == 0 {
		return []fulfillment.Invoice{}, nil
	}
	var list []models.InvoiceModel
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	invoices := make([]fulfillment.Invoice, len(list))
	for i := range list {
		invoices[i] = *list[i].ToDomain()
	}
	return invoices, nil
}

// FindUnlinked retrieves invoices eligible for automated matching: no
// authoritative order link, not manually matched, not cancelled
func (r *GormInvoiceRepository) FindUnlinked(ctx context.Context) ([]fulfillment.Invoice, error) {
	var list []models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("linked_order_id IS NULL AND manually_matched = ? AND state <> ?",
			false, string(fulfillment.InvoiceStateCancelled)).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}
	invoices := make([]fulfillment.Invoice, len(list))
	for i := range list {
		invoices[i] = *list[i].ToDomain()
	}
	return invoices, nil
}

var _ fulfillment.InvoiceRepository = (*GormInvoiceRepository)(nil)
