package persistence

import (
	"context"

	"gorm.io/gorm"

	appfulfillment "github.com/erp/reconciler/internal/application/fulfillment"
	"github.com/erp/reconciler/internal/domain/fulfillment"
)

// GormTransactionScope implements the application transaction scope on top
// of a GORM database transaction
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a transaction scope backed by the given database
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within one database transaction; the repositories handed
// to fn all operate on that transaction
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appfulfillment.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepositories{tx: tx})
	})
}

type txRepositories struct {
	tx *gorm.DB
}

func (r *txRepositories) Orders() fulfillment.OrderRepository {
	return NewGormOrderRepository(r.tx)
}

func (r *txRepositories) AuditLog() fulfillment.AuditLogRepository {
	return NewGormAuditLogRepository(r.tx)
}

var _ appfulfillment.TransactionScope = (*GormTransactionScope)(nil)
