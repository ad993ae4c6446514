package fulfillment

import (
	"context"

	"github.com/erp/reconciler/internal/domain/fulfillment"
)

// TransactionScope provides transactional access to the repositories the
// reconciliation driver writes through. A status or link write and its audit
// entry must commit or roll back together.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the write-side repositories
// within a transaction. All repositories returned share the same underlying
// database transaction.
type TransactionalRepositories interface {
	// Orders returns the order repository scoped to the current transaction
	Orders() fulfillment.OrderRepository
	// AuditLog returns the audit log repository scoped to the current transaction
	AuditLog() fulfillment.AuditLogRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. This is useful for testing or when transaction support is
// not required.
type NoOpTransactionScope struct {
	orders fulfillment.OrderRepository
	audit  fulfillment.AuditLogRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(orders fulfillment.OrderRepository, audit fulfillment.AuditLogRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{orders: orders, audit: audit}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Orders returns the order repository.
func (s *NoOpTransactionScope) Orders() fulfillment.OrderRepository {
	return s.orders
}

// AuditLog returns the audit log repository.
func (s *NoOpTransactionScope) AuditLog() fulfillment.AuditLogRepository {
	return s.audit
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
