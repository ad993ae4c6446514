package persistence

import (
	"errors"

	"gorm.io/gorm"

	"github.com/erp/reconciler/internal/domain/shared"
)

// wrapStoreError maps GORM errors onto the domain error taxonomy. Missing
// rows are a domain condition; anything else from the store is assumed
// retryable and wrapped as transient for the driver's backoff policy.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return shared.NewTransientError(err)
}
