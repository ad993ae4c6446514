package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	appfulfillment "github.com/erp/reconciler/internal/application/fulfillment"
	"github.com/erp/reconciler/internal/infrastructure/cache"
)

const fullScanGuardKey = "full-scan"

// ReconcileExecutor runs reconciliation jobs against the application service.
// Full-scan jobs take the distributed run guard first so only one instance
// scans at a time; single-order jobs never need the guard.
type ReconcileExecutor struct {
	service  *appfulfillment.ReconcileService
	guard    cache.RunGuard
	guardTTL time.Duration
	logger   *zap.Logger
}

// NewReconcileExecutor creates an executor. A nil guard disables the
// single-flight check, which is fine for single-instance deployments.
func NewReconcileExecutor(service *appfulfillment.ReconcileService, guard cache.RunGuard, guardTTL time.Duration, logger *zap.Logger) *ReconcileExecutor {
	return &ReconcileExecutor{
		service:  service,
		guard:    guard,
		guardTTL: guardTTL,
		logger:   logger,
	}
}

// Execute runs one reconciliation job
func (e *ReconcileExecutor) Execute(ctx context.Context, job *Job) error {
	if job.Scope.OrderID == nil && e.guard != nil {
		acquired, err := e.guard.Acquire(ctx, fullScanGuardKey, e.guardTTL)
		if err != nil {
			return err
		}
		if !acquired {
			e.logger.Info("Full scan already running elsewhere, skipping",
				zap.String("job_id", job.ID.String()))
			return nil
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.guard.Release(releaseCtx, fullScanGuardKey); err != nil {
				e.logger.Warn("Failed to release run guard", zap.Error(err))
			}
		}()
	}

	_, err := e.service.Reconcile(ctx, job.Scope)
	return err
}

var _ JobExecutor = (*ReconcileExecutor)(nil)
