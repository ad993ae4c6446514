package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/domain/shared"
)

// Scope selects what one reconciliation run covers: a single order or all
// eligible entities.
type Scope struct {
	OrderID *uuid.UUID
}

// ScopeAll covers all eligible orders and invoices
func ScopeAll() Scope {
	return Scope{}
}

// ScopeOrder covers a single order
func ScopeOrder(id uuid.UUID) Scope {
	return Scope{OrderID: &id}
}

// Failure describes one entity that could not be reconciled
type Failure struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Reason     string    `json:"reason"`
}

// Report summarizes one reconciliation run for operators
type Report struct {
	Matched      int       `json:"matched"`
	Reclassified int       `json:"reclassified"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

func (r *Report) fail(entityType string, id uuid.UUID, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{EntityType: entityType, EntityID: id, Reason: reason})
}

// Config controls the driver's retry and timeout behavior
type Config struct {
	// RetryAttempts is how many times a transient store failure is retried
	// per entity before that entity is recorded as failed
	RetryAttempts int
	// RetryDelay is the initial backoff delay, doubled per attempt
	RetryDelay time.Duration
	// EntityTimeout bounds the processing of a single entity
	EntityTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.EntityTimeout <= 0 {
		c.EntityTimeout = 30 * time.Second
	}
	return c
}

// ReconcileService is the reconciliation driver. One run performs a matching
// pass that repairs missing order-invoice links, then a classification pass
// that rederives each order's fulfillment summary. Repeating a run with no
// intervening data mutation performs zero writes.
type ReconcileService struct {
	orders   fulfillment.OrderRepository
	invoices fulfillment.InvoiceRepository
	audit    fulfillment.AuditLogRepository
	txScope  TransactionScope
	cfg      Config
	logger   *zap.Logger
}

// NewReconcileService creates the reconciliation driver
func NewReconcileService(
	orders fulfillment.OrderRepository,
	invoices fulfillment.InvoiceRepository,
	audit fulfillment.AuditLogRepository,
	txScope TransactionScope,
	cfg Config,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		orders:   orders,
		invoices: invoices,
		audit:    audit,
		txScope:  txScope,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Reconcile runs one reconciliation pass over the given scope. Entity
// failures are recorded in the report and never abort the batch; an error is
// returned only when the run cannot start at all.
func (s *ReconcileService) Reconcile(ctx context.Context, scope Scope) (*Report, error) {
	report := &Report{StartedAt: time.Now()}

	candidates, err := s.orders.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active orders: %w", err)
	}

	s.matchingPass(ctx, scope, candidates, report)
	s.classificationPass(ctx, scope, report)

	report.FinishedAt = time.Now()
	s.logger.Info("reconciliation run finished",
		zap.Int("matched", report.Matched),
		zap.Int("reclassified", report.Reclassified),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// matchingPass repairs missing links for orphan invoices. It completes fully
// before classification so repaired links are visible in the same run.
func (s *ReconcileService) matchingPass(ctx context.Context, scope Scope, candidates []fulfillment.Order, report *Report) {
	unlinked, err := s.invoices.FindUnlinked(ctx)
	if err != nil {
		s.logger.Error("failed to list unlinked invoices", zap.Error(err))
		report.fail("invoice", uuid.Nil, "list unlinked invoices: "+err.Error())
		return
	}

	for i := range unlinked {
		if ctx.Err() != nil {
			return
		}
		inv := unlinked[i]
		if !inv.IsMatchCandidate() {
			continue
		}
		if err := inv.Validate(); err != nil {
			s.logger.Warn("skipping malformed invoice",
				zap.String("invoice_id", inv.ID.String()), zap.Error(err))
			report.fail("invoice", inv.ID, "invalid record: "+err.Error())
			continue
		}

		key := inv.MatchableKey()
		if key.IsEmpty() {
			report.Skipped++
			continue
		}
		result := fulfillment.MatchOrder(key, candidates)
		if result == nil {
			// Terminal for this invoice snapshot; revisited only when new
			// proxy-key data appears.
			report.Skipped++
			continue
		}
		if scope.OrderID != nil && *scope.OrderID != result.OrderID {
			report.Skipped++
			continue
		}

		claimed, err := s.claimMatch(ctx, result, &inv)
		switch {
		case err != nil:
			s.logger.Error("failed to persist repaired link",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("order_id", result.OrderID.String()),
				zap.Error(err))
			report.fail("invoice", inv.ID, err.Error())
		case claimed:
			s.logger.Info("repaired order-invoice link",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("order_id", result.OrderID.String()),
				zap.String("matched_via", string(result.Step)))
			report.Matched++
		default:
			// Lost the claim to a concurrent writer or a manual match.
			report.Skipped++
		}
	}
}

// claimMatch persists a repaired link and its audit entry in one
// transaction. First writer wins; losing the conditional write is a normal
// outcome, not an error.
func (s *ReconcileService) claimMatch(ctx context.Context, result *fulfillment.MatchResult, inv *fulfillment.Invoice) (bool, error) {
	claimed := false
	err := s.withEntityRetry(ctx, func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			ok, err := repos.Orders().ClaimMatchedInvoice(ctx, result.OrderID, inv.ID, result.Step)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			claimed = true
			detail := ""
			if result.Ambiguous() {
				detail = fmt.Sprintf("ambiguous: %d candidates satisfied step %s", result.CandidateCount, result.Step)
			}
			return repos.AuditLog().Append(ctx, fulfillment.NewMatchAuditEntry(result.OrderID, inv.ID, result.Step, detail))
		})
	})
	return claimed, err
}

// classificationPass rederives the fulfillment summary for every in-scope
// order whose reachable invoice set changed since its last classification.
func (s *ReconcileService) classificationPass(ctx context.Context, scope Scope, report *Report) {
	var orders []fulfillment.Order
	if scope.OrderID != nil {
		order, err := s.orders.FindByID(ctx, *scope.OrderID)
		if err != nil {
			report.fail("order", *scope.OrderID, "load order: "+err.Error())
			return
		}
		orders = []fulfillment.Order{*order}
	} else {
		var err error
		orders, err = s.orders.FindActive(ctx)
		if err != nil {
			s.logger.Error("failed to list orders for classification", zap.Error(err))
			report.fail("order", uuid.Nil, "list orders: "+err.Error())
			return
		}
	}

	for i := range orders {
		if ctx.Err() != nil {
			return
		}
		order := orders[i]
		if err := s.reconcileOrder(ctx, &order, report); err != nil {
			s.logger.Error("failed to reconcile order",
				zap.String("order_id", order.ID.String()), zap.Error(err))
			report.fail("order", order.ID, err.Error())
		}
	}
}

func (s *ReconcileService) reconcileOrder(ctx context.Context, order *fulfillment.Order, report *Report) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	var invoices []fulfillment.Invoice
	err := s.withEntityRetry(ctx, func(ctx context.Context) error {
		var loadErr error
		invoices, loadErr = s.invoices.FindByIDs(ctx, order.ReachableInvoiceIDs())
		return loadErr
	})
	if err != nil {
		return fmt.Errorf("load reachable invoices: %w", err)
	}

	hash := fulfillment.InvoiceSetHash(invoices)
	if hash == order.LastReconciledHash {
		report.Skipped++
		return nil
	}

	result := fulfillment.Classify(order.Lines, order.TotalAmount, order.CoarseStatus, invoices)
	previousTag := order.StatusTag
	changed := order.ApplyClassification(result, hash)

	err = s.withEntityRetry(ctx, func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			if err := repos.Orders().UpdateFulfillment(ctx, order); err != nil {
				return err
			}
			if previousTag == order.StatusTag {
				return nil
			}
			detail := fmt.Sprintf("fulfillment %s%%, invoiced %s",
				result.Percentage.StringFixed(2), result.TotalInvoicedAmount.String())
			return repos.AuditLog().Append(ctx, fulfillment.NewReclassifyAuditEntry(order.ID, previousTag, order.StatusTag, detail))
		})
	})
	if err != nil {
		return err
	}

	if changed {
		report.Reclassified++
	} else {
		report.Skipped++
	}
	return nil
}

// withEntityRetry runs op under the per-entity timeout, retrying transient
// store failures with doubling backoff up to the configured attempt count.
// Cancellation of the parent context stops retrying immediately.
func (s *ReconcileService) withEntityRetry(ctx context.Context, op func(context.Context) error) error {
	delay := s.cfg.RetryDelay
	var err error
	for attempt := 0; ; attempt++ {
		entityCtx, cancel := context.WithTimeout(ctx, s.cfg.EntityTimeout)
		err = op(entityCtx)
		cancel()
		if err == nil || !shared.IsTransient(err) || attempt >= s.cfg.RetryAttempts {
			return err
		}
		s.logger.Warn("transient store error, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
