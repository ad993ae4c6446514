package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/domain/shared"
)

// MockOrderRepository is a mock implementation of fulfillment.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindActive(ctx context.Context) ([]fulfillment.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindAll(ctx context.Context, filter fulfillment.OrderFilter) ([]fulfillment.Order, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]fulfillment.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) ClaimMatchedInvoice(ctx context.Context, orderID, invoiceID uuid.UUID, via fulfillment.MatchStep) (bool, error) {
	args := m.Called(ctx, orderID, invoiceID, via)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) UpdateFulfillment(ctx context.Context, order *fulfillment.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// MockInvoiceRepository is a mock implementation of fulfillment.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *fulfillment.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]fulfillment.Invoice, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindUnlinked(ctx context.Context) ([]fulfillment.Invoice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Invoice), args.Error(1)
}

// MockAuditLogRepository is a mock implementation of fulfillment.AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Append(ctx context.Context, entry *fulfillment.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditLogRepository) HistoryForOrder(ctx context.Context, orderID uuid.UUID, page, pageSize int) ([]fulfillment.AuditLogEntry, error) {
	args := m.Called(ctx, orderID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.AuditLogEntry), args.Error(1)
}

func (m *MockAuditLogRepository) CountForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func testConfig() Config {
	return Config{
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		EntityTimeout: time.Second,
	}
}

func newService(orders *MockOrderRepository, invoices *MockInvoiceRepository, audit *MockAuditLogRepository) *ReconcileService {
	scope := NewNoOpTransactionScope(orders, audit)
	return NewReconcileService(orders, invoices, audit, scope, testConfig(), zap.NewNop())
}

func buildOrder(t *testing.T, ordered, invoiced string) *fulfillment.Order {
	t.Helper()
	lines := []fulfillment.OrderLine{{
		ID:               uuid.New(),
		QuantityOrdered:  decimal.RequireFromString(ordered),
		QuantityInvoiced: decimal.RequireFromString(invoiced),
	}}
	order, err := fulfillment.NewOrder("SO-001", fulfillment.OrderStatusConfirmed, lines,
		decimal.RequireFromString("1000"), fulfillment.CoarseStatusToInvoice)
	require.NoError(t, err)
	return order
}

func buildInvoice(t *testing.T, state fulfillment.InvoiceState, amount string) *fulfillment.Invoice {
	t.Helper()
	inv, err := fulfillment.NewInvoice("INV-001", state, fulfillment.InvoiceTypeInvoice,
		decimal.RequireFromString(amount))
	require.NoError(t, err)
	return inv
}

func TestReconcile_MatchesAndReclassifies(t *testing.T) {
	dealID := uuid.New()
	order := buildOrder(t, "10", "10")
	order.DealID = &dealID

	inv := buildInvoice(t, fulfillment.InvoiceStatePosted, "1000")
	inv.DealID = &dealID
	// The claim is persisted by the store; mirror it on the in-memory order
	// so the classification pass sees the repaired link.
	order.MatchedInvoiceID = &inv.ID
	order.MatchedVia = fulfillment.MatchStepDealID

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)
	orders.On("ClaimMatchedInvoice", mock.Anything, order.ID, inv.ID, fulfillment.MatchStepDealID).Return(true, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)
	orders.On("UpdateFulfillment", mock.Anything, mock.AnythingOfType("*fulfillment.Order")).Return(nil)

	var appended []*fulfillment.AuditLogEntry
	audit.On("Append", mock.Anything, mock.AnythingOfType("*fulfillment.AuditLogEntry")).
		Run(func(args mock.Arguments) {
			appended = append(appended, args.Get(1).(*fulfillment.AuditLogEntry))
		}).Return(nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Reclassified)
	assert.Equal(t, 0, report.Failed)

	require.Len(t, appended, 2)
	assert.Equal(t, fulfillment.AuditReasonAutoMatched, appended[0].Reason)
	assert.Equal(t, fulfillment.MatchStepDealID, appended[0].MatchedVia)
	require.NotNil(t, appended[0].InvoiceID)
	assert.Equal(t, inv.ID, *appended[0].InvoiceID)
	assert.Equal(t, fulfillment.AuditReasonReclassified, appended[1].Reason)
	assert.Equal(t, fulfillment.StatusTagNotStarted, appended[1].PreviousTag)
	assert.Equal(t, fulfillment.StatusTagFullyInvoiced, appended[1].NewTag)

	orders.AssertExpectations(t)
	invoices.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestReconcile_SecondRunPerformsZeroWrites(t *testing.T) {
	inv := buildInvoice(t, fulfillment.InvoiceStatePosted, "1000")
	linked := inv.ID

	order := buildOrder(t, "10", "10")
	order.LinkedInvoiceIDs = []uuid.UUID{linked}
	order.CoarseStatus = fulfillment.CoarseStatusInvoiced
	result := fulfillment.Classify(order.Lines, order.TotalAmount, order.CoarseStatus, []fulfillment.Invoice{*inv})
	order.ApplyClassification(result, fulfillment.InvoiceSetHash([]fulfillment.Invoice{*inv}))

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, 0, report.Reclassified)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	orders.AssertNotCalled(t, "UpdateFulfillment", mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "ClaimMatchedInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestReconcile_LostClaimIsSkippedWithoutAudit(t *testing.T) {
	dealID := uuid.New()
	order := buildOrder(t, "10", "0")
	order.DealID = &dealID
	hash := fulfillment.InvoiceSetHash(nil)
	order.LastReconciledHash = hash

	inv := buildInvoice(t, fulfillment.InvoiceStatePosted, "500")
	inv.DealID = &dealID

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)
	orders.On("ClaimMatchedInvoice", mock.Anything, order.ID, inv.ID, fulfillment.MatchStepDealID).Return(false, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{}, nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, 0, report.Failed)
	audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestReconcile_TransientErrorRetriedThenSucceeds(t *testing.T) {
	order := buildOrder(t, "10", "0")

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).
		Return(nil, shared.NewTransientError(errors.New("connection reset"))).Once()
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{}, nil).Once()
	orders.On("UpdateFulfillment", mock.Anything, mock.AnythingOfType("*fulfillment.Order")).Return(nil)
	audit.On("Append", mock.Anything, mock.AnythingOfType("*fulfillment.AuditLogEntry")).Return(nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.Reclassified, "empty invoice set still reclassifies an order with no stored hash")
	invoices.AssertExpectations(t)
}

func TestReconcile_TransientErrorExhaustsRetries(t *testing.T) {
	order := buildOrder(t, "10", "0")

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).
		Return(nil, shared.NewTransientError(errors.New("connection reset")))

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err, "entity failures never abort the batch")
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, order.ID, report.Failures[0].EntityID)
	invoices.AssertNumberOfCalls(t, "FindByIDs", 3)
	orders.AssertNotCalled(t, "UpdateFulfillment", mock.Anything, mock.Anything)
}

func TestReconcile_InvalidOrderRecordNotRetried(t *testing.T) {
	order := buildOrder(t, "10", "0")
	order.Lines[0].QuantityInvoiced = decimal.NewFromInt(-1)

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	invoices.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "UpdateFulfillment", mock.Anything, mock.Anything)
}

func TestReconcile_SingleOrderScopeSkipsForeignMatches(t *testing.T) {
	dealID := uuid.New()
	scoped := buildOrder(t, "10", "0")
	scoped.LastReconciledHash = fulfillment.InvoiceSetHash(nil)

	other := buildOrder(t, "5", "0")
	other.DealID = &dealID

	inv := buildInvoice(t, fulfillment.InvoiceStatePosted, "500")
	inv.DealID = &dealID

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*scoped, *other}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)
	orders.On("FindByID", mock.Anything, scoped.ID).Return(scoped, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{}, nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeOrder(scoped.ID))

	require.NoError(t, err)
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, 0, report.Failed)
	orders.AssertNotCalled(t, "ClaimMatchedInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_CancelledDriftAuditedExactlyOnce(t *testing.T) {
	inv := buildInvoice(t, fulfillment.InvoiceStateCancelled, "1000")

	order := buildOrder(t, "10", "0")
	order.LinkedInvoiceIDs = []uuid.UUID{inv.ID}
	order.CoarseStatus = fulfillment.CoarseStatusToInvoice

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)

	var saved *fulfillment.Order
	orders.On("UpdateFulfillment", mock.Anything, mock.AnythingOfType("*fulfillment.Order")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*fulfillment.Order)
		}).Return(nil)

	var appended []*fulfillment.AuditLogEntry
	audit.On("Append", mock.Anything, mock.AnythingOfType("*fulfillment.AuditLogEntry")).
		Run(func(args mock.Arguments) {
			appended = append(appended, args.Get(1).(*fulfillment.AuditLogEntry))
		}).Return(nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Reclassified)
	require.NotNil(t, saved)
	assert.Equal(t, fulfillment.StatusTagCancelled, saved.StatusTag)
	assert.True(t, saved.NeedsAttention)
	require.Len(t, appended, 1)
	assert.Equal(t, fulfillment.AuditReasonReclassified, appended[0].Reason)

	// Second run over the persisted state performs zero writes.
	orders2 := new(MockOrderRepository)
	invoices2 := new(MockInvoiceRepository)
	audit2 := new(MockAuditLogRepository)
	orders2.On("FindActive", mock.Anything).Return([]fulfillment.Order{*saved}, nil)
	invoices2.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{}, nil)
	invoices2.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)

	second := NewReconcileService(orders2, invoices2, audit2,
		NewNoOpTransactionScope(orders2, audit2), testConfig(), zap.NewNop())
	secondReport, err := second.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 0, secondReport.Reclassified)
	assert.Equal(t, 1, secondReport.Skipped)
	audit2.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	orders2.AssertNotCalled(t, "UpdateFulfillment", mock.Anything, mock.Anything)
}

func TestReconcile_ManualMatchNeverRevisited(t *testing.T) {
	dealID := uuid.New()
	order := buildOrder(t, "10", "0")
	order.DealID = &dealID
	order.LastReconciledHash = fulfillment.InvoiceSetHash(nil)

	inv := buildInvoice(t, fulfillment.InvoiceStatePosted, "500")
	inv.DealID = &dealID
	inv.ManuallyMatched = true

	orders := new(MockOrderRepository)
	invoices := new(MockInvoiceRepository)
	audit := new(MockAuditLogRepository)

	orders.On("FindActive", mock.Anything).Return([]fulfillment.Order{*order}, nil)
	invoices.On("FindUnlinked", mock.Anything).Return([]fulfillment.Invoice{*inv}, nil)
	invoices.On("FindByIDs", mock.Anything, mock.Anything).Return([]fulfillment.Invoice{}, nil)

	service := newService(orders, invoices, audit)
	report, err := service.Reconcile(context.Background(), ScopeAll())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Matched)
	orders.AssertNotCalled(t, "ClaimMatchedInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
