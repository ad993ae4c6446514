package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appfulfillment "github.com/erp/reconciler/internal/application/fulfillment"
	"github.com/erp/reconciler/internal/domain/fulfillment"
	"github.com/erp/reconciler/internal/infrastructure/logger"
)

// ReconciliationHandler handles reconciliation API endpoints
type ReconciliationHandler struct {
	BaseHandler
	service *appfulfillment.ReconcileService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(service *appfulfillment.ReconcileService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// RegisterRoutes registers reconciliation routes on the API group
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	recon := rg.Group("/reconciliation")
	recon.POST("/run", h.Run)

	orders := rg.Group("/orders")
	orders.GET("", h.ListOrders)
	orders.GET("/:id", h.GetOrder)
	orders.GET("/:id/audit", h.AuditHistory)

	invoices := rg.Group("/invoices")
	invoices.GET("/unlinked", h.ListUnlinkedInvoices)
}

// RunRequest represents a request to trigger a reconciliation run
// @Description Request body for triggering a reconciliation run
type RunRequest struct {
	OrderID *string `json:"order_id" example:"550e8400-e29b-41d4-a716-446655440000"`
}

// ListOrdersRequest represents order list query parameters
type ListOrdersRequest struct {
	StatusTag      string `form:"status_tag"`
	NeedsAttention *bool  `form:"needs_attention"`
	Page           int    `form:"page"`
	PageSize       int    `form:"page_size"`
}

// OrderLineResponse represents an order line in the response
// @Description Order line with ordered and invoiced quantity
type OrderLineResponse struct {
	ID               string `json:"id"`
	ProductName      string `json:"product_name"`
	QuantityOrdered  string `json:"quantity_ordered"`
	QuantityInvoiced string `json:"quantity_invoiced"`
}

// OrderResponse represents an order with its fulfillment summary
// @Description Order response object
type OrderResponse struct {
	ID                    string              `json:"id"`
	OrderNumber           string              `json:"order_number"`
	Status                string              `json:"status"`
	Lines                 []OrderLineResponse `json:"lines,omitempty"`
	TotalAmount           string              `json:"total_amount"`
	LinkedInvoiceIDs      []string            `json:"linked_invoice_ids"`
	MatchedInvoiceID      *string             `json:"matched_invoice_id"`
	MatchedVia            string              `json:"matched_via,omitempty"`
	StatusTag             string              `json:"status_tag"`
	FulfillmentPercentage string              `json:"fulfillment_percentage"`
	NeedsAttention        bool                `json:"needs_attention"`
	TotalInvoicedAmount   string              `json:"total_invoiced_amount"`
	RemainingAmount       string              `json:"remaining_amount"`
	UpsellAmount          string              `json:"upsell_amount"`
	CoarseStatus          string              `json:"coarse_status"`
	CreatedAt             string              `json:"created_at"`
	UpdatedAt             string              `json:"updated_at"`
	Version               int                 `json:"version"`
}

// InvoiceResponse represents an invoice in the response
// @Description Invoice response object
type InvoiceResponse struct {
	ID              string  `json:"id"`
	InvoiceNumber   string  `json:"invoice_number"`
	State           string  `json:"state"`
	Type            string  `json:"type"`
	AmountTotal     string  `json:"amount_total"`
	LinkedOrderID   *string `json:"linked_order_id"`
	ManuallyMatched bool    `json:"manually_matched"`
	CreatedAt       string  `json:"created_at"`
}

// AuditEntryResponse represents one audit log entry
// @Description Reconciliation audit log entry
type AuditEntryResponse struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	PreviousTag string  `json:"previous_tag,omitempty"`
	NewTag      string  `json:"new_tag,omitempty"`
	Reason      string  `json:"reason"`
	MatchedVia  string  `json:"matched_via,omitempty"`
	InvoiceID   *string `json:"invoice_id"`
	Detail      string  `json:"detail,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// Run godoc
// @Summary      Trigger a reconciliation run
// @Description  Run reconciliation over all eligible orders, or a single order when order_id is given. Returns the run report.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        request body RunRequest false "Run scope"
// @Success      200 {object} dto.Response{data=appfulfillment.Report}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /reconciliation/run [post]
func (h *ReconciliationHandler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	scope := appfulfillment.ScopeAll()
	if req.OrderID != nil && *req.OrderID != "" {
		orderID, err := uuid.Parse(*req.OrderID)
		if err != nil {
			h.BadRequest(c, "Invalid order ID format")
			return
		}
		scope = appfulfillment.ScopeOrder(orderID)
	}

	// Propagate the request-scoped logger so run logs carry the request id
	ctx, _ := logger.WithRequestID(c.Request.Context(), logger.GetGinLogger(c), getRequestID(c))

	report, err := h.service.Reconcile(ctx, scope)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, report)
}

// GetOrder godoc
// @Summary      Get order by ID
// @Description  Retrieve an order with its current fulfillment summary
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id} [get]
func (h *ReconciliationHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toOrderResponse(order, true))
}

// ListOrders godoc
// @Summary      List orders
// @Description  Retrieve a paginated list of orders, optionally filtered by status tag or attention flag
// @Tags         orders
// @Produce      json
// @Param        status_tag query string false "Status tag filter"
// @Param        needs_attention query bool false "Attention flag filter"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(50)
// @Success      200 {object} dto.Response{data=[]OrderResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [get]
func (h *ReconciliationHandler) ListOrders(c *gin.Context) {
	var req ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 50
	}

	filter := fulfillment.OrderFilter{
		NeedsAttention: req.NeedsAttention,
		Page:           req.Page,
		PageSize:       req.PageSize,
	}
	if req.StatusTag != "" {
		tag := fulfillment.StatusTag(req.StatusTag)
		filter.StatusTag = &tag
	}

	orders, total, err := h.service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]OrderResponse, len(orders))
	for i := range orders {
		responses[i] = toOrderResponse(&orders[i], false)
	}
	h.SuccessWithMeta(c, responses, total, req.Page, req.PageSize)
}

// AuditHistory godoc
// @Summary      Get order audit history
// @Description  Retrieve the reconciliation audit trail for an order, oldest first
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(50)
// @Success      200 {object} dto.Response{data=[]AuditEntryResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/audit [get]
func (h *ReconciliationHandler) AuditHistory(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var paging struct {
		Page     int `form:"page"`
		PageSize int `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&paging); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if paging.Page == 0 {
		paging.Page = 1
	}
	if paging.PageSize == 0 {
		paging.PageSize = 50
	}

	entries, total, err := h.service.AuditHistory(c.Request.Context(), orderID, paging.Page, paging.PageSize)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]AuditEntryResponse, len(entries))
	for i := range entries {
		responses[i] = toAuditEntryResponse(&entries[i])
	}
	h.SuccessWithMeta(c, responses, total, paging.Page, paging.PageSize)
}

// ListUnlinkedInvoices godoc
// @Summary      List unlinked invoices
// @Description  Retrieve invoices that have no order link and await automated matching
// @Tags         invoices
// @Produce      json
// @Success      200 {object} dto.Response{data=[]InvoiceResponse}
// @Router       /invoices/unlinked [get]
func (h *ReconciliationHandler) ListUnlinkedInvoices(c *gin.Context) {
	invoices, err := h.service.ListUnlinkedInvoices(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = toInvoiceResponse(&invoices[i])
	}
	h.Success(c, responses)
}

func toOrderResponse(order *fulfillment.Order, includeLines bool) OrderResponse {
	resp := OrderResponse{
		ID:                    order.ID.String(),
		OrderNumber:           order.OrderNumber,
		Status:                string(order.Status),
		TotalAmount:           order.TotalAmount.String(),
		LinkedInvoiceIDs:      make([]string, len(order.LinkedInvoiceIDs)),
		MatchedVia:            string(order.MatchedVia),
		StatusTag:             string(order.StatusTag),
		FulfillmentPercentage: order.FulfillmentPercentage.StringFixed(2),
		NeedsAttention:        order.NeedsAttention,
		TotalInvoicedAmount:   order.TotalInvoicedAmount.String(),
		RemainingAmount:       order.RemainingAmount.String(),
		UpsellAmount:          order.UpsellAmount.String(),
		CoarseStatus:          string(order.CoarseStatus),
		CreatedAt:             order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:             order.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Version:               order.Version,
	}
	for i, id := range order.LinkedInvoiceIDs {
		resp.LinkedInvoiceIDs[i] = id.String()
	}
	if order.MatchedInvoiceID != nil {
		s := order.MatchedInvoiceID.String()
		resp.MatchedInvoiceID = &s
	}
	if includeLines {
		resp.Lines = make([]OrderLineResponse, len(order.Lines))
		for i, line := range order.Lines {
			resp.Lines[i] = OrderLineResponse{
				ID:               line.ID.String(),
				ProductName:      line.ProductName,
				QuantityOrdered:  line.QuantityOrdered.String(),
				QuantityInvoiced: line.QuantityInvoiced.String(),
			}
		}
	}
	return resp
}

func toInvoiceResponse(invoice *fulfillment.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:              invoice.ID.String(),
		InvoiceNumber:   invoice.InvoiceNumber,
		State:           string(invoice.State),
		Type:            string(invoice.Type),
		AmountTotal:     invoice.AmountTotal.String(),
		ManuallyMatched: invoice.ManuallyMatched,
		CreatedAt:       invoice.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if invoice.LinkedOrderID != nil {
		s := invoice.LinkedOrderID.String()
		resp.LinkedOrderID = &s
	}
	return resp
}

func toAuditEntryResponse(entry *fulfillment.AuditLogEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:          entry.ID.String(),
		OrderID:     entry.OrderID.String(),
		PreviousTag: string(entry.PreviousTag),
		NewTag:      string(entry.NewTag),
		Reason:      string(entry.Reason),
		MatchedVia:  string(entry.MatchedVia),
		Detail:      entry.Detail,
		CreatedAt:   entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if entry.InvoiceID != nil {
		s := entry.InvoiceID.String()
		resp.InvoiceID = &s
	}
	return resp
}
