package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/reconciler/internal/domain/fulfillment"
)

// UUIDSlice stores a set of UUIDs as a jsonb column, enabling containment
// queries with the @> operator.
type UUIDSlice []uuid.UUID

// Value implements driver.Valuer
func (s UUIDSlice) Value() (driver.Value, error) {
	if s == nil {
		s = UUIDSlice{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *UUIDSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into UUIDSlice", value)
	}
	return json.Unmarshal(data, s)
}

// OrderModel is the persistence model for fulfillment.Order
type OrderModel struct {
	AggregateModel
	OrderNumber string           `gorm:"type:varchar(64);not null;uniqueIndex"`
	Status      string           `gorm:"type:varchar(20);not null;index"`
	TotalAmount decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Lines       []OrderLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	LinkedInvoiceIDs UUIDSlice  `gorm:"type:jsonb;not null;default:'[]'"`
	MatchedInvoiceID *uuid.UUID `gorm:"type:uuid;index"`
	MatchedVia       string     `gorm:"type:varchar(32)"`

	StatusTag             string          `gorm:"type:varchar(20);not null;index"`
	FulfillmentPercentage decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0"`
	NeedsAttention        bool            `gorm:"not null;default:false;index"`
	TotalInvoicedAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UpsellAmount          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`

	CoarseStatus string `gorm:"type:varchar(20);not null;default:'none'"`

	DealID      *uuid.UUID `gorm:"type:uuid;index"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;index"`
	UnitID      *uuid.UUID `gorm:"type:uuid"`
	BuyerID     *uuid.UUID `gorm:"type:uuid;index"`
	BookingDate *time.Time `gorm:"type:date"`

	LastReconciledHash string `gorm:"type:varchar(64);not null;default:''"`
}

// TableName specifies the table name
func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel is the persistence model for fulfillment.OrderLine
type OrderLineModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductName      string          `gorm:"type:varchar(255)"`
	QuantityOrdered  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	QuantityInvoiced decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName specifies the table name
func (OrderLineModel) TableName() string {
	return "order_lines"
}

// ToDomain converts OrderModel to domain Order
func (m *OrderModel) ToDomain() *fulfillment.Order {
	lines := make([]fulfillment.OrderLine, len(m.Lines))
	for i, lm := range m.Lines {
		lines[i] = fulfillment.OrderLine{
			ID:               lm.ID,
			ProductName:      lm.ProductName,
			QuantityOrdered:  lm.QuantityOrdered,
			QuantityInvoiced: lm.QuantityInvoiced,
		}
	}
	return &fulfillment.Order{
		BaseAggregateRoot:     m.ToDomainAggregateRoot(),
		OrderNumber:           m.OrderNumber,
		Status:                fulfillment.OrderStatus(m.Status),
		Lines:                 lines,
		TotalAmount:           m.TotalAmount,
		LinkedInvoiceIDs:      m.LinkedInvoiceIDs,
		MatchedInvoiceID:      m.MatchedInvoiceID,
		MatchedVia:            fulfillment.MatchStep(m.MatchedVia),
		StatusTag:             fulfillment.StatusTag(m.StatusTag),
		FulfillmentPercentage: m.FulfillmentPercentage,
		NeedsAttention:        m.NeedsAttention,
		TotalInvoicedAmount:   m.TotalInvoicedAmount,
		RemainingAmount:       m.RemainingAmount,
		UpsellAmount:          m.UpsellAmount,
		CoarseStatus:          fulfillment.CoarseStatus(m.CoarseStatus),
		DealID:                m.DealID,
		ProjectID:             m.ProjectID,
		UnitID:                m.UnitID,
		BuyerID:               m.BuyerID,
		BookingDate:           m.BookingDate,
		LastReconciledHash:    m.LastReconciledHash,
	}
}

// FromDomain populates OrderModel from domain Order
func (m *OrderModel) FromDomain(o *fulfillment.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.OrderNumber = o.OrderNumber
	m.Status = string(o.Status)
	m.TotalAmount = o.TotalAmount
	m.Lines = make([]OrderLineModel, len(o.Lines))
	for i, l := range o.Lines {
		m.Lines[i] = OrderLineModel{
			ID:               l.ID,
			OrderID:          o.ID,
			ProductName:      l.ProductName,
			QuantityOrdered:  l.QuantityOrdered,
			QuantityInvoiced: l.QuantityInvoiced,
		}
	}
	m.LinkedInvoiceIDs = UUIDSlice(o.LinkedInvoiceIDs)
	m.MatchedInvoiceID = o.MatchedInvoiceID
	m.MatchedVia = string(o.MatchedVia)
	m.StatusTag = string(o.StatusTag)
	m.FulfillmentPercentage = o.FulfillmentPercentage
	m.NeedsAttention = o.NeedsAttention
	m.TotalInvoicedAmount = o.TotalInvoicedAmount
	m.RemainingAmount = o.RemainingAmount
	m.UpsellAmount = o.UpsellAmount
	m.CoarseStatus = string(o.CoarseStatus)
	m.DealID = o.DealID
	m.ProjectID = o.ProjectID
	m.UnitID = o.UnitID
	m.BuyerID = o.BuyerID
	m.BookingDate = o.BookingDate
	m.LastReconciledHash = o.LastReconciledHash
}

// InvoiceModel is the persistence model for fulfillment.Invoice
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	State         string          `gorm:"type:varchar(20);not null;index"`
	Type          string          `gorm:"type:varchar(20);not null"`
	AmountTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`

	LinkedOrderID   *uuid.UUID `gorm:"type:uuid;index"`
	ManuallyMatched bool       `gorm:"not null;default:false"`

	DealID      *uuid.UUID `gorm:"type:uuid;index"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;index"`
	UnitID      *uuid.UUID `gorm:"type:uuid"`
	BuyerID     *uuid.UUID `gorm:"type:uuid;index"`
	BookingDate *time.Time `gorm:"type:date"`
}

// TableName specifies the table name
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts InvoiceModel to domain Invoice
func (m *InvoiceModel) ToDomain() *fulfillment.Invoice {
	return &fulfillment.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		InvoiceNumber:     m.InvoiceNumber,
		State:             fulfillment.InvoiceState(m.State),
		Type:              fulfillment.InvoiceType(m.Type),
		AmountTotal:       m.AmountTotal,
		LinkedOrderID:     m.LinkedOrderID,
		ManuallyMatched:   m.ManuallyMatched,
		DealID:            m.DealID,
		ProjectID:         m.ProjectID,
		UnitID:            m.UnitID,
		BuyerID:           m.BuyerID,
		BookingDate:       m.BookingDate,
	}
}

// FromDomain populates InvoiceModel from domain Invoice
func (m *InvoiceModel) FromDomain(i *fulfillment.Invoice) {
	m.FromDomainAggregateRoot(i.BaseAggregateRoot)
	m.InvoiceNumber = i.InvoiceNumber
	m.State = string(i.State)
	m.Type = string(i.Type)
	m.AmountTotal = i.AmountTotal
	m.LinkedOrderID = i.LinkedOrderID
	m.ManuallyMatched = i.ManuallyMatched
	m.DealID = i.DealID
	m.ProjectID = i.ProjectID
	m.UnitID = i.UnitID
	m.BuyerID = i.BuyerID
	m.BookingDate = i.BookingDate
}

// AuditLogModel is the persistence model for fulfillment.AuditLogEntry
type AuditLogModel struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	PreviousTag string     `gorm:"type:varchar(20)"`
	NewTag      string     `gorm:"type:varchar(20)"`
	Reason      string     `gorm:"type:varchar(20);not null"`
	MatchedVia  string     `gorm:"type:varchar(32)"`
	InvoiceID   *uuid.UUID `gorm:"type:uuid;index"`
	Detail      string     `gorm:"type:text"`
}

// TableName specifies the table name
func (AuditLogModel) TableName() string {
	return "reconciliation_audit_log"
}

// ToDomain converts AuditLogModel to domain AuditLogEntry
func (m *AuditLogModel) ToDomain() *fulfillment.AuditLogEntry {
	return &fulfillment.AuditLogEntry{
		BaseEntity:  m.BaseModel.ToDomain(),
		OrderID:     m.OrderID,
		PreviousTag: fulfillment.StatusTag(m.PreviousTag),
		NewTag:      fulfillment.StatusTag(m.NewTag),
		Reason:      fulfillment.AuditReason(m.Reason),
		MatchedVia:  fulfillment.MatchStep(m.MatchedVia),
		InvoiceID:   m.InvoiceID,
		Detail:      m.Detail,
	}
}

// FromDomain populates AuditLogModel from domain AuditLogEntry
func (m *AuditLogModel) FromDomain(e *fulfillment.AuditLogEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.OrderID = e.OrderID
	m.PreviousTag = string(e.PreviousTag)
	m.NewTag = string(e.NewTag)
	m.Reason = string(e.Reason)
	m.MatchedVia = string(e.MatchedVia)
	m.InvoiceID = e.InvoiceID
	m.Detail = e.Detail
}
