// Package domain contains the invoice lifecycle models. An invoice moves
// DRAFT -> GENERATED -> SUBMITTED -> APPROVED|REJECTED; approved invoices can
// collect payments until PAID. VOIDED is terminal and reachable only by the
// manual void operation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type InvoiceKind string

const (
	KindSale       InvoiceKind = "SALE"
	KindCreditNote InvoiceKind = "CREDIT_NOTE"
)

type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusGenerated     InvoiceStatus = "GENERATED"
	StatusSubmitted     InvoiceStatus = "SUBMITTED"
	StatusApproved      InvoiceStatus = "APPROVED"
	StatusRejected      InvoiceStatus = "REJECTED"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusVoided        InvoiceStatus = "VOIDED"
)

type Invoice struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	Kind       InvoiceKind   `gorm:"type:text;not null;default:'SALE'" json:"kind"`
	Status     InvoiceStatus `gorm:"type:text;not null;default:'DRAFT';index" json:"status"`
	CustomerID snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	OrderID    *snowflake.ID `gorm:"index" json:"order_id,omitempty"`

	// Numbering is immutable once allocated by Issue.
	Establishment string     `gorm:"type:text;not null" json:"establishment"`
	PointOfSale   string     `gorm:"type:text;not null" json:"point_of_sale"`
	Number        string     `gorm:"type:text" json:"number,omitempty"`
	CDC           string     `gorm:"type:text;index" json:"cdc,omitempty"`
	SecurityCode  string     `gorm:"type:text" json:"-"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`

	Currency string          `gorm:"type:text;not null;default:'PYG'" json:"currency"`
	Subtotal decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	Tax5     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax5"`
	Tax10    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax10"`
	TaxTotal decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_total"`
	Discount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	Total    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	Balance  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`

	// Fiscal artifacts, written by the issue pipeline.
	UnsignedXML string `gorm:"type:text" json:"-"`
	SignedXML   string `gorm:"type:text" json:"-"`

	AuthorityCode    string `gorm:"type:text" json:"authority_code,omitempty"`
	AuthorityMessage string `gorm:"type:text" json:"authority_message,omitempty"`
	Protocol         string `gorm:"type:text" json:"protocol,omitempty"`
	QRURL            string `gorm:"type:text" json:"qr_url,omitempty"`
	QRImage          string `gorm:"type:text" json:"-"` // base64 PNG

	// Credit note back references.
	OriginalInvoiceID *snowflake.ID `gorm:"index" json:"original_invoice_id,omitempty"`
	ReturnID          *snowflake.ID `gorm:"index" json:"return_id,omitempty"`

	VoidReason string `gorm:"type:text" json:"void_reason,omitempty"`
	// Set when a void hits an approved document; cancellation before the
	// authority is a manual follow-up.
	RequiresAuthorityCancel bool `gorm:"not null;default:false" json:"requires_authority_cancel"`

	BatchID *snowflake.ID `gorm:"index" json:"batch_id,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// Terminal reports whether no further lifecycle transition is possible.
func (i *Invoice) Terminal() bool {
	return i.Status == StatusVoided || i.Status == StatusPaid || i.Status == StatusRejected
}

// InvoiceLine amounts are derived from quantity, price and discount when the
// line is created; InvoicedQty starts at Quantity and is decremented by
// returns.
type InvoiceLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	OrderLineID *snowflake.ID   `gorm:"index" json:"order_line_id,omitempty"`
	ProductCode string          `gorm:"type:text" json:"product_code,omitempty"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Discount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	TaxRate     int             `gorm:"not null" json:"tax_rate"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	Tax         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"tax"`
	Total       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	InvoicedQty decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"invoiced_qty"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

type BatchStatus string

const (
	BatchStatusPending BatchStatus = "PENDING"
	BatchStatusDone    BatchStatus = "DONE"
)

// Batch tracks one asynchronous submission to the authority.
type Batch struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BatchNumber string       `gorm:"type:text;uniqueIndex" json:"batch_number"`
	Status      BatchStatus  `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	Code        string       `gorm:"type:text" json:"code,omitempty"`
	Message     string       `gorm:"type:text" json:"message,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Batch) TableName() string { return "fiscal_batches" }
