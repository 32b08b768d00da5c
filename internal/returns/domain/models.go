// Package domain contains the returns models. A return moves
// REQUESTED -> IN_REVIEW -> APPROVED -> IN_PROCESS -> COMPLETED, with
// REJECTED and CANCELLED reachable from any non-terminal state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ReturnKind string

const (
	KindGoodsReturn       ReturnKind = "GOODS_RETURN"
	KindInvoiceCorrection ReturnKind = "INVOICE_CORRECTION"
	KindOrderAdjustment   ReturnKind = "ORDER_ADJUSTMENT"
)

type ReturnStatus string

const (
	StatusRequested ReturnStatus = "REQUESTED"
	StatusInReview  ReturnStatus = "IN_REVIEW"
	StatusApproved  ReturnStatus = "APPROVED"
	StatusInProcess ReturnStatus = "IN_PROCESS"
	StatusCompleted ReturnStatus = "COMPLETED"
	StatusRejected  ReturnStatus = "REJECTED"
	StatusCancelled ReturnStatus = "CANCELLED"
)

type Return struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	Number string       `gorm:"type:text" json:"number"`
	Kind   ReturnKind   `gorm:"type:text;not null" json:"kind"`
	Status ReturnStatus `gorm:"type:text;not null;default:'REQUESTED';index" json:"status"`

	// Origin references; the kind dictates which one is mandatory.
	InvoiceID *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	OrderID   *snowflake.ID `gorm:"index" json:"order_id,omitempty"`

	RequestedBy string `gorm:"type:text" json:"requested_by,omitempty"`
	ApprovedBy  string `gorm:"type:text" json:"approved_by,omitempty"`
	Reason      string `gorm:"type:text" json:"reason,omitempty"`

	Subtotal decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax"`
	Total    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`

	CreditNoteID *snowflake.ID `gorm:"index" json:"credit_note_id,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []ReturnLine `gorm:"foreignKey:ReturnID" json:"lines,omitempty"`
}

func (Return) TableName() string { return "returns" }

// Terminal reports whether the return can no longer move.
func (r *Return) Terminal() bool {
	return r.Status == StatusCompleted ||
		r.Status == StatusRejected ||
		r.Status == StatusCancelled
}

type ReturnLine struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	ReturnID snowflake.ID `gorm:"not null;index" json:"return_id"`

	InvoiceLineID *snowflake.ID `gorm:"index" json:"invoice_line_id,omitempty"`
	OrderLineID   *snowflake.ID `gorm:"index" json:"order_line_id,omitempty"`
	ReceiptID     *snowflake.ID `gorm:"index" json:"receipt_id,omitempty"`

	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TaxRate     int             `gorm:"not null" json:"tax_rate"`
	Condition   string          `gorm:"type:text" json:"condition,omitempty"`

	Subtotal decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"tax"`
	Total    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ReturnLine) TableName() string { return "return_lines" }
