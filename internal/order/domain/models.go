package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	Status     OrderStatus       `gorm:"not null;default:'OPEN'" json:"status"`
	Currency   string            `gorm:"not null;default:'PYG'" json:"currency"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// OrderLine tracks how much of the ordered quantity has been billed. The
// invoiced counter is what the adjustment guard compares against.
type OrderLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID     snowflake.ID    `gorm:"not null;index" json:"order_id"`
	ProductID   snowflake.ID    `gorm:"index" json:"product_id,omitempty"`
	Description string          `gorm:"not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Discount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	TaxRate     int             `gorm:"not null;default:10" json:"tax_rate"`
	InvoicedQty decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"invoiced_qty"`
	Removed     bool            `gorm:"not null;default:false" json:"removed"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Remaining is the quantity still open for invoicing or adjustment.
func (l OrderLine) Remaining() decimal.Decimal {
	return l.Quantity.Sub(l.InvoicedQty)
}
