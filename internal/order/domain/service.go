package domain

import (
	"context"
	"errors"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type CreateOrderLine struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     int             `json:"tax_rate"`
}

type CreateOrderRequest struct {
	CustomerID string            `json:"customer_id"`
	Currency   string            `json:"currency"`
	Lines      []CreateOrderLine `json:"lines"`
}

type GetOrderRequest struct {
	ID string
}

type ListOrderRequest struct {
	PageToken string
	PageSize  int32
}

type ListOrderResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

// AdjustLineQuantityRequest asks for a decrement of an order line's open
// quantity, e.g. when a return of kind ORDER_ADJUSTMENT completes.
type AdjustLineQuantityRequest struct {
	OrderID  string
	LineID   string
	Quantity decimal.Decimal
}

// MarkLineInvoicedRequest records that qty of a line was billed.
type MarkLineInvoicedRequest struct {
	OrderID  string
	LineID   string
	Quantity decimal.Decimal
}

type Service interface {
	Create(context.Context, CreateOrderRequest) (Order, error)
	GetByID(context.Context, GetOrderRequest) (Order, error)
	List(context.Context, ListOrderRequest) (ListOrderResponse, error)
	AdjustLineQuantity(context.Context, AdjustLineQuantityRequest) (Order, error)
	MarkLineInvoiced(context.Context, MarkLineInvoicedRequest) error
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidLines     = errors.New("invalid_lines")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrLineNotFound     = errors.New("line_not_found")
	ErrOrderNotOpen     = errors.New("order_not_open")
	ErrQuantityExceeded = errors.New("quantity_exceeds_open_amount")
	ErrNothingToInvoice = errors.New("nothing_to_invoice")
)
