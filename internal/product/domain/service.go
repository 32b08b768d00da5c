package domain

import (
	"context"
	"errors"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     int             `json:"tax_rate"`
}

type GetProductRequest struct {
	ID   string
	Code string
}

type ListProductRequest struct {
	PageToken string
	PageSize  int32
}

type ListProductResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

type Service interface {
	Create(context.Context, CreateProductRequest) (Product, error)
	Get(context.Context, GetProductRequest) (Product, error)
	List(context.Context, ListProductRequest) (ListProductResponse, error)
}

var (
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidTaxRate     = errors.New("invalid_tax_rate")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
	ErrDuplicateCode      = errors.New("duplicate_code")
)
