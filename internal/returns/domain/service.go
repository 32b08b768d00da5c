package domain

import (
	"context"
	"errors"

	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type CreateReturnLine struct {
	InvoiceLineID string          `json:"invoice_line_id"`
	OrderLineID   string          `json:"order_line_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Condition     string          `json:"condition"`
}

type CreateReturnRequest struct {
	Kind        string             `json:"kind"`
	InvoiceID   string             `json:"invoice_id"`
	OrderID     string             `json:"order_id"`
	RequestedBy string             `json:"requested_by"`
	Reason      string             `json:"reason"`
	Lines       []CreateReturnLine `json:"lines"`
}

type GetReturnRequest struct {
	ID string
}

type ListReturnRequest struct {
	PageToken string
	PageSize  int32
	Status    string
	Kind      string
}

type ListReturnResponse struct {
	pagination.PageInfo
	Returns []Return `json:"returns"`
}

type ReviewReturnRequest struct {
	ID string
}

type RejectReturnRequest struct {
	ID     string
	Reason string `json:"reason"`
}

type CancelReturnRequest struct {
	ID     string
	Reason string `json:"reason"`
}

type ApproveReturnRequest struct {
	ID                 string
	ApprovedBy         string `json:"approved_by"`
	GenerateCreditNote bool   `json:"generate_credit_note"`
}

type Service interface {
	Create(context.Context, CreateReturnRequest) (Return, error)
	GetByID(context.Context, GetReturnRequest) (Return, error)
	List(context.Context, ListReturnRequest) (ListReturnResponse, error)
	Review(context.Context, ReviewReturnRequest) (Return, error)
	Reject(context.Context, RejectReturnRequest) (Return, error)
	Cancel(context.Context, CancelReturnRequest) (Return, error)
	Approve(context.Context, ApproveReturnRequest) (Return, error)
}

var (
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrMissingOriginRef  = errors.New("missing_origin_reference")
	ErrOriginNotEligible = errors.New("origin_not_eligible")
	ErrInvalidLines      = errors.New("invalid_lines")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("not_found")
	ErrIllegalTransition = errors.New("illegal_transition")
	ErrQuantityExceeded  = errors.New("quantity_exceeds_returnable_amount")
)
