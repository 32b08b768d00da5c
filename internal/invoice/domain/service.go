package domain

import (
	"context"
	"errors"

	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateInvoiceLine struct {
	OrderLineID string          `json:"order_line_id"`
	ProductCode string          `json:"product_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     int             `json:"tax_rate"`
}

// CreateInvoiceRequest drafts an invoice. When OrderID is set and Lines is
// empty, the open quantities of the order become the invoice lines.
type CreateInvoiceRequest struct {
	CustomerID string              `json:"customer_id"`
	OrderID    string              `json:"order_id"`
	Currency   string              `json:"currency"`
	Lines      []CreateInvoiceLine `json:"lines"`
}

type GetInvoiceRequest struct {
	ID string
}

type ListInvoiceRequest struct {
	PageToken string
	PageSize  int32
	Status    string
	Kind      string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type IssueInvoiceRequest struct {
	ID string
}

type RecordPaymentRequest struct {
	ID     string
	Amount decimal.Decimal `json:"amount"`
}

type VoidInvoiceRequest struct {
	ID     string
	Reason string `json:"reason"`
}

// AuthorityResult is the normalized outcome applied to an invoice, whether it
// came from a synchronous submit, a status query or a batch poll.
type AuthorityResult struct {
	Code     string
	Message  string
	Protocol string
}

// MarkLineReturnedRequest releases invoiced quantity of a line when goods
// come back through the returns engine.
type MarkLineReturnedRequest struct {
	InvoiceID snowflake.ID
	LineID    snowflake.ID
	Quantity  decimal.Decimal
}

type CreditNoteLine struct {
	InvoiceLineID snowflake.ID
	Quantity      decimal.Decimal
}

// CreateCreditNoteRequest drafts a credit note against an approved invoice.
// ReturnID is mandatory: every credit note is anchored to the return that
// justifies it. The engine validates the total against the original before
// building any fiscal document.
type CreateCreditNoteRequest struct {
	OriginalInvoiceID snowflake.ID
	ReturnID          snowflake.ID
	Lines             []CreditNoteLine
}

type SubmitBatchRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
}

type GetBatchRequest struct {
	BatchNumber string
}

// ReconcileReport summarizes one reconciliation pass over SUBMITTED
// documents.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
	Unreached int `json:"unreached"`
}

type ArtifactsResponse struct {
	UnsignedXML      string `json:"unsigned_xml,omitempty"`
	SignedXML        string `json:"signed_xml,omitempty"`
	AuthorityCode    string `json:"authority_code,omitempty"`
	AuthorityMessage string `json:"authority_message,omitempty"`
	Protocol         string `json:"protocol,omitempty"`
	QRURL            string `json:"qr_url,omitempty"`
	QRImage          string `json:"qr_image,omitempty"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	GetByID(context.Context, GetInvoiceRequest) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	Artifacts(context.Context, GetInvoiceRequest) (ArtifactsResponse, error)

	Issue(context.Context, IssueInvoiceRequest) (Invoice, error)
	ApplyAuthorityResponse(ctx context.Context, id snowflake.ID, result AuthorityResult) (Invoice, error)
	RecordPayment(context.Context, RecordPaymentRequest) (Invoice, error)
	Void(context.Context, VoidInvoiceRequest) (Invoice, error)
	// MarkLineReturned joins the caller's transaction when db is non-nil.
	MarkLineReturned(ctx context.Context, db *gorm.DB, req MarkLineReturnedRequest) error
	Reconcile(ctx context.Context, limit int) (ReconcileReport, error)

	CreateCreditNote(context.Context, CreateCreditNoteRequest) (Invoice, error)

	SubmitBatch(context.Context, SubmitBatchRequest) (Batch, error)
	GetBatch(context.Context, GetBatchRequest) (Batch, []Invoice, error)
	PollPendingBatches(ctx context.Context, limit int) (int, error)
}

// DocumentSigner and AuthorityClient are the fiscal ports the lifecycle
// drives; the concrete implementations live in internal/fiscal.
type DocumentSigner interface {
	Sign(docXML []byte, refID string) ([]byte, error)
}

type AuthorityClient interface {
	Submit(ctx context.Context, signedXML []byte) (*sifen.Response, error)
	SubmitBatch(ctx context.Context, docs [][]byte) (*sifen.BatchResponse, error)
	QueryByCDC(ctx context.Context, cdc string) (*sifen.StatusResponse, error)
	QueryBatch(ctx context.Context, batchNumber string) (*sifen.BatchStatusResponse, error)
}

var (
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidLines          = errors.New("invalid_lines")
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("not_found")
	ErrIllegalTransition     = errors.New("illegal_transition")
	ErrInvoiceImmutable      = errors.New("invoice_immutable")
	ErrAlreadySubmitted      = errors.New("already_submitted")
	ErrAuthorityUnreachable  = errors.New("authority_unreachable")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrNotPayable            = errors.New("invoice_not_payable")
	ErrPaymentExceedsBalance = errors.New("payment_exceeds_balance")
	ErrCreditExceedsOriginal = errors.New("credit_exceeds_original")
	ErrReturnExceedsInvoiced = errors.New("quantity_exceeds_invoiced_amount")
	ErrOriginalNotApproved   = errors.New("original_not_approved")
	ErrMissingReturnRef      = errors.New("missing_return_reference")
	ErrNothingToSubmit       = errors.New("nothing_to_submit")
	ErrBatchNotFound         = errors.New("batch_not_found")
	ErrLocked                = errors.New("submission_locked")
)
