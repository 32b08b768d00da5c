package service

import (
	"context"
	"strings"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/arandulabs/kuatia/internal/observability/metrics"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/arandulabs/kuatia/internal/submitlock"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    config.Config
	Repo      domain.Repository
	Allocator *sequence.Allocator
	Builder   *document.Builder
	Signer    domain.DocumentSigner
	Authority domain.AuthorityClient
	Locker    *submitlock.Locker `optional:"true"`
	Metrics   *metrics.Metrics   `optional:"true"`
	Orders    orderdomain.Service
	Customers customerdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	repo      domain.Repository
	allocator *sequence.Allocator
	builder   *document.Builder
	signer    domain.DocumentSigner
	authority domain.AuthorityClient
	locker    *submitlock.Locker
	metrics   *metrics.Metrics
	orders    orderdomain.Service
	customers customerdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		cfg:       p.Config,
		repo:      p.Repo,
		allocator: p.Allocator,
		builder:   p.Builder,
		signer:    p.Signer,
		authority: p.Authority,
		locker:    p.Locker,
		metrics:   p.Metrics,
		orders:    p.Orders,
		customers: p.Customers,
	}
}

// Create drafts an invoice. Amounts are always recomputed from quantity,
// price and discount; nothing the caller sends for totals is trusted.
func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.Invoice{}, domain.ErrInvalidCustomer
	}

	lines := req.Lines
	var orderID *snowflake.ID
	if raw := strings.TrimSpace(req.OrderID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return domain.Invoice{}, domain.ErrInvalidID
		}
		orderID = &id

		if len(lines) == 0 {
			lines, err = s.linesFromOrder(ctx, id)
			if err != nil {
				return domain.Invoice{}, err
			}
		}
	}
	if len(lines) == 0 {
		return domain.Invoice{}, domain.ErrInvalidLines
	}

	now := time.Now().UTC()
	invoice := domain.Invoice{
		ID:            s.genID.Generate(),
		Kind:          domain.KindSale,
		Status:        domain.StatusDraft,
		CustomerID:    customerID,
		OrderID:       orderID,
		Establishment: s.cfg.Issuer.Establishment,
		PointOfSale:   s.cfg.Issuer.PointOfSale,
		Currency:      currencyOrDefault(req.Currency),
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, in := range lines {
		line, err := s.buildLine(invoice.ID, in, now)
		if err != nil {
			return domain.Invoice{}, err
		}
		invoice.Lines = append(invoice.Lines, line)
	}
	sumTotals(&invoice)

	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) linesFromOrder(ctx context.Context, orderID snowflake.ID) ([]domain.CreateInvoiceLine, error) {
	order, err := s.orders.GetByID(ctx, orderdomain.GetOrderRequest{ID: orderID.String()})
	if err != nil {
		return nil, err
	}
	if order.Status != orderdomain.OrderStatusOpen {
		return nil, domain.ErrInvalidLines
	}

	var lines []domain.CreateInvoiceLine
	for _, line := range order.Lines {
		if line.Removed || !line.Remaining().IsPositive() {
			continue
		}
		lines = append(lines, domain.CreateInvoiceLine{
			OrderLineID: line.ID.String(),
			Description: line.Description,
			Quantity:    line.Remaining(),
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			TaxRate:     line.TaxRate,
		})
	}
	if len(lines) == 0 {
		return nil, domain.ErrInvalidLines
	}
	return lines, nil
}

func (s *Service) buildLine(invoiceID snowflake.ID, in domain.CreateInvoiceLine, now time.Time) (domain.InvoiceLine, error) {
	if strings.TrimSpace(in.Description) == "" ||
		!in.Quantity.IsPositive() ||
		in.UnitPrice.IsNegative() ||
		in.Discount.IsNegative() {
		return domain.InvoiceLine{}, domain.ErrInvalidLines
	}
	if in.TaxRate != 0 && in.TaxRate != 5 && in.TaxRate != 10 {
		return domain.InvoiceLine{}, domain.ErrInvalidLines
	}

	subtotal := in.Quantity.Mul(in.UnitPrice).Sub(in.Discount)
	if subtotal.IsNegative() {
		return domain.InvoiceLine{}, domain.ErrInvalidLines
	}
	tax := subtotal.Mul(decimal.NewFromInt(int64(in.TaxRate))).Div(decimal.NewFromInt(100))

	line := domain.InvoiceLine{
		ID:          s.genID.Generate(),
		InvoiceID:   invoiceID,
		ProductCode: strings.TrimSpace(in.ProductCode),
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Discount:    in.Discount,
		TaxRate:     in.TaxRate,
		Subtotal:    subtotal,
		Tax:         tax,
		Total:       subtotal.Add(tax),
		InvoicedQty: in.Quantity,
		CreatedAt:   now,
	}
	if raw := strings.TrimSpace(in.OrderLineID); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil && id != 0 {
			line.OrderLineID = &id
		}
	}
	return line, nil
}

// sumTotals derives the invoice header amounts from its lines.
func sumTotals(invoice *domain.Invoice) {
	var subtotal, tax5, tax10, discount, total decimal.Decimal
	for _, line := range invoice.Lines {
		subtotal = subtotal.Add(line.Subtotal)
		discount = discount.Add(line.Discount)
		total = total.Add(line.Total)
		switch line.TaxRate {
		case 5:
			tax5 = tax5.Add(line.Tax)
		case 10:
			tax10 = tax10.Add(line.Tax)
		}
	}
	invoice.Subtotal = subtotal
	invoice.Tax5 = tax5
	invoice.Tax10 = tax10
	invoice.TaxTotal = tax5.Add(tax10)
	invoice.Discount = discount
	invoice.Total = total
}

func (s *Service) GetByID(ctx context.Context, req domain.GetInvoiceRequest) (domain.Invoice, error) {
	invoice, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) Artifacts(ctx context.Context, req domain.GetInvoiceRequest) (domain.ArtifactsResponse, error) {
	invoice, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.ArtifactsResponse{}, err
	}
	return domain.ArtifactsResponse{
		UnsignedXML:      invoice.UnsignedXML,
		SignedXML:        invoice.SignedXML,
		AuthorityCode:    invoice.AuthorityCode,
		AuthorityMessage: invoice.AuthorityMessage,
		Protocol:         invoice.Protocol,
		QRURL:            invoice.QRURL,
		QRImage:          invoice.QRImage,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListInvoiceFilter{
		Status: domain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Kind:   domain.InvoiceKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, int(pageSize), func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// RecordPayment books a payment against an approved invoice. The balance can
// never go negative; draining it flips the invoice to PAID.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (domain.Invoice, error) {
	if !req.Amount.IsPositive() {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	invoice, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice.Status != domain.StatusApproved && invoice.Status != domain.StatusPartiallyPaid {
		return domain.Invoice{}, domain.ErrNotPayable
	}
	if req.Amount.GreaterThan(invoice.Balance) {
		return domain.Invoice{}, domain.ErrPaymentExceedsBalance
	}

	balance := invoice.Balance.Sub(req.Amount)
	status := domain.StatusPartiallyPaid
	if balance.IsZero() {
		status = domain.StatusPaid
	}

	if err := s.repo.Update(ctx, s.db, invoice.ID, map[string]any{
		"balance": balance,
		"status":  status,
	}); err != nil {
		return domain.Invoice{}, err
	}

	invoice.Balance = balance
	invoice.Status = status
	return *invoice, nil
}

// Void is a one-way manual transition. Fully paid and already voided
// invoices stay as they are; voiding an approved document only flags it for
// authority-side cancellation.
func (s *Service) Void(ctx context.Context, req domain.VoidInvoiceRequest) (domain.Invoice, error) {
	invoice, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice.Status == domain.StatusPaid || invoice.Status == domain.StatusVoided {
		return domain.Invoice{}, domain.ErrIllegalTransition
	}

	fields := map[string]any{
		"status":      domain.StatusVoided,
		"void_reason": strings.TrimSpace(req.Reason),
	}
	requiresCancel := invoice.CDC != "" &&
		(invoice.Status == domain.StatusApproved || invoice.Status == domain.StatusPartiallyPaid)
	if requiresCancel {
		fields["requires_authority_cancel"] = true
	}

	if err := s.repo.Update(ctx, s.db, invoice.ID, fields); err != nil {
		return domain.Invoice{}, err
	}

	invoice.Status = domain.StatusVoided
	invoice.VoidReason = strings.TrimSpace(req.Reason)
	invoice.RequiresAuthorityCancel = requiresCancel
	return *invoice, nil
}

// MarkLineReturned consumes invoiced quantity of one line, keeping the
// outstanding amount in sync with goods that physically came back. db lets
// the caller pass its transaction so the adjustment commits atomically with
// the caller's own writes; nil falls back to the service connection.
func (s *Service) MarkLineReturned(ctx context.Context, db *gorm.DB, req domain.MarkLineReturnedRequest) error {
	if db == nil {
		db = s.db
	}
	if req.InvoiceID == 0 || req.LineID == 0 {
		return domain.ErrInvalidID
	}
	if !req.Quantity.IsPositive() {
		return domain.ErrInvalidAmount
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}

		for i := range invoice.Lines {
			line := &invoice.Lines[i]
			if line.ID != req.LineID {
				continue
			}
			if req.Quantity.GreaterThan(line.InvoicedQty) {
				return domain.ErrReturnExceedsInvoiced
			}
			line.InvoicedQty = line.InvoicedQty.Sub(req.Quantity)
			return s.repo.UpdateLine(ctx, tx, line)
		}
		return domain.ErrNotFound
	})
}

func (s *Service) load(ctx context.Context, rawID string) (*domain.Invoice, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	return invoice, nil
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "PYG"
	}
	return currency
}
