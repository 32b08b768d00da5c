package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/arandulabs/kuatia/internal/warehouse"
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
	Repo      domain.Repository
	Allocator *sequence.Allocator
	Invoices  invoicedomain.Service
	Orders    orderdomain.Service
	Warehouse *warehouse.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	allocator *sequence.Allocator
	invoices  invoicedomain.Service
	orders    orderdomain.Service
	warehouse *warehouse.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("returns.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		allocator: p.Allocator,
		invoices:  p.Invoices,
		orders:    p.Orders,
		warehouse: p.Warehouse,
	}
}

// Create registers a return request. The kind dictates the mandatory origin
// reference; line prices always come from the origin document, never from the
// caller.
func (s *Service) Create(ctx context.Context, req domain.CreateReturnRequest) (domain.Return, error) {
	kind := domain.ReturnKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	switch kind {
	case domain.KindGoodsReturn, domain.KindInvoiceCorrection, domain.KindOrderAdjustment:
	default:
		return domain.Return{}, domain.ErrInvalidKind
	}
	if len(req.Lines) == 0 {
		return domain.Return{}, domain.ErrInvalidLines
	}

	now := time.Now().UTC()
	ret := domain.Return{
		ID:          s.genID.Generate(),
		Kind:        kind,
		Status:      domain.StatusRequested,
		RequestedBy: strings.TrimSpace(req.RequestedBy),
		Reason:      strings.TrimSpace(req.Reason),
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var err error
	if kind == domain.KindOrderAdjustment {
		err = s.linesFromOrder(ctx, &ret, req, now)
	} else {
		err = s.linesFromInvoice(ctx, &ret, req, now)
	}
	if err != nil {
		return domain.Return{}, err
	}
	sumTotals(&ret)

	seq, err := s.allocator.Next(ctx, "return")
	if err != nil {
		return domain.Return{}, err
	}
	ret.Number = fmt.Sprintf("RET-%07d", seq)

	if err := s.repo.Insert(ctx, s.db, &ret); err != nil {
		return domain.Return{}, err
	}
	return ret, nil
}

func (s *Service) linesFromInvoice(ctx context.Context, ret *domain.Return, req domain.CreateReturnRequest, now time.Time) error {
	raw := strings.TrimSpace(req.InvoiceID)
	if raw == "" {
		return domain.ErrMissingOriginRef
	}
	invoiceID, err := snowflake.ParseString(raw)
	if err != nil || invoiceID == 0 {
		return domain.ErrInvalidID
	}

	invoice, err := s.invoices.GetByID(ctx, invoicedomain.GetInvoiceRequest{ID: raw})
	if err != nil {
		return err
	}
	switch invoice.Status {
	case invoicedomain.StatusApproved, invoicedomain.StatusPartiallyPaid, invoicedomain.StatusPaid:
	default:
		return domain.ErrOriginNotEligible
	}
	if invoice.Kind != invoicedomain.KindSale {
		return domain.ErrOriginNotEligible
	}
	ret.InvoiceID = &invoiceID

	sources := make(map[snowflake.ID]invoicedomain.InvoiceLine, len(invoice.Lines))
	for _, line := range invoice.Lines {
		sources[line.ID] = line
	}

	for _, in := range req.Lines {
		lineID, err := snowflake.ParseString(strings.TrimSpace(in.InvoiceLineID))
		if err != nil || lineID == 0 {
			return domain.ErrInvalidLines
		}
		source, ok := sources[lineID]
		if !ok {
			return domain.ErrInvalidLines
		}
		if !in.Quantity.IsPositive() || in.Quantity.GreaterThan(source.InvoicedQty) {
			return domain.ErrQuantityExceeded
		}

		srcID := lineID
		ret.Lines = append(ret.Lines, buildLine(s.genID.Generate(), ret.ID, domain.ReturnLine{
			InvoiceLineID: &srcID,
			Description:   source.Description,
			Quantity:      in.Quantity,
			UnitPrice:     source.UnitPrice,
			TaxRate:       source.TaxRate,
			Condition:     strings.ToUpper(strings.TrimSpace(in.Condition)),
		}, now))
	}
	return nil
}

func (s *Service) linesFromOrder(ctx context.Context, ret *domain.Return, req domain.CreateReturnRequest, now time.Time) error {
	raw := strings.TrimSpace(req.OrderID)
	if raw == "" {
		return domain.ErrMissingOriginRef
	}
	orderID, err := snowflake.ParseString(raw)
	if err != nil || orderID == 0 {
		return domain.ErrInvalidID
	}

	order, err := s.orders.GetByID(ctx, orderdomain.GetOrderRequest{ID: raw})
	if err != nil {
		return err
	}
	if order.Status != orderdomain.OrderStatusOpen {
		return domain.ErrOriginNotEligible
	}
	ret.OrderID = &orderID

	sources := make(map[snowflake.ID]orderdomain.OrderLine, len(order.Lines))
	for _, line := range order.Lines {
		sources[line.ID] = line
	}

	for _, in := range req.Lines {
		lineID, err := snowflake.ParseString(strings.TrimSpace(in.OrderLineID))
		if err != nil || lineID == 0 {
			return domain.ErrInvalidLines
		}
		source, ok := sources[lineID]
		if !ok || source.Removed {
			return domain.ErrInvalidLines
		}
		if !in.Quantity.IsPositive() || in.Quantity.GreaterThan(source.Remaining()) {
			return domain.ErrQuantityExceeded
		}

		srcID := lineID
		ret.Lines = append(ret.Lines, buildLine(s.genID.Generate(), ret.ID, domain.ReturnLine{
			OrderLineID: &srcID,
			Description: source.Description,
			Quantity:    in.Quantity,
			UnitPrice:   source.UnitPrice,
			TaxRate:     source.TaxRate,
		}, now))
	}
	return nil
}

func buildLine(id, returnID snowflake.ID, line domain.ReturnLine, now time.Time) domain.ReturnLine {
	line.ID = id
	line.ReturnID = returnID
	line.Subtotal = line.Quantity.Mul(line.UnitPrice)
	line.Tax = line.Subtotal.Mul(decimal.NewFromInt(int64(line.TaxRate))).Div(decimal.NewFromInt(100))
	line.Total = line.Subtotal.Add(line.Tax)
	line.CreatedAt = now
	return line
}

func sumTotals(ret *domain.Return) {
	var subtotal, tax, total decimal.Decimal
	for _, line := range ret.Lines {
		subtotal = subtotal.Add(line.Subtotal)
		tax = tax.Add(line.Tax)
		total = total.Add(line.Total)
	}
	ret.Subtotal = subtotal
	ret.Tax = tax
	ret.Total = total
}

func (s *Service) GetByID(ctx context.Context, req domain.GetReturnRequest) (domain.Return, error) {
	ret, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) List(ctx context.Context, req domain.ListReturnRequest) (domain.ListReturnResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListReturnFilter{
		Status: domain.ReturnStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Kind:   domain.ReturnKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListReturnResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, int(pageSize), func(ret *domain.Return) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        ret.ID.String(),
			CreatedAt: ret.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	returns := make([]domain.Return, 0, len(items))
	for _, item := range items {
		returns = append(returns, *item)
	}

	resp := domain.ListReturnResponse{Returns: returns}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Review moves a fresh request under review.
func (s *Service) Review(ctx context.Context, req domain.ReviewReturnRequest) (domain.Return, error) {
	ret, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Return{}, err
	}

	ok, err := s.repo.TransitionStatus(ctx, s.db, ret.ID, domain.StatusRequested, domain.StatusInReview)
	if err != nil {
		return domain.Return{}, err
	}
	if !ok {
		return domain.Return{}, domain.ErrIllegalTransition
	}

	ret.Status = domain.StatusInReview
	return *ret, nil
}

// Reject closes the return from any non-terminal state.
func (s *Service) Reject(ctx context.Context, req domain.RejectReturnRequest) (domain.Return, error) {
	return s.close(ctx, req.ID, domain.StatusRejected, "rejection_reason", req.Reason)
}

// Cancel withdraws the return from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, req domain.CancelReturnRequest) (domain.Return, error) {
	return s.close(ctx, req.ID, domain.StatusCancelled, "cancellation_reason", req.Reason)
}

func (s *Service) close(ctx context.Context, rawID string, status domain.ReturnStatus, reasonKey, reason string) (domain.Return, error) {
	ret, err := s.load(ctx, rawID)
	if err != nil {
		return domain.Return{}, err
	}
	if ret.Terminal() {
		return domain.Return{}, domain.ErrIllegalTransition
	}

	metadata := ret.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata[reasonKey] = reason
	}

	if err := s.repo.Update(ctx, s.db, ret.ID, map[string]any{
		"status":   status,
		"metadata": metadata,
	}); err != nil {
		return domain.Return{}, err
	}

	ret.Status = status
	ret.Metadata = metadata
	return *ret, nil
}

func (s *Service) load(ctx context.Context, rawID string) (*domain.Return, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}
	ret, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, domain.ErrNotFound
	}
	return ret, nil
}
