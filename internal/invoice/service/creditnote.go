package service

import (
	"context"
	"time"

	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CreateCreditNote drafts a credit note against an approved invoice. Every
// note carries the return that justifies it; the total is validated against
// the original before any fiscal document is built, and the draft then goes
// through the same Issue pipeline as a sale.
func (s *Service) CreateCreditNote(ctx context.Context, req domain.CreateCreditNoteRequest) (domain.Invoice, error) {
	if req.OriginalInvoiceID == 0 || len(req.Lines) == 0 {
		return domain.Invoice{}, domain.ErrInvalidLines
	}
	if req.ReturnID == 0 {
		return domain.Invoice{}, domain.ErrMissingReturnRef
	}

	original, err := s.repo.FindByID(ctx, s.db, req.OriginalInvoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if original == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	switch original.Status {
	case domain.StatusApproved, domain.StatusPartiallyPaid, domain.StatusPaid:
	default:
		return domain.Invoice{}, domain.ErrOriginalNotApproved
	}
	if original.Kind != domain.KindSale {
		return domain.Invoice{}, domain.ErrInvalidLines
	}

	originalLines := make(map[int64]domain.InvoiceLine, len(original.Lines))
	for _, line := range original.Lines {
		originalLines[int64(line.ID)] = line
	}

	now := time.Now().UTC()
	note := domain.Invoice{
		ID:                s.genID.Generate(),
		Kind:              domain.KindCreditNote,
		Status:            domain.StatusDraft,
		CustomerID:        original.CustomerID,
		Establishment:     original.Establishment,
		PointOfSale:       original.PointOfSale,
		Currency:          original.Currency,
		OriginalInvoiceID: &req.OriginalInvoiceID,
		Metadata:          datatypes.JSONMap{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	returnID := req.ReturnID
	note.ReturnID = &returnID

	for _, in := range req.Lines {
		source, ok := originalLines[int64(in.InvoiceLineID)]
		if !ok {
			return domain.Invoice{}, domain.ErrInvalidLines
		}
		if !in.Quantity.IsPositive() || in.Quantity.GreaterThan(source.Quantity) {
			return domain.Invoice{}, domain.ErrInvalidLines
		}

		subtotal := in.Quantity.Mul(source.UnitPrice)
		tax := subtotal.Mul(decimal.NewFromInt(int64(source.TaxRate))).Div(decimal.NewFromInt(100))
		note.Lines = append(note.Lines, domain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   note.ID,
			ProductCode: source.ProductCode,
			Description: source.Description,
			Quantity:    in.Quantity,
			UnitPrice:   source.UnitPrice,
			TaxRate:     source.TaxRate,
			Subtotal:    subtotal,
			Tax:         tax,
			Total:       subtotal.Add(tax),
			InvoicedQty: in.Quantity,
			CreatedAt:   now,
		})
	}
	sumTotals(&note)

	// The bound check happens strictly before any document build.
	if note.Total.GreaterThan(original.Total) {
		return domain.Invoice{}, domain.ErrCreditExceedsOriginal
	}

	if err := s.repo.Insert(ctx, s.db, &note); err != nil {
		return domain.Invoice{}, err
	}

	s.metrics.RecordCreditNote(ctx)
	s.log.Info("credit note drafted",
		zap.String("credit_note_id", note.ID.String()),
		zap.String("original_invoice_id", original.ID.String()))
	return note, nil
}
