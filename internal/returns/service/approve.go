package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/internal/warehouse"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Approve runs the whole processing pipeline for a reviewed return: the
// return moves to APPROVED, then IN_PROCESS while the kind-specific effects
// are applied, then COMPLETED. A processing failure rolls the status back to
// APPROVED, and a return already sitting in APPROVED re-enters the pipeline
// from there, so the operation can be retried.
func (s *Service) Approve(ctx context.Context, req domain.ApproveReturnRequest) (domain.Return, error) {
	ret, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Return{}, err
	}
	if req.GenerateCreditNote && (ret.Kind == domain.KindOrderAdjustment || ret.InvoiceID == nil) {
		return domain.Return{}, domain.ErrInvalidKind
	}

	switch ret.Status {
	case domain.StatusInReview:
		ok, err := s.repo.TransitionStatus(ctx, s.db, ret.ID, domain.StatusInReview, domain.StatusApproved)
		if err != nil {
			return domain.Return{}, err
		}
		if !ok {
			return domain.Return{}, domain.ErrIllegalTransition
		}
		if err := s.repo.Update(ctx, s.db, ret.ID, map[string]any{
			"approved_by": strings.TrimSpace(req.ApprovedBy),
		}); err != nil {
			return domain.Return{}, err
		}
	case domain.StatusApproved:
		// retry after an earlier processing failure, approval already recorded
	default:
		return domain.Return{}, domain.ErrIllegalTransition
	}

	ok, err := s.repo.TransitionStatus(ctx, s.db, ret.ID, domain.StatusApproved, domain.StatusInProcess)
	if err != nil {
		return domain.Return{}, err
	}
	if !ok {
		return domain.Return{}, domain.ErrIllegalTransition
	}

	// The credit note draft is validated against the original invoice before
	// any physical effect is applied, so a bound violation aborts cleanly.
	var creditNoteID *snowflake.ID
	if req.GenerateCreditNote {
		note, err := s.invoices.CreateCreditNote(ctx, invoicedomain.CreateCreditNoteRequest{
			OriginalInvoiceID: *ret.InvoiceID,
			ReturnID:          ret.ID,
			Lines:             creditNoteLines(ret.Lines),
		})
		if err != nil {
			s.revert(ctx, ret.ID)
			return domain.Return{}, err
		}
		id := note.ID
		creditNoteID = &id
	}

	if err := s.process(ctx, ret); err != nil {
		s.revert(ctx, ret.ID)
		return domain.Return{}, err
	}

	if creditNoteID != nil {
		s.issueCreditNote(ctx, *creditNoteID)
	}

	fields := map[string]any{"status": domain.StatusCompleted}
	if creditNoteID != nil {
		fields["credit_note_id"] = *creditNoteID
	}
	if err := s.repo.Update(ctx, s.db, ret.ID, fields); err != nil {
		return domain.Return{}, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, ret.ID)
	if err != nil {
		return domain.Return{}, err
	}
	s.log.Info("return completed",
		zap.String("return_id", ret.ID.String()),
		zap.String("kind", string(ret.Kind)))
	return *updated, nil
}

func creditNoteLines(lines []domain.ReturnLine) []invoicedomain.CreditNoteLine {
	out := make([]invoicedomain.CreditNoteLine, 0, len(lines))
	for _, line := range lines {
		if line.InvoiceLineID == nil {
			continue
		}
		out = append(out, invoicedomain.CreditNoteLine{
			InvoiceLineID: *line.InvoiceLineID,
			Quantity:      line.Quantity,
		})
	}
	return out
}

// issueCreditNote pushes the drafted note through the fiscal pipeline. An
// unreachable authority leaves the note GENERATED for a later retry and does
// not block completing the return; the goods-side effects already happened.
func (s *Service) issueCreditNote(ctx context.Context, id snowflake.ID) {
	_, err := s.invoices.Issue(ctx, invoicedomain.IssueInvoiceRequest{ID: id.String()})
	if err == nil {
		return
	}
	if errors.Is(err, invoicedomain.ErrAuthorityUnreachable) {
		s.log.Info("credit note issue deferred, authority unreachable",
			zap.String("credit_note_id", id.String()))
		return
	}
	s.log.Warn("credit note issue failed",
		zap.String("credit_note_id", id.String()),
		zap.Error(err))
}

func (s *Service) process(ctx context.Context, ret *domain.Return) error {
	switch ret.Kind {
	case domain.KindGoodsReturn:
		return s.processGoodsReturn(ctx, ret)
	case domain.KindInvoiceCorrection:
		return s.processInvoiceCorrection(ctx, ret)
	case domain.KindOrderAdjustment:
		return s.processOrderAdjustment(ctx, ret)
	}
	return domain.ErrInvalidKind
}

// processGoodsReturn books one warehouse receipt per line and releases the
// invoiced quantities on the origin invoice, all in one transaction. A
// failure on either side leaves no receipt behind.
func (s *Service) processGoodsReturn(ctx context.Context, ret *domain.Return) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range ret.Lines {
			line := &ret.Lines[i]
			receipt, err := s.warehouse.CreateReceipt(ctx, tx, warehouse.CreateReceiptRequest{
				ReturnID:     ret.ID,
				ReturnLineID: line.ID,
				Description:  line.Description,
				Quantity:     line.Quantity,
				Condition:    line.Condition,
			})
			if err != nil {
				return err
			}
			receiptID := receipt.ID
			line.ReceiptID = &receiptID
			if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
				return err
			}
		}
		return s.releaseInvoicedQuantities(ctx, tx, ret)
	})
}

// processInvoiceCorrection voids the origin invoice when every line comes
// back in full. A partial correction, or an invoice that can no longer be
// voided because payments were taken, only adjusts the line counters.
func (s *Service) processInvoiceCorrection(ctx context.Context, ret *domain.Return) error {
	invoice, err := s.invoices.GetByID(ctx, invoicedomain.GetInvoiceRequest{ID: ret.InvoiceID.String()})
	if err != nil {
		return err
	}

	returned := make(map[snowflake.ID]decimal.Decimal, len(ret.Lines))
	for _, line := range ret.Lines {
		if line.InvoiceLineID != nil {
			returned[*line.InvoiceLineID] = returned[*line.InvoiceLineID].Add(line.Quantity)
		}
	}

	full := true
	for _, line := range invoice.Lines {
		if !returned[line.ID].Equal(line.Quantity) {
			full = false
			break
		}
	}

	if full {
		_, err := s.invoices.Void(ctx, invoicedomain.VoidInvoiceRequest{
			ID:     ret.InvoiceID.String(),
			Reason: fmt.Sprintf("corrected by return %s", ret.Number),
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, invoicedomain.ErrIllegalTransition) {
			return err
		}
		// Fully paid invoices cannot be voided anymore; fall through to
		// the counter adjustment.
	}
	return s.releaseInvoicedQuantities(ctx, nil, ret)
}

// processOrderAdjustment shrinks the open quantities of the origin order. All
// lines are validated against the current order state first so a violation on
// any line leaves the order untouched.
func (s *Service) processOrderAdjustment(ctx context.Context, ret *domain.Return) error {
	order, err := s.orders.GetByID(ctx, orderdomain.GetOrderRequest{ID: ret.OrderID.String()})
	if err != nil {
		return err
	}
	if order.Status != orderdomain.OrderStatusOpen {
		return domain.ErrOriginNotEligible
	}

	sources := make(map[snowflake.ID]orderdomain.OrderLine, len(order.Lines))
	for _, line := range order.Lines {
		sources[line.ID] = line
	}
	for _, line := range ret.Lines {
		if line.OrderLineID == nil {
			return domain.ErrInvalidLines
		}
		source, ok := sources[*line.OrderLineID]
		if !ok || source.Removed {
			return domain.ErrInvalidLines
		}
		if line.Quantity.GreaterThan(source.Remaining()) {
			return domain.ErrQuantityExceeded
		}
	}

	for _, line := range ret.Lines {
		if _, err := s.orders.AdjustLineQuantity(ctx, orderdomain.AdjustLineQuantityRequest{
			OrderID:  ret.OrderID.String(),
			LineID:   line.OrderLineID.String(),
			Quantity: line.Quantity,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) releaseInvoicedQuantities(ctx context.Context, tx *gorm.DB, ret *domain.Return) error {
	for _, line := range ret.Lines {
		if line.InvoiceLineID == nil {
			continue
		}
		if err := s.invoices.MarkLineReturned(ctx, tx, invoicedomain.MarkLineReturnedRequest{
			InvoiceID: *ret.InvoiceID,
			LineID:    *line.InvoiceLineID,
			Quantity:  line.Quantity,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) revert(ctx context.Context, id snowflake.ID) {
	ok, err := s.repo.TransitionStatus(ctx, s.db, id, domain.StatusInProcess, domain.StatusApproved)
	if err != nil || !ok {
		s.log.Warn("could not roll back return to APPROVED",
			zap.String("return_id", id.String()),
			zap.Error(err))
	}
}
