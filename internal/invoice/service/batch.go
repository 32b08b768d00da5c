package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// SubmitBatch sends a set of invoices through the asynchronous reception
// service. Drafts are prepared first, so every member carries a signed
// document before the batch leaves.
func (s *Service) SubmitBatch(ctx context.Context, req domain.SubmitBatchRequest) (domain.Batch, error) {
	if len(req.InvoiceIDs) == 0 {
		return domain.Batch{}, domain.ErrNothingToSubmit
	}

	invoices := make([]*domain.Invoice, 0, len(req.InvoiceIDs))
	docs := make([][]byte, 0, len(req.InvoiceIDs))
	for _, raw := range req.InvoiceIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			return domain.Batch{}, domain.ErrInvalidID
		}
		invoice, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return domain.Batch{}, err
		}
		if invoice == nil {
			return domain.Batch{}, domain.ErrNotFound
		}

		switch invoice.Status {
		case domain.StatusDraft:
			prepared, err := s.prepare(ctx, invoice)
			if err != nil {
				return domain.Batch{}, err
			}
			*invoice = prepared
		case domain.StatusGenerated:
		default:
			return domain.Batch{}, domain.ErrIllegalTransition
		}

		invoices = append(invoices, invoice)
		docs = append(docs, []byte(invoice.SignedXML))
	}

	resp, err := s.authority.SubmitBatch(ctx, docs)
	if err != nil {
		return domain.Batch{}, err
	}
	if resp.CommFailure() {
		s.metrics.RecordTransportFailure(ctx, "submit_batch")
		return domain.Batch{}, domain.ErrAuthorityUnreachable
	}
	if !resp.Accepted() {
		// The authority turned the whole container away; members remain
		// GENERATED and retry-eligible.
		return domain.Batch{}, domain.ErrNothingToSubmit
	}

	now := time.Now().UTC()
	batch := domain.Batch{
		ID:          s.genID.Generate(),
		BatchNumber: resp.BatchNumber,
		Status:      domain.BatchStatusPending,
		Code:        resp.Code,
		Message:     resp.Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertBatch(ctx, s.db, &batch); err != nil {
		return domain.Batch{}, err
	}

	for _, invoice := range invoices {
		ok, err := s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusGenerated, domain.StatusSubmitted)
		if err != nil {
			return domain.Batch{}, err
		}
		if !ok {
			continue
		}
		if err := s.repo.Update(ctx, s.db, invoice.ID, map[string]any{
			"batch_id": batch.ID,
		}); err != nil {
			return domain.Batch{}, err
		}
		s.metrics.RecordSubmission(ctx, string(invoice.Kind))
	}

	s.log.Info("batch submitted",
		zap.String("batch_number", batch.BatchNumber),
		zap.Int("documents", len(invoices)))
	return batch, nil
}

// GetBatch returns a batch and its member invoices, polling the authority
// first if results are still pending.
func (s *Service) GetBatch(ctx context.Context, req domain.GetBatchRequest) (domain.Batch, []domain.Invoice, error) {
	number := strings.TrimSpace(req.BatchNumber)
	if number == "" {
		return domain.Batch{}, nil, domain.ErrBatchNotFound
	}

	batch, err := s.repo.FindBatchByNumber(ctx, s.db, number)
	if err != nil {
		return domain.Batch{}, nil, err
	}
	if batch == nil {
		return domain.Batch{}, nil, domain.ErrBatchNotFound
	}

	if batch.Status == domain.BatchStatusPending {
		if err := s.pollBatch(ctx, batch); err != nil {
			return domain.Batch{}, nil, err
		}
	}

	members, err := s.repo.ListByBatch(ctx, s.db, batch.ID)
	if err != nil {
		return domain.Batch{}, nil, err
	}
	invoices := make([]domain.Invoice, 0, len(members))
	for _, member := range members {
		invoices = append(invoices, *member)
	}
	return *batch, invoices, nil
}

// pollBatch fetches the authority's verdicts and applies them per document.
// An in-process or unreachable batch stays PENDING.
func (s *Service) pollBatch(ctx context.Context, batch *domain.Batch) error {
	s.metrics.RecordBatchPoll(ctx)

	resp, err := s.authority.QueryBatch(ctx, batch.BatchNumber)
	if err != nil {
		return err
	}
	if resp.CommFailure() {
		s.metrics.RecordTransportFailure(ctx, "query_batch")
		return nil
	}
	if resp.InProcess {
		return nil
	}

	for _, item := range resp.Results {
		invoice, err := s.repo.FindByCDC(ctx, s.db, item.CDC)
		if err != nil {
			return err
		}
		if invoice == nil {
			s.log.Warn("batch result for unknown document",
				zap.String("batch_number", batch.BatchNumber),
				zap.String("cdc", item.CDC))
			continue
		}
		if _, err := s.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
			Code:     item.Code,
			Message:  item.Message,
			Protocol: item.Protocol,
		}); err != nil && !errors.Is(err, domain.ErrIllegalTransition) {
			return err
		}
	}

	if err := s.repo.UpdateBatch(ctx, s.db, batch.ID, map[string]any{
		"status":  domain.BatchStatusDone,
		"code":    resp.Code,
		"message": resp.Message,
	}); err != nil {
		return err
	}
	batch.Status = domain.BatchStatusDone
	batch.Code = resp.Code
	batch.Message = resp.Message
	return nil
}

// PollPendingBatches is the worker entry point; it polls up to limit pending
// batches and reports how many were completed.
func (s *Service) PollPendingBatches(ctx context.Context, limit int) (int, error) {
	batches, err := s.repo.ListPendingBatches(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, batch := range batches {
		if err := s.pollBatch(ctx, batch); err != nil {
			return done, err
		}
		if batch.Status == domain.BatchStatusDone {
			done++
		}
	}
	return done, nil
}
