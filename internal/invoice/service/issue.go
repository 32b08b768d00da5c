package service

import (
	"context"
	"fmt"
	"time"

	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	"github.com/arandulabs/kuatia/internal/fiscal/cdc"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Issue runs the full pipeline for one invoice: allocate number and control
// code (exactly once), build and sign the XML, then submit. A GENERATED
// invoice whose earlier submission failed in transport is resubmitted with
// the same control code.
func (s *Service) Issue(ctx context.Context, req domain.IssueInvoiceRequest) (domain.Invoice, error) {
	invoice, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}

	switch invoice.Status {
	case domain.StatusDraft:
		prepared, err := s.prepare(ctx, invoice)
		if err != nil {
			return domain.Invoice{}, err
		}
		return s.submit(ctx, prepared)
	case domain.StatusGenerated:
		// retry path, artifacts already exist
		return s.submit(ctx, *invoice)
	case domain.StatusSubmitted:
		return domain.Invoice{}, domain.ErrAlreadySubmitted
	case domain.StatusApproved, domain.StatusPaid, domain.StatusPartiallyPaid:
		return domain.Invoice{}, domain.ErrInvoiceImmutable
	default:
		return domain.Invoice{}, domain.ErrIllegalTransition
	}
}

// prepare allocates numbering and produces the signed document. After this
// step the number and control code never change again.
func (s *Service) prepare(ctx context.Context, invoice *domain.Invoice) (domain.Invoice, error) {
	recipient, err := s.recipient(ctx, invoice.CustomerID)
	if err != nil {
		return domain.Invoice{}, err
	}

	docType := cdc.DocTypeInvoice
	scope := "invoice"
	if invoice.Kind == domain.KindCreditNote {
		docType = cdc.DocTypeCreditNote
		scope = "creditnote"
	}

	seq, err := s.allocator.Next(ctx, fmt.Sprintf("%s:%s:%s", scope, invoice.Establishment, invoice.PointOfSale))
	if err != nil {
		return domain.Invoice{}, err
	}
	number := fmt.Sprintf("%07d", seq)

	securityCode, err := cdc.NewSecurityCode()
	if err != nil {
		return domain.Invoice{}, err
	}

	issuedAt := time.Now().UTC()
	code, err := cdc.Generate(cdc.Input{
		IssuerRUC:     s.cfg.Issuer.RUC,
		Establishment: invoice.Establishment,
		PointOfSale:   invoice.PointOfSale,
		DocumentType:  docType,
		Sequence:      seq,
		TaxpayerType:  s.cfg.Issuer.TaxpayerType,
		IssuedAt:      issuedAt,
		EmissionMode:  s.cfg.Issuer.EmissionMode,
		SecurityCode:  securityCode,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	built, err := s.builder.Build(document.Input{
		CDC:          code,
		DocType:      docType,
		Number:       number,
		IssuedAt:     issuedAt,
		Currency:     invoice.Currency,
		SecurityCode: securityCode,
		Recipient:    recipient,
		Lines:        documentLines(invoice.Lines),
		Totals: document.Totals{
			Subtotal: invoice.Subtotal,
			Tax5:     invoice.Tax5,
			Tax10:    invoice.Tax10,
			Discount: invoice.Discount,
			Total:    invoice.Total,
		},
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	signed, err := s.signer.Sign(built.XML, built.ID)
	if err != nil {
		return domain.Invoice{}, err
	}

	// Consume open order quantities the first time the draft materializes.
	if err := s.consumeOrderLines(ctx, invoice); err != nil {
		return domain.Invoice{}, err
	}

	ok, err := s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusDraft, domain.StatusGenerated)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !ok {
		return domain.Invoice{}, domain.ErrIllegalTransition
	}
	if err := s.repo.Update(ctx, s.db, invoice.ID, map[string]any{
		"number":        number,
		"cdc":           code,
		"security_code": securityCode,
		"issued_at":     issuedAt,
		"unsigned_xml":  string(built.XML),
		"signed_xml":    string(signed),
	}); err != nil {
		return domain.Invoice{}, err
	}

	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", number),
		zap.String("cdc", code))

	invoice.Status = domain.StatusGenerated
	invoice.Number = number
	invoice.CDC = code
	invoice.SecurityCode = securityCode
	invoice.IssuedAt = &issuedAt
	invoice.UnsignedXML = string(built.XML)
	invoice.SignedXML = string(signed)
	return *invoice, nil
}

func (s *Service) recipient(ctx context.Context, customerID snowflake.ID) (document.Party, error) {
	customer, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: customerID.String()})
	if err != nil {
		return document.Party{}, err
	}
	return document.Party{
		RUC:     customer.TaxID,
		Name:    customer.Name,
		Address: customer.Address,
		Email:   customer.Email,
	}, nil
}

func (s *Service) consumeOrderLines(ctx context.Context, invoice *domain.Invoice) error {
	if invoice.OrderID == nil {
		return nil
	}
	for _, line := range invoice.Lines {
		if line.OrderLineID == nil {
			continue
		}
		err := s.orders.MarkLineInvoiced(ctx, orderdomain.MarkLineInvoicedRequest{
			OrderID:  invoice.OrderID.String(),
			LineID:   line.OrderLineID.String(),
			Quantity: line.Quantity,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func documentLines(lines []domain.InvoiceLine) []document.Line {
	out := make([]document.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, document.Line{
			Code:        line.ProductCode,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			TaxRate:     line.TaxRate,
		})
	}
	return out
}

// submit performs the guarded GENERATED -> SUBMITTED transition and sends
// the signed document. A transport failure puts the invoice back to
// GENERATED so the same control code can be resubmitted.
func (s *Service) submit(ctx context.Context, invoice domain.Invoice) (domain.Invoice, error) {
	token, ok, err := s.locker.Acquire(ctx, invoice.CDC)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !ok {
		return domain.Invoice{}, domain.ErrLocked
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), invoice.CDC, token); err != nil {
			s.log.Warn("submit lock release failed", zap.String("cdc", invoice.CDC), zap.Error(err))
		}
	}()

	// The conditional update is the authoritative double-submit guard; the
	// redis lock above only narrows the race window across instances.
	ok, err = s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusGenerated, domain.StatusSubmitted)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !ok {
		return domain.Invoice{}, domain.ErrAlreadySubmitted
	}

	s.metrics.RecordSubmission(ctx, string(invoice.Kind))
	resp, err := s.authority.Submit(ctx, []byte(invoice.SignedXML))
	if err != nil {
		return domain.Invoice{}, err
	}

	if resp.CommFailure() {
		s.metrics.RecordTransportFailure(ctx, "submit")
		if _, terr := s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusSubmitted, domain.StatusGenerated); terr != nil {
			return domain.Invoice{}, terr
		}
		s.log.Warn("authority unreachable, invoice stays retry-eligible",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("cdc", invoice.CDC),
			zap.String("detail", resp.Message))
		return domain.Invoice{}, domain.ErrAuthorityUnreachable
	}

	return s.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
		Code:     resp.Code,
		Message:  resp.Message,
		Protocol: resp.Protocol,
	})
}

// ApplyAuthorityResponse applies a submit or query outcome. It is idempotent:
// re-applying the result an invoice already carries is a no-op, and illegal
// transitions leave the row untouched.
func (s *Service) ApplyAuthorityResponse(ctx context.Context, id snowflake.ID, result domain.AuthorityResult) (domain.Invoice, error) {
	if result.Code == "" || result.Code == sifen.CodeCommFailure {
		return domain.Invoice{}, domain.ErrAuthorityUnreachable
	}

	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	switch invoice.Status {
	case domain.StatusSubmitted:
		// the one state responses apply to
	case domain.StatusApproved, domain.StatusRejected, domain.StatusPaid, domain.StatusPartiallyPaid:
		if invoice.AuthorityCode == result.Code && invoice.Protocol == result.Protocol {
			return *invoice, nil
		}
		return domain.Invoice{}, domain.ErrIllegalTransition
	default:
		return domain.Invoice{}, domain.ErrIllegalTransition
	}

	if sifen.Approved(result.Code) {
		return s.applyApproval(ctx, invoice, result)
	}
	return s.applyRejection(ctx, invoice, result)
}

func (s *Service) applyApproval(ctx context.Context, invoice *domain.Invoice, result domain.AuthorityResult) (domain.Invoice, error) {
	var issuedAt time.Time
	if invoice.IssuedAt != nil {
		issuedAt = *invoice.IssuedAt
	}
	qrURL, qrImage, err := s.buildQR(invoice.CDC, issuedAt)
	if err != nil {
		return domain.Invoice{}, err
	}

	ok, err := s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusSubmitted, domain.StatusApproved)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !ok {
		return domain.Invoice{}, domain.ErrIllegalTransition
	}
	if err := s.repo.Update(ctx, s.db, invoice.ID, map[string]any{
		"authority_code":    result.Code,
		"authority_message": result.Message,
		"protocol":          result.Protocol,
		"qr_url":            qrURL,
		"qr_image":          qrImage,
		"balance":           invoice.Total,
	}); err != nil {
		return domain.Invoice{}, err
	}

	s.metrics.RecordApproval(ctx, string(invoice.Kind))
	s.log.Info("invoice approved",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("cdc", invoice.CDC),
		zap.String("protocol", result.Protocol))

	invoice.Status = domain.StatusApproved
	invoice.AuthorityCode = result.Code
	invoice.AuthorityMessage = result.Message
	invoice.Protocol = result.Protocol
	invoice.QRURL = qrURL
	invoice.QRImage = qrImage
	invoice.Balance = invoice.Total
	return *invoice, nil
}

func (s *Service) applyRejection(ctx context.Context, invoice *domain.Invoice, result domain.AuthorityResult) (domain.Invoice, error) {
	ok, err := s.repo.TransitionStatus(ctx, s.db, invoice.ID, domain.StatusSubmitted, domain.StatusRejected)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !ok {
		return domain.Invoice{}, domain.ErrIllegalTransition
	}
	// Code and message stored verbatim; no QR for rejected documents.
	if err := s.repo.Update(ctx, s.db, invoice.ID, map[string]any{
		"authority_code":    result.Code,
		"authority_message": result.Message,
	}); err != nil {
		return domain.Invoice{}, err
	}

	s.metrics.RecordRejection(ctx, result.Code)
	s.log.Warn("invoice rejected",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("cdc", invoice.CDC),
		zap.String("code", result.Code),
		zap.String("message", result.Message))

	invoice.Status = domain.StatusRejected
	invoice.AuthorityCode = result.Code
	invoice.AuthorityMessage = result.Message
	return *invoice, nil
}

// Reconcile polls the authority for every SUBMITTED invoice and applies
// whatever outcome it reports. Unreachable or still-processing documents are
// left as they are.
func (s *Service) Reconcile(ctx context.Context, limit int) (domain.ReconcileReport, error) {
	invoices, err := s.repo.ListByStatus(ctx, s.db, domain.StatusSubmitted, limit)
	if err != nil {
		return domain.ReconcileReport{}, err
	}

	report := domain.ReconcileReport{}
	for _, invoice := range invoices {
		report.Checked++

		resp, err := s.authority.QueryByCDC(ctx, invoice.CDC)
		if err != nil {
			return report, err
		}
		if resp.CommFailure() {
			s.metrics.RecordTransportFailure(ctx, "query")
			report.Unreached++
			continue
		}

		switch {
		case resp.Approved():
			if _, err := s.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
				Code:     resp.Code,
				Message:  resp.Message,
				Protocol: resp.Protocol,
			}); err != nil {
				return report, err
			}
			report.Approved++
		case resp.Status == "Rechazado":
			if _, err := s.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
				Code:    resp.Code,
				Message: resp.Message,
			}); err != nil {
				return report, err
			}
			report.Rejected++
		default:
			report.Pending++
		}
	}
	return report, nil
}
