package service

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/arandulabs/kuatia/internal/fiscal/cdc"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueApprovesInvoice(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	draft := draftInvoice(t, env)

	invoice, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, invoice.Status)
	assert.Equal(t, "0000001", invoice.Number)
	assert.Len(t, invoice.CDC, cdc.CodeLength)
	assert.True(t, cdc.Verify(invoice.CDC))
	assert.Equal(t, "0260", invoice.AuthorityCode)
	assert.Equal(t, "76200001", invoice.Protocol)
	assert.True(t, invoice.Balance.Equal(invoice.Total))
	assert.Contains(t, invoice.QRURL, invoice.CDC)
	assert.NotEmpty(t, invoice.QRImage)
	require.NotNil(t, invoice.IssuedAt)

	// The verification link also carries the emission timestamp, hex encoded.
	emission := hex.EncodeToString([]byte(invoice.IssuedAt.Format("2006-01-02T15:04:05")))
	assert.Contains(t, invoice.QRURL, "dFeEmiDE="+emission)

	parsed, err := cdc.Parse(invoice.CDC)
	require.NoError(t, err)
	assert.Equal(t, cdc.DocTypeInvoice, parsed.DocumentType)
	assert.Equal(t, int64(1), parsed.Sequence)

	artifacts, err := env.svc.Artifacts(ctx, domain.GetInvoiceRequest{ID: invoice.ID.String()})
	require.NoError(t, err)
	assert.Contains(t, artifacts.UnsignedXML, invoice.CDC)
	assert.Contains(t, artifacts.SignedXML, "signed:"+invoice.CDC)

	// The signed bytes went to the authority untouched.
	require.Len(t, env.authority.submitted, 1)
	assert.Equal(t, artifacts.SignedXML, string(env.authority.submitted[0]))
}

func TestIssueRejectedStoresVerbatim(t *testing.T) {
	env := setupEnv(t)
	env.authority.submitResp = &sifen.Response{Code: "0420", Message: "CDC invalido"}
	draft := draftInvoice(t, env)

	invoice, err := env.svc.Issue(context.Background(), domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejected, invoice.Status)
	assert.Equal(t, "0420", invoice.AuthorityCode)
	assert.Equal(t, "CDC invalido", invoice.AuthorityMessage)
	assert.Empty(t, invoice.QRURL)
	assert.Empty(t, invoice.QRImage)
	assert.True(t, invoice.Balance.IsZero())
}

func TestIssueTransportFailureKeepsRetryEligible(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.authority.submitResp = &sifen.Response{Code: sifen.CodeCommFailure, Message: "connection refused"}
	draft := draftInvoice(t, env)

	_, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: draft.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAuthorityUnreachable)

	generated := reload(t, env, draft.ID)
	assert.Equal(t, domain.StatusGenerated, generated.Status)
	assert.NotEmpty(t, generated.CDC)
	assert.Equal(t, "0000001", generated.Number)

	// The retry reuses the allocated number and control code.
	env.authority.submitResp = nil
	invoice, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, invoice.Status)
	assert.Equal(t, generated.CDC, invoice.CDC)
	assert.Equal(t, generated.Number, invoice.Number)
}

func TestIssueGuards(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	invoice := approvedInvoice(t, env)

	_, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: invoice.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvoiceImmutable)

	voided := draftInvoice(t, env)
	_, err = env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: voided.ID.String()})
	require.NoError(t, err)
	_, err = env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: voided.ID.String()})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestApplyAuthorityResponseIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	invoice := approvedInvoice(t, env)

	// Re-applying the result the invoice already carries is a no-op.
	same, err := env.svc.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
		Code: invoice.AuthorityCode, Message: invoice.AuthorityMessage, Protocol: invoice.Protocol,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, same.Status)

	// A conflicting result must not rewrite the stored outcome.
	_, err = env.svc.ApplyAuthorityResponse(ctx, invoice.ID, domain.AuthorityResult{
		Code: "0420", Message: "CDC invalido",
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	after := reload(t, env, invoice.ID)
	assert.Equal(t, domain.StatusApproved, after.Status)
	assert.Equal(t, "0260", after.AuthorityCode)

	draft := draftInvoice(t, env)
	_, err = env.svc.ApplyAuthorityResponse(ctx, draft.ID, domain.AuthorityResult{Code: "0260"})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = env.svc.ApplyAuthorityResponse(ctx, draft.ID, domain.AuthorityResult{Code: sifen.CodeCommFailure})
	assert.ErrorIs(t, err, domain.ErrAuthorityUnreachable)
}

func TestIssueConsumesOrderLines(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	customer := createCustomer(t, env)

	order, err := env.orders.Create(ctx, orderdomain.CreateOrderRequest{
		CustomerID: customer.ID.String(),
		Lines: []orderdomain.CreateOrderLine{
			{Description: "Ladrillo comun", Quantity: decimal.NewFromInt(500), UnitPrice: decimal.NewFromInt(1), TaxRate: 10},
		},
	})
	require.NoError(t, err)

	draft, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		OrderID:    order.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, draft.Lines, 1)
	assert.True(t, draft.Lines[0].Quantity.Equal(decimal.NewFromInt(500)))

	// Drafting alone does not consume the order.
	before, err := env.orders.GetByID(ctx, orderdomain.GetOrderRequest{ID: order.ID.String()})
	require.NoError(t, err)
	assert.True(t, before.Lines[0].InvoicedQty.IsZero())

	_, err = env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)

	after, err := env.orders.GetByID(ctx, orderdomain.GetOrderRequest{ID: order.ID.String()})
	require.NoError(t, err)
	assert.True(t, after.Lines[0].InvoicedQty.Equal(decimal.NewFromInt(500)))

	// Nothing remains open, so a second order-based draft has no lines.
	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		OrderID:    order.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)
}

func TestReconcileAppliesQueryOutcomes(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	// Batch submission leaves members SUBMITTED until a poll or a
	// reconciliation resolves them.
	a := draftInvoice(t, env)
	b := draftInvoice(t, env)
	_, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{a.ID.String(), b.ID.String()},
	})
	require.NoError(t, err)

	report, err := env.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Checked: 2, Approved: 2}, report)
	assert.Equal(t, domain.StatusApproved, reload(t, env, a.ID).Status)
	assert.Equal(t, domain.StatusApproved, reload(t, env, b.ID).Status)
}

func TestReconcileRejectionAndPending(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	invoice := draftInvoice(t, env)
	_, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{invoice.ID.String()},
	})
	require.NoError(t, err)

	env.authority.statusResp = &sifen.StatusResponse{Code: "0362", Message: "En proceso", Status: "En proceso"}
	report, err := env.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Checked: 1, Pending: 1}, report)
	assert.Equal(t, domain.StatusSubmitted, reload(t, env, invoice.ID).Status)

	env.authority.statusResp = &sifen.StatusResponse{Code: "0420", Message: "CDC invalido", Status: "Rechazado"}
	report, err = env.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Checked: 1, Rejected: 1}, report)
	assert.Equal(t, domain.StatusRejected, reload(t, env, invoice.ID).Status)
}

func TestReconcileUnreachableLeavesSubmitted(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	invoice := draftInvoice(t, env)
	_, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{invoice.ID.String()},
	})
	require.NoError(t, err)

	env.authority.statusResp = &sifen.StatusResponse{Code: sifen.CodeCommFailure, Message: "timeout"}
	report, err := env.svc.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileReport{Checked: 1, Unreached: 1}, report)
	assert.Equal(t, domain.StatusSubmitted, reload(t, env, invoice.ID).Status)
}

func TestSecurityCodeEmbeddedInDocument(t *testing.T) {
	env := setupEnv(t)
	invoice := approvedInvoice(t, env)
	require.NotEmpty(t, invoice.SecurityCode)

	artifacts, err := env.svc.Artifacts(context.Background(), domain.GetInvoiceRequest{ID: invoice.ID.String()})
	require.NoError(t, err)
	assert.True(t, strings.Contains(artifacts.UnsignedXML, invoice.SecurityCode))
	assert.True(t, strings.HasSuffix(invoice.CDC[:43], invoice.SecurityCode))
}
