package service

import (
	"context"
	"testing"

	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoiceComputesTotals(t *testing.T) {
	env := setupEnv(t)
	invoice := draftInvoice(t, env)

	assert.Equal(t, domain.StatusDraft, invoice.Status)
	assert.Equal(t, domain.KindSale, invoice.Kind)
	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(250)), "subtotal is %s", invoice.Subtotal)
	assert.True(t, invoice.Tax5.Equal(decimal.RequireFromString("2.5")), "tax5 is %s", invoice.Tax5)
	assert.True(t, invoice.Tax10.Equal(decimal.NewFromInt(20)), "tax10 is %s", invoice.Tax10)
	assert.True(t, invoice.TaxTotal.Equal(decimal.RequireFromString("22.5")))
	assert.True(t, invoice.Total.Equal(decimal.RequireFromString("272.5")), "total is %s", invoice.Total)

	require.Len(t, invoice.Lines, 2)
	for _, line := range invoice.Lines {
		assert.True(t, line.InvoicedQty.Equal(line.Quantity))
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	customer := createCustomer(t, env)

	_, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: "not-an-id"})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1), TaxRate: 7},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), Discount: decimal.NewFromInt(20), TaxRate: 10},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)
}

func TestRecordPaymentLifecycle(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	invoice := approvedInvoice(t, env)
	require.True(t, invoice.Balance.Equal(invoice.Total))

	paid, err := env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: invoice.ID.String(), Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, paid.Status)
	assert.True(t, paid.Balance.Equal(decimal.RequireFromString("172.5")), "balance is %s", paid.Balance)

	_, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: invoice.ID.String(), Amount: decimal.NewFromInt(200),
	})
	assert.ErrorIs(t, err, domain.ErrPaymentExceedsBalance)

	paid, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: invoice.ID.String(), Amount: decimal.RequireFromString("172.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.True(t, paid.Balance.IsZero())

	_, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: invoice.ID.String(), Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrNotPayable)
}

func TestRecordPaymentGuards(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	draft := draftInvoice(t, env)

	_, err := env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: draft.ID.String(), Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrNotPayable)

	_, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: draft.ID.String(), Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestVoidRules(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	draft := draftInvoice(t, env)
	voided, err := env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: draft.ID.String(), Reason: "duplicate entry"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVoided, voided.Status)
	assert.False(t, voided.RequiresAuthorityCancel)
	assert.Equal(t, "duplicate entry", voided.VoidReason)

	_, err = env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: draft.ID.String()})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	// Voiding an approved fiscal document flags it for authority-side
	// cancellation.
	approved := approvedInvoice(t, env)
	voided, err = env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: approved.ID.String(), Reason: "wrong recipient"})
	require.NoError(t, err)
	assert.True(t, voided.RequiresAuthorityCancel)

	// A partially paid document can still be voided and keeps the
	// authority-cancel flag.
	partial := approvedInvoice(t, env)
	_, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: partial.ID.String(), Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	voided, err = env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: partial.ID.String(), Reason: "customer dispute"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVoided, voided.Status)
	assert.True(t, voided.RequiresAuthorityCancel)

	// A fully paid document stays as it is.
	paid := approvedInvoice(t, env)
	_, err = env.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ID: paid.ID.String(), Amount: paid.Total,
	})
	require.NoError(t, err)
	_, err = env.svc.Void(ctx, domain.VoidInvoiceRequest{ID: paid.ID.String()})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestMarkLineReturned(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	invoice := approvedInvoice(t, env)
	line := invoice.Lines[0]

	require.NoError(t, env.svc.MarkLineReturned(ctx, nil, domain.MarkLineReturnedRequest{
		InvoiceID: invoice.ID,
		LineID:    line.ID,
		Quantity:  decimal.NewFromInt(1),
	}))

	after := reload(t, env, invoice.ID)
	for _, l := range after.Lines {
		if l.ID == line.ID {
			assert.True(t, l.InvoicedQty.Equal(line.InvoicedQty.Sub(decimal.NewFromInt(1))))
		}
	}

	err := env.svc.MarkLineReturned(ctx, nil, domain.MarkLineReturnedRequest{
		InvoiceID: invoice.ID,
		LineID:    line.ID,
		Quantity:  decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, domain.ErrReturnExceedsInvoiced)
}

func TestListInvoicesByStatus(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	draftInvoice(t, env)
	approvedInvoice(t, env)

	resp, err := env.svc.List(ctx, domain.ListInvoiceRequest{Status: "draft"})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, domain.StatusDraft, resp.Invoices[0].Status)

	resp, err = env.svc.List(ctx, domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)
}
