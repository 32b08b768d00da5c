package service

import (
	"context"
	"testing"

	"github.com/arandulabs/kuatia/internal/fiscal/cdc"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCreditNote(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	original := approvedInvoice(t, env)
	line := original.Lines[0] // 2 x 100 at 10%

	returnID := snowflake.ID(76543210001)
	note, err := env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		ReturnID:          returnID,
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: line.ID, Quantity: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.KindCreditNote, note.Kind)
	assert.Equal(t, domain.StatusDraft, note.Status)
	require.NotNil(t, note.OriginalInvoiceID)
	assert.Equal(t, original.ID, *note.OriginalInvoiceID)
	require.NotNil(t, note.ReturnID)
	assert.Equal(t, returnID, *note.ReturnID)
	assert.Equal(t, original.CustomerID, note.CustomerID)
	assert.True(t, note.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, note.Total.Equal(decimal.NewFromInt(110)), "total is %s", note.Total)
}

func TestCreditNoteIssuesThroughSamePipeline(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	original := approvedInvoice(t, env)

	note, err := env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		ReturnID:          snowflake.ID(76543210002),
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: original.Lines[0].ID, Quantity: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)

	issued, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: note.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, issued.Status)
	// Credit notes number from their own sequence scope.
	assert.Equal(t, "0000001", issued.Number)

	parsed, err := cdc.Parse(issued.CDC)
	require.NoError(t, err)
	assert.Equal(t, cdc.DocTypeCreditNote, parsed.DocumentType)
	assert.NotEqual(t, original.CDC, issued.CDC)
}

func TestCreditNoteGuards(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	draft := draftInvoice(t, env)
	_, err := env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: draft.ID,
		ReturnID:          snowflake.ID(76543210003),
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: draft.Lines[0].ID, Quantity: decimal.NewFromInt(1)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrOriginalNotApproved)

	original := approvedInvoice(t, env)

	// A note with no return behind it is refused before anything is read.
	_, err = env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: original.Lines[0].ID, Quantity: decimal.NewFromInt(1)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrMissingReturnRef)

	_, err = env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		ReturnID:          snowflake.ID(76543210003),
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: snowflake.ID(12345), Quantity: decimal.NewFromInt(1)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)

	_, err = env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		ReturnID:          snowflake.ID(76543210003),
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: original.Lines[0].ID, Quantity: decimal.NewFromInt(99)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLines)
}

func TestCreditNoteBoundCheckedBeforeBuild(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	customer := createCustomer(t, env)

	// A discounted sale: crediting the full undiscounted quantity would
	// exceed what the customer actually paid.
	draft, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{Description: "Hierro 12mm", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100), Discount: decimal.NewFromInt(200), TaxRate: 10},
		},
	})
	require.NoError(t, err)
	original, err := env.svc.Issue(ctx, domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)

	before := len(env.authority.submitted)
	_, err = env.svc.CreateCreditNote(ctx, domain.CreateCreditNoteRequest{
		OriginalInvoiceID: original.ID,
		ReturnID:          snowflake.ID(76543210004),
		Lines: []domain.CreditNoteLine{
			{InvoiceLineID: original.Lines[0].ID, Quantity: decimal.NewFromInt(10)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrCreditExceedsOriginal)
	// Nothing was built or submitted for the rejected note.
	assert.Equal(t, before, len(env.authority.submitted))
}
