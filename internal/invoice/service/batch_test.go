package service

import (
	"context"
	"testing"

	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBatchMarksMembersSubmitted(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	a := draftInvoice(t, env)
	b := draftInvoice(t, env)

	batch, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{a.ID.String(), b.ID.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BatchStatusPending, batch.Status)
	assert.Equal(t, "7000001", batch.BatchNumber)
	assert.Len(t, env.authority.submitted, 2)

	for _, id := range []string{a.ID.String(), b.ID.String()} {
		member, err := env.svc.GetByID(ctx, domain.GetInvoiceRequest{ID: id})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSubmitted, member.Status)
		assert.NotEmpty(t, member.CDC)
		require.NotNil(t, member.BatchID)
		assert.Equal(t, batch.ID, *member.BatchID)
	}
}

func TestSubmitBatchGuards(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{})
	assert.ErrorIs(t, err, domain.ErrNothingToSubmit)

	approved := approvedInvoice(t, env)
	_, err = env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{approved.ID.String()},
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestSubmitBatchCommFailureLeavesMembersRetryEligible(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.authority.batchResp = &sifen.BatchResponse{Code: sifen.CodeCommFailure, Message: "connection refused"}
	draft := draftInvoice(t, env)

	_, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{draft.ID.String()},
	})
	assert.ErrorIs(t, err, domain.ErrAuthorityUnreachable)

	member := reload(t, env, draft.ID)
	assert.Equal(t, domain.StatusGenerated, member.Status)
	assert.NotEmpty(t, member.CDC)
}

func TestGetBatchAppliesResults(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	a := draftInvoice(t, env)
	b := draftInvoice(t, env)

	batch, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{a.ID.String(), b.ID.String()},
	})
	require.NoError(t, err)

	env.authority.batchStatus = &sifen.BatchStatusResponse{
		Code:    "0362",
		Message: "Procesado",
		Results: []sifen.BatchItemResult{
			{CDC: reload(t, env, a.ID).CDC, Code: "0260", Message: "Autorizado el DE", Protocol: "76200777"},
			{CDC: reload(t, env, b.ID).CDC, Code: "0420", Message: "CDC invalido"},
		},
	}

	done, members, err := env.svc.GetBatch(ctx, domain.GetBatchRequest{BatchNumber: batch.BatchNumber})
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusDone, done.Status)
	assert.Equal(t, "0362", done.Code)
	require.Len(t, members, 2)

	approved := reload(t, env, a.ID)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, "76200777", approved.Protocol)
	assert.NotEmpty(t, approved.QRImage)

	rejected := reload(t, env, b.ID)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "CDC invalido", rejected.AuthorityMessage)
}

func TestGetBatchInProcessStaysPending(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	draft := draftInvoice(t, env)

	batch, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{draft.ID.String()},
	})
	require.NoError(t, err)

	// The zero-value authority reports the batch as still in process.
	pending, members, err := env.svc.GetBatch(ctx, domain.GetBatchRequest{BatchNumber: batch.BatchNumber})
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPending, pending.Status)
	require.Len(t, members, 1)
	assert.Equal(t, domain.StatusSubmitted, members[0].Status)
}

func TestPollPendingBatches(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	draft := draftInvoice(t, env)

	batch, err := env.svc.SubmitBatch(ctx, domain.SubmitBatchRequest{
		InvoiceIDs: []string{draft.ID.String()},
	})
	require.NoError(t, err)

	// Still in process: nothing completes.
	done, err := env.svc.PollPendingBatches(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, done)

	env.authority.batchStatus = &sifen.BatchStatusResponse{
		Code: "0362",
		Results: []sifen.BatchItemResult{
			{CDC: reload(t, env, draft.ID).CDC, Code: "0260", Protocol: "76200888"},
		},
	}
	done, err = env.svc.PollPendingBatches(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	final, _, err := env.svc.GetBatch(ctx, domain.GetBatchRequest{BatchNumber: batch.BatchNumber})
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusDone, final.Status)
	assert.Equal(t, domain.StatusApproved, reload(t, env, draft.ID).Status)
}
