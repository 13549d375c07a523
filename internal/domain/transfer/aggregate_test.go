package transfer

import (
	"context"
	"testing"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Initiate(t *testing.T) {
	svc := NewService(store.NewEventStore(nil))

	tr, err := svc.Initiate(context.Background(), "acct-a", "acct-b", 500, "rent")

	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, StatusPending, tr.Status)
	assert.Equal(t, int64(500), tr.Amount)
	assert.Equal(t, 1, tr.Version)
}

func TestService_Initiate_Invalid(t *testing.T) {
	svc := NewService(store.NewEventStore(nil))
	ctx := context.Background()

	_, err := svc.Initiate(ctx, "acct-a", "acct-a", 500, "self")
	assert.ErrorIs(t, err, ErrInvalidTransfer)

	_, err = svc.Initiate(ctx, "acct-a", "acct-b", 0, "zero")
	assert.ErrorIs(t, err, ErrInvalidTransfer)
}

func TestService_CompleteIsTerminal(t *testing.T) {
	svc := NewService(store.NewEventStore(nil))
	ctx := context.Background()

	tr, err := svc.Initiate(ctx, "acct-a", "acct-b", 500, "rent")
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, tr.ID))

	assert.ErrorIs(t, svc.Complete(ctx, tr.ID), ErrInvalidStatus)
	assert.ErrorIs(t, svc.Fail(ctx, tr.ID, "late"), ErrInvalidStatus)
}

func TestService_FailIsTerminal(t *testing.T) {
	svc := NewService(store.NewEventStore(nil))
	ctx := context.Background()

	tr, err := svc.Initiate(ctx, "acct-a", "acct-b", 500, "rent")
	require.NoError(t, err)

	require.NoError(t, svc.Fail(ctx, tr.ID, "insufficient funds"))

	loaded, err := svc.loadTransfer(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)
	assert.Equal(t, "insufficient funds", loaded.Reason)

	assert.ErrorIs(t, svc.Complete(ctx, tr.ID), ErrInvalidStatus)
}

func TestService_UnknownTransfer(t *testing.T) {
	svc := NewService(store.NewEventStore(nil))

	err := svc.Complete(context.Background(), "no-such-transfer")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}
