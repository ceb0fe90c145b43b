package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/ledger"
)

func TestClient_Bootstrap(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{PublishFee: 10})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	c := newTestClient(t, net, acct, core.LedgerConfig{})

	ep, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ep.Address)

	// Publishing again targets the same deployment.
	again, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	require.Equal(t, ep.Address, again.Address)

	balance, err := net.Balance(ctx, acct.Identity)
	require.NoError(t, err)
	require.EqualValues(t, 80, balance)
}

func TestClient_Bootstrap_InsufficientFunds(t *testing.T) {
	ctx := context.Background()

	t.Run("zero balance", func(t *testing.T) {
		net := ledger.NewSimNetwork(ledger.SimConfig{})
		acct := newTestAccount(t)
		net.RegisterAccount(acct, 0)

		c := newTestClient(t, net, acct, core.LedgerConfig{})

		_, err := c.Bootstrap(ctx)
		require.ErrorIs(t, err, core.ErrInsufficientFunds)
	})

	t.Run("fee exceeds balance", func(t *testing.T) {
		net := ledger.NewSimNetwork(ledger.SimConfig{PublishFee: 50})
		acct := newTestAccount(t)
		net.RegisterAccount(acct, 5)

		c := newTestClient(t, net, acct, core.LedgerConfig{})

		_, err := c.Bootstrap(ctx)
		require.ErrorIs(t, err, core.ErrInsufficientFunds)
	})
}

func TestSimNetwork_RejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{ConfirmLatency: time.Millisecond})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	imposter := newTestAccount(t)
	imposter.Identity = acct.Identity

	// A transaction signed with the wrong key must never enter the log.
	c := newTestClient(t, net, imposter, core.LedgerConfig{MaxAttempts: 2})
	_, err := c.Append(ctx, testRecord("PATIENT_FORGED"))
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.NotErrorIs(t, err, core.ErrAppendFailed)
	require.Equal(t, 0, net.Len())
}
