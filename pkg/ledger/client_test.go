package ledger_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/medtrace/diagledger/internal/testkit"
	"github.com/medtrace/diagledger/pkg/core"
	"github.com/medtrace/diagledger/pkg/ledger"
)

func newTestAccount(t *testing.T) ledger.Account {
	t.Helper()
	acct, err := ledger.NewAccount("hospital-01")
	require.NoError(t, err)
	return acct
}

func newTestClient(t *testing.T, net ledger.Network, acct ledger.Account, cfg core.LedgerConfig) *ledger.Client {
	t.Helper()
	c, err := ledger.New(ledger.Prm{
		Logger:  zaptest.NewLogger(t),
		Network: net,
		Account: acct,
		Config:  cfg,
	})
	require.NoError(t, err)
	return c
}

func testRecord(patient string) ledger.Record {
	return ledger.Record{
		PatientID:   patient,
		DiseaseType: "Diabetes",
		Prediction:  "Positive",
		DataDigest:  "Qm0000000000000000000000000000000000000000000000000000000000000000",
		ImageDigest: "Qm1111111111111111111111111111111111111111111111111111111111111111",
	}
}

func TestClient_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{ConfirmLatency: time.Millisecond})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	c := newTestClient(t, net, acct, core.LedgerConfig{})

	rec := testRecord("PATIENT_001")
	conf, err := c.Append(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, conf.TxID)
	require.NotEmpty(t, conf.RecordID)
	require.EqualValues(t, 0, conf.Sequence)

	got, err := c.Read(ctx, conf.RecordID)
	require.NoError(t, err)
	require.Equal(t, rec.PatientID, got.PatientID)
	require.Equal(t, rec.DiseaseType, got.DiseaseType)
	require.Equal(t, rec.Prediction, got.Prediction)
	require.Equal(t, rec.DataDigest, got.DataDigest)
	require.Equal(t, rec.ImageDigest, got.ImageDigest)
	require.Equal(t, acct.Identity, got.Submitter)
	require.False(t, got.Timestamp.IsZero())

	// Re-observing a confirmation yields the same transaction identifier.
	again, err := net.Confirm(ctx, conf.TxID)
	require.NoError(t, err)
	require.Equal(t, conf, again)
}

func TestClient_ConcurrentAppends_StrictSequenceOrder(t *testing.T) {
	ctx := context.Background()

	// Jitter makes confirmations arrive out of submission order.
	net := ledger.NewSimNetwork(ledger.SimConfig{
		ConfirmLatency: 2 * time.Millisecond,
		Jitter:         20 * time.Millisecond,
		Seed:           99,
	})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	c := newTestClient(t, net, acct, core.LedgerConfig{MaxAttempts: 5})

	const appends = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		sequences []uint64
	)
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conf, err := c.Append(ctx, testRecord("PATIENT_CONCURRENT"))
			require.NoError(t, err)

			mu.Lock()
			sequences = append(sequences, conf.Sequence)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, sequences, appends)
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	for i, seq := range sequences {
		require.EqualValues(t, i, seq, "sequences must be distinct and strictly increasing")
	}
	require.Equal(t, appends, net.Len())
}

func TestClient_RetryAfterSequenceConflict(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{ConfirmLatency: time.Millisecond})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	// The rival client shares the account and steals the sequence number
	// between the flaky client's acquisition and the network seeing its
	// transaction.
	rival := newTestClient(t, net, acct, core.LedgerConfig{})

	flaky := &testkit.FlakyNetwork{Network: net}
	var rivalOnce sync.Once
	flaky.OnSubmit = func(call int32) {
		rivalOnce.Do(func() {
			_, err := rival.Append(ctx, testRecord("PATIENT_RIVAL"))
			require.NoError(t, err)
		})
	}

	c := newTestClient(t, flaky, acct, core.LedgerConfig{MaxAttempts: 3})

	conf, err := c.Append(ctx, testRecord("PATIENT_RETRY"))
	require.NoError(t, err)

	// The conflicted submission was signed with sequence 0; the retry must
	// use a refreshed, different number, and exactly one record for this
	// patient must exist.
	require.EqualValues(t, 1, conf.Sequence)
	require.Equal(t, 2, net.Len())
	require.GreaterOrEqual(t, flaky.SubmitCalls.Load(), int32(2))

	got, err := c.Read(ctx, conf.RecordID)
	require.NoError(t, err)
	require.Equal(t, "PATIENT_RETRY", got.PatientID)
}

func TestClient_RetryAfterConfirmationTimeout(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{ConfirmLatency: time.Millisecond})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	flaky := &testkit.FlakyNetwork{Network: net, StallConfirms: 1}
	c := newTestClient(t, flaky, acct, core.LedgerConfig{
		MaxAttempts:    3,
		ConfirmTimeout: 50 * time.Millisecond,
	})

	conf, err := c.Append(ctx, testRecord("PATIENT_TIMEOUT"))
	require.NoError(t, err)

	// The first submission consumed sequence 0; the post-timeout retry was
	// signed with the refreshed sequence 1.
	require.EqualValues(t, 1, conf.Sequence)
	require.EqualValues(t, 2, flaky.SubmitCalls.Load())
}

func TestClient_AppendFailedAfterRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	flaky := &testkit.FlakyNetwork{Network: net, FailSubmits: 100}
	c := newTestClient(t, flaky, acct, core.LedgerConfig{MaxAttempts: 3})

	_, err := c.Append(ctx, testRecord("PATIENT_DOOMED"))
	require.ErrorIs(t, err, core.ErrAppendFailed)
	require.ErrorIs(t, err, testkit.ErrInjectedFault)

	var appendErr *ledger.AppendError
	require.ErrorAs(t, err, &appendErr)
	require.Equal(t, 3, appendErr.Attempts)
	require.Equal(t, 0, net.Len())
}

func TestClient_CancellationDoesNotAbandonSubmittedTransaction(t *testing.T) {
	net := ledger.NewSimNetwork(ledger.SimConfig{ConfirmLatency: 20 * time.Millisecond})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	ctx, cancel := context.WithCancel(context.Background())
	flaky := &testkit.FlakyNetwork{Network: net}
	flaky.OnSubmit = func(call int32) {
		// The caller walks away while the transaction is going out.
		cancel()
	}

	c := newTestClient(t, flaky, acct, core.LedgerConfig{ConfirmTimeout: 5 * time.Second})

	conf, err := c.Append(ctx, testRecord("PATIENT_ABANDONED"))
	require.NoError(t, err, "a submitted transaction must reach a terminal state")
	require.EqualValues(t, 0, conf.Sequence)
	require.Equal(t, 1, net.Len())
}

func TestClient_CancelledBeforeSubmissionStops(t *testing.T) {
	net := ledger.NewSimNetwork(ledger.SimConfig{})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	c := newTestClient(t, net, acct, core.LedgerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Append(ctx, testRecord("PATIENT_NEVER"))
	require.ErrorIs(t, err, core.ErrAppendFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, net.Len())
}

func TestClient_ReadNotFound(t *testing.T) {
	ctx := context.Background()
	net := ledger.NewSimNetwork(ledger.SimConfig{})
	acct := newTestAccount(t)
	net.RegisterAccount(acct, 100)

	c := newTestClient(t, net, acct, core.LedgerConfig{})

	_, err := c.Read(ctx, ledger.RecordID("no-such-record"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_New_Validation(t *testing.T) {
	acct := newTestAccount(t)

	_, err := ledger.New(ledger.Prm{Account: acct})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = ledger.New(ledger.Prm{Network: ledger.NewSimNetwork(ledger.SimConfig{})})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}
