package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medtrace/diagledger/pkg/core"
)

const defaultConfirmTimeout = 30 * time.Second

// recordProgram describes the append/read program published to the
// network: the record schema the per-request append path writes against.
type recordProgram struct {
	Name    string   `cbor:"name"`
	Version uint16   `cbor:"version"`
	Fields  []string `cbor:"fields"`
}

// Bootstrap publishes the ledger's append/read program and returns its
// address. This is a one-time provisioning step per deployment, invoked at
// startup and deliberately decoupled from the per-request append path.
// It requires the account to hold balance; a zero balance fails with
// core.ErrInsufficientFunds, which is terminal and needs operator action.
func (c *Client) Bootstrap(ctx context.Context) (Endpoint, error) {
	balance, err := c.net.Balance(ctx, c.acct.Identity)
	if err != nil {
		return Endpoint{}, fmt.Errorf("check account balance: %w", err)
	}
	if balance == 0 {
		return Endpoint{}, fmt.Errorf("%w: account %s cannot fund provisioning", core.ErrInsufficientFunds, c.acct.Identity)
	}

	c.log.Info("publishing ledger record program",
		zap.String("account", c.acct.Identity),
		zap.Uint64("balance", balance))

	program, err := c.encMode.Marshal(&recordProgram{
		Name:    "diagledger-record",
		Version: 1,
		Fields:  []string{"patient_id", "disease_type", "prediction", "data_digest", "image_digest"},
	})
	if err != nil {
		return Endpoint{}, fmt.Errorf("encode record program: %w", err)
	}

	ep, err := c.net.Publish(ctx, c.acct.Identity, program)
	if err != nil {
		return Endpoint{}, fmt.Errorf("publish record program: %w", err)
	}

	c.log.Info("ledger record program published", zap.String("address", ep.Address))
	return ep, nil
}
