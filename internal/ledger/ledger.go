// Package ledger moves value between accounts on behalf of game rooms.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientFunds means the source account cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTransferRejected means the ledger refused the transfer (frozen or unknown account, zero amount, ...).
	ErrTransferRejected = errors.New("transfer rejected")
	// ErrNoDestination means no payable account is registered for an identity.
	ErrNoDestination = errors.New("no destination account")
)

// Accounts opens, funds and inspects accounts. Opening an existing account
// credits it and marks it payable.
type Accounts interface {
	OpenAccount(ctx context.Context, account uuid.UUID, balance uint64) error
	AccountBalance(ctx context.Context, account uuid.UUID) (uint64, error)
}
