package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type transferLeg struct {
	from, to uuid.UUID
	amount   uint64
}

// transferBatch remembers the transfers of one transition so they can be reversed.
type transferBatch struct {
	m    *Machine
	done []transferLeg
}

func (m *Machine) newBatch() *transferBatch {
	return &transferBatch{m: m}
}

func (b *transferBatch) move(ctx context.Context, from, to uuid.UUID, amount uint64) error {
	if err := b.m.ledger.Transfer(ctx, from, to, amount); err != nil {
		return fmt.Errorf("transfer %d from %s to %s: %w", amount, from, to, err)
	}
	b.done = append(b.done, transferLeg{from: from, to: to, amount: amount})
	return nil
}

// rollback reverses completed transfers newest first and returns cause,
// annotated with any reversal that failed.
func (b *transferBatch) rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var failed []error
	for i := len(b.done) - 1; i >= 0; i-- {
		leg := b.done[i]
		if err := b.m.ledger.Transfer(ctx, leg.to, leg.from, leg.amount); err != nil {
			b.m.log.WithFields(logrus.Fields{
				"from":   leg.to,
				"to":     leg.from,
				"amount": leg.amount,
			}).WithError(err).Error("failed to reverse transfer, manual reconciliation required")
			failed = append(failed, err)
		}
	}
	b.done = nil
	if len(failed) > 0 {
		return fmt.Errorf("%w; rollback error: %v", cause, failed)
	}
	return cause
}
