package room

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/escrow"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/sirupsen/logrus"
)

// SettleRoom pays the 50/30/20 split of the pool to the declared placements and
// finishes the room. Only the room authority may settle.
//
// Winners whose destination cannot be resolved yet are recorded as deferred and
// their share stays in escrow until ReconcilePayouts pays it. Rounding dust and
// the shares of empty slots go to the treasury. If any transfer fails, every
// transfer already made is reversed and the room stays Active.
func (m *Machine) SettleRoom(ctx context.Context, roomID uuid.UUID, proof Signer, placements []models.Placement) (models.Room, error) {
	const op = "settle"
	r, err := m.load(ctx, op, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !signedBy(proof, r.Authority) {
		return models.Room{}, opError(op, roomID, ErrUnauthorized)
	}
	if !r.IsSettleable() {
		return models.Room{}, opError(op, roomID, ErrRoomNotActive)
	}
	if err := checkPlacements(r, placements); err != nil {
		return models.Room{}, opError(op, roomID, err)
	}
	shares, err := escrow.ComputeShares(r.Pool)
	if err != nil {
		return models.Room{}, opError(op, roomID, err)
	}

	next := r.Clone()
	batch := m.newBatch()
	var distributed, deferred uint64
	for i, pl := range placements {
		amount := shares.Prizes[i]
		if !pl.Player.Valid || amount == 0 {
			continue
		}
		payout := models.Payout{Kind: models.PayoutPrize, Rank: i + 1, Recipient: pl.Player.UUID, Amount: amount}

		dest, err := m.resolver.Destination(ctx, pl.Player.UUID)
		switch {
		case errors.Is(err, ErrNoDestination):
			payout.Status = models.PayoutDeferred
			deferred += amount
		case err != nil:
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, fmt.Errorf("resolve winner %d: %w", i+1, err)))
		default:
			if err := batch.move(ctx, r.Escrow, dest, amount); err != nil {
				return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
			}
			payout.Recipient = dest
			payout.Status = models.PayoutPaid
		}
		distributed += amount
		next.Payouts = append(next.Payouts, payout)
	}

	residual, err := escrow.Sub(r.Pool, distributed)
	if err != nil {
		return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
	}
	if residual > 0 {
		if err := batch.move(ctx, r.Escrow, m.treasury, residual); err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		next.Payouts = append(next.Payouts, models.Payout{
			Kind: models.PayoutResidual, Recipient: m.treasury, Amount: residual, Status: models.PayoutPaid,
		})
	}

	next.Winners = slices.Clone(placements)
	next.Pool = deferred
	next.Status = models.StatusFinished
	if err := m.commit(ctx, op, batch, next); err != nil {
		return models.Room{}, err
	}

	for _, p := range next.Payouts {
		fields := logrus.Fields{"room": next.ID, "kind": p.Kind, "recipient": p.Recipient, "amount": p.Amount, "status": p.Status}
		if p.Rank > 0 {
			fields["rank"] = p.Rank
			fields["score"] = placements[p.Rank-1].Score
		}
		m.log.WithFields(fields).Info("settlement payout")
	}
	m.log.WithFields(logrus.Fields{"room": next.ID, "pool": r.Pool, "deferred": deferred}).Info("room settled")

	m.emit(ctx, models.EventRoomSettled, r.Authority, next, nil)
	for _, p := range next.Payouts {
		if p.Status == models.PayoutDeferred {
			m.emit(ctx, models.EventPayoutDeferred, r.Authority, next, map[string]interface{}{
				"rank":      p.Rank,
				"recipient": p.Recipient.String(),
				"amount":    p.Amount,
			})
		}
	}
	return next, nil
}

// checkPlacements requires 1..3 slots, at least one filled, every filled slot a
// distinct seated player.
func checkPlacements(r models.Room, placements []models.Placement) error {
	if len(placements) == 0 || len(placements) > models.MaxWinners {
		return fmt.Errorf("%w: %d placements, want 1..%d", ErrInvalidWinner, len(placements), models.MaxWinners)
	}
	seen := make(map[uuid.UUID]bool, len(placements))
	for i, pl := range placements {
		if !pl.Player.Valid {
			continue
		}
		id := pl.Player.UUID
		if !r.HasPlayer(id) {
			return fmt.Errorf("%w: position %d (%s) is not in the room", ErrInvalidWinner, i+1, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s placed twice", ErrInvalidWinner, id)
		}
		seen[id] = true
	}
	if len(seen) == 0 {
		return fmt.Errorf("%w: no winner declared", ErrInvalidWinner)
	}
	return nil
}

// CancelRoom ends a Waiting or Active room and refunds every player's entry fee.
// Refunds are all-or-nothing. Cancelling a finished or cancelled room fails.
func (m *Machine) CancelRoom(ctx context.Context, roomID uuid.UUID, proof Signer) (models.Room, error) {
	const op = "cancel"
	r, err := m.load(ctx, op, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !signedBy(proof, r.Authority) {
		return models.Room{}, opError(op, roomID, ErrUnauthorized)
	}
	if r.IsTerminal() {
		return models.Room{}, opError(op, roomID, ErrRoomClosed)
	}

	next := r.Clone()
	batch := m.newBatch()
	remaining := r.Pool
	for _, player := range r.Players {
		if remaining, err = escrow.Sub(remaining, r.EntryFee); err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		if err := batch.move(ctx, r.Escrow, player, r.EntryFee); err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		next.Payouts = append(next.Payouts, models.Payout{
			Kind: models.PayoutRefund, Recipient: player, Amount: r.EntryFee, Status: models.PayoutPaid,
		})
	}
	next.Pool = remaining
	next.Status = models.StatusCancelled
	if err := m.commit(ctx, op, batch, next); err != nil {
		return models.Room{}, err
	}

	m.log.WithFields(logrus.Fields{
		"room":     next.ID,
		"from":     r.Status,
		"refunded": len(r.Players),
		"amount":   r.Pool,
	}).Warn("room cancelled by authority")
	m.emit(ctx, models.EventRoomCancelled, r.Authority, next, nil)
	return next, nil
}

// ReconcilePayouts pays deferred prizes whose destination has since become
// resolvable. Anyone may call it: recipients and amounts were fixed at settlement.
func (m *Machine) ReconcilePayouts(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	const op = "reconcile"
	r, err := m.load(ctx, op, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if r.Status != models.StatusFinished {
		return models.Room{}, opError(op, roomID, ErrRoomNotFinished)
	}

	next := r.Clone()
	batch := m.newBatch()
	var paid []models.Payout
	for i, p := range next.Payouts {
		if p.Status != models.PayoutDeferred {
			continue
		}
		dest, err := m.resolver.Destination(ctx, p.Recipient)
		if errors.Is(err, ErrNoDestination) {
			continue
		}
		if err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		if next.Pool, err = escrow.Sub(next.Pool, p.Amount); err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		if err := batch.move(ctx, r.Escrow, dest, p.Amount); err != nil {
			return models.Room{}, opError(op, roomID, batch.rollback(ctx, err))
		}
		next.Payouts[i].Recipient = dest
		next.Payouts[i].Status = models.PayoutPaid
		paid = append(paid, next.Payouts[i])
	}
	if len(paid) == 0 {
		return r, nil
	}
	if err := m.commit(ctx, op, batch, next); err != nil {
		return models.Room{}, err
	}

	for _, p := range paid {
		m.log.WithFields(logrus.Fields{
			"room":      next.ID,
			"rank":      p.Rank,
			"recipient": p.Recipient,
			"amount":    p.Amount,
		}).Info("deferred payout reconciled")
		m.emit(ctx, models.EventPayoutReconciled, uuid.Nil, next, map[string]interface{}{
			"rank":      p.Rank,
			"recipient": p.Recipient.String(),
			"amount":    p.Amount,
		})
	}
	return next, nil
}
