package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/metrics"
)

// Resolve settles a proposition in favour of one outcome: every standing
// order is cancelled with a full refund, the proposition is marked
// resolved, and every position backing the winning side is paid out at
// one cash unit per token. Losing positions are left in place — they
// are worthless and inert, dismissible by their owners.
//
// Resolving an already-resolved proposition is a silent no-op, so the
// operation is idempotent.
func (e *Engine) Resolve(ctx context.Context, propositionID, outcomeID string, staff bool) error {
	if !staff {
		return ErrNotAuthorized
	}

	unlock := e.lockProposition(propositionID)
	defer unlock()

	prop, err := e.getProposition(ctx, propositionID)
	if err != nil {
		return err
	}
	winner, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return err
	}
	if winner.PropositionID != prop.ID {
		return fmt.Errorf("%w: outcome %s is not on proposition %s", ErrNotFound, outcomeID, propositionID)
	}
	if !prop.Active {
		return nil
	}

	// Refund all outstanding orders before any payout.
	orders, err := e.store.ListOrdersByProposition(ctx, prop.ID)
	if err != nil {
		return err
	}
	for i := range orders {
		if err := e.cancelLocked(ctx, &orders[i]); err != nil {
			return err
		}
	}

	prop.OutcomeID = winner.ID
	prop.Active = false
	if err := e.store.UpdateProposition(ctx, prop); err != nil {
		return err
	}

	winners, err := e.matchingPositions(ctx, prop.ID, winner.ID)
	if err != nil {
		return err
	}
	for _, p := range winners {
		if err := e.store.AdjustBalance(ctx, p.UserID, decimal.NewFromInt(p.Quantity)); err != nil {
			return err
		}
	}

	metrics.Resolutions.Inc()
	metrics.ActivePropositions.Dec()
	slog.Info("proposition resolved",
		"proposition", prop.Code,
		"outcome", winner.Code,
		"orders_refunded", len(orders),
		"positions_paid", len(winners),
	)
	return nil
}
