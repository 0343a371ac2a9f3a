package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
	"github.com/SgtSwagrid/swagbets/internal/store"
)

// grantTokens awards tokens to a trade participant, netting them against
// any opposing stake the user already holds on the outcome. This is the
// only place a position's side can flip.
//
// A user holds at most one position per outcome. Same-side awards simply
// accumulate. Opposite-side awards cancel: the overlap min(held, incoming)
// is refunded to the ledger at face value — a fully hedged pair of unit
// stakes is risk-free and worth exactly one cash unit — and the row is
// replaced with the signed remainder, flipping side if it went negative
// and disappearing if it reached zero.
func (e *Engine) grantTokens(ctx context.Context, propositionID, outcomeID string, affirm bool, quantity int64, userID string) error {
	held, err := e.store.GetPosition(ctx, outcomeID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return e.store.SavePosition(ctx, &model.Position{
			ID:            uuid.New().String(),
			PropositionID: propositionID,
			OutcomeID:     outcomeID,
			Affirm:        affirm,
			Quantity:      quantity,
			UserID:        userID,
		})
	}
	if err != nil {
		return err
	}

	if held.Affirm == affirm {
		held.Quantity += quantity
		return e.store.SavePosition(ctx, held)
	}

	// Opposing stakes cancel; refund the overlap, one cash unit per
	// cancelled pair. The credit is the minimum of the two quantities,
	// not the delta.
	refund := min(quantity, held.Quantity)
	if err := e.store.AdjustBalance(ctx, userID, decimal.NewFromInt(refund)); err != nil {
		return err
	}

	remaining := held.Quantity - quantity
	switch {
	case remaining == 0:
		return e.store.DeletePosition(ctx, held.ID)
	case remaining < 0:
		held.Quantity = -remaining
		held.Affirm = !held.Affirm
	default:
		held.Quantity = remaining
	}
	return e.store.SavePosition(ctx, held)
}

// matchingPositions returns all positions on the proposition that pay
// out if winner wins: affirmative stakes on the winner plus negative
// stakes on every other outcome.
func (e *Engine) matchingPositions(ctx context.Context, propositionID, winnerID string) ([]model.Position, error) {
	all, err := e.store.ListPositionsByProposition(ctx, propositionID)
	if err != nil {
		return nil, err
	}
	var winners []model.Position
	for _, p := range all {
		if (p.OutcomeID == winnerID) == p.Affirm {
			winners = append(winners, p)
		}
	}
	return winners, nil
}
