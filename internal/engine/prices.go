package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
)

// recordDirect appends the price observations for a direct trade. The
// traded outcome gets the executed ask (complemented to affirmative
// terms for a negative trade); every other outcome's latest price is
// then rescaled proportionally so the affirmative prices across the
// proposition still sum to 100.
func (e *Engine) recordDirect(ctx context.Context, prop *model.Proposition, outcomes []model.Outcome, outcomeID string, affirm bool, quantity, price int64) error {
	if !affirm {
		price = model.PriceTotal - price
	}
	now := e.now()

	// Latest prices before this trade, per outcome.
	old := make(map[string]int64, len(outcomes))
	var othersSum int64
	for _, o := range outcomes {
		latest, err := e.latestAffirmPrice(ctx, o.ID, len(outcomes), now)
		if err != nil {
			return err
		}
		old[o.ID] = latest
		if o.ID != outcomeID {
			othersSum += latest
		}
	}

	if err := e.insertPrice(ctx, prop.ID, outcomeID, decimal.NewFromInt(price), quantity, now); err != nil {
		return err
	}

	remainder := decimal.NewFromInt(model.PriceTotal - price)
	for _, o := range outcomes {
		if o.ID == outcomeID {
			continue
		}
		var scaled decimal.Decimal
		if othersSum == 0 {
			// Nothing to scale proportionally; spread the remainder
			// uniformly across the other outcomes.
			scaled = remainder.Div(decimal.NewFromInt(int64(len(outcomes) - 1)))
		} else {
			scaled = decimal.NewFromInt(old[o.ID]).Mul(remainder).Div(decimal.NewFromInt(othersSum))
		}
		if err := e.insertPrice(ctx, prop.ID, o.ID, scaled, quantity, now); err != nil {
			return err
		}
	}
	return nil
}

// recordIndirect appends one price observation per outcome of the
// proposition from the matched basket's explicit per-outcome prices
// (0 for outcomes absent from the basket). The basket already pins the
// whole price curve, so no rescaling is needed.
func (e *Engine) recordIndirect(ctx context.Context, prop *model.Proposition, outcomes []model.Outcome, affirm bool, volume int64, offers map[string]int64) error {
	now := e.now()
	for _, o := range outcomes {
		price := offers[o.ID]
		if !affirm {
			price = model.PriceTotal - price
		}
		if err := e.insertPrice(ctx, prop.ID, o.ID, decimal.NewFromInt(price), volume, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertPrice(ctx context.Context, propositionID, outcomeID string, price decimal.Decimal, quantity int64, at time.Time) error {
	return e.store.InsertPrice(ctx, &model.Price{
		ID:            uuid.New().String(),
		PropositionID: propositionID,
		OutcomeID:     outcomeID,
		Price:         price,
		Quantity:      quantity,
		Time:          at,
	})
}
