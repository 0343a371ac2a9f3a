package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
	"github.com/SgtSwagrid/swagbets/internal/store"
)

// The pricing read model. Every query takes explicit times; defaults
// ("now", trailing 24 hours) belong to the caller, keeping the engine
// deterministic under a fixed clock.

// latestAffirmPrice is the most recent recorded affirmative price for an
// outcome at or before at, rounded to whole cents. With no history every
// outcome is assumed equally likely: round(100 / outcomeCount).
func (e *Engine) latestAffirmPrice(ctx context.Context, outcomeID string, outcomeCount int, at time.Time) (int64, error) {
	row, err := e.store.LatestPrice(ctx, outcomeID, at)
	if errors.Is(err, store.ErrNotFound) {
		return uniformPrior(outcomeCount), nil
	}
	if err != nil {
		return 0, err
	}
	return row.Price.Round(0).IntPart(), nil
}

func uniformPrior(outcomeCount int) int64 {
	return decimal.NewFromInt(model.PriceTotal).
		Div(decimal.NewFromInt(int64(outcomeCount))).
		Round(0).IntPart()
}

func complement(price int64, affirm bool) int64 {
	if affirm {
		return price
	}
	return model.PriceTotal - price
}

// LatestPrice returns the most recent traded price for one side of an
// outcome at or before at, in cents.
func (e *Engine) LatestPrice(ctx context.Context, outcomeID string, affirm bool, at time.Time) (int64, error) {
	outcome, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return 0, err
	}
	outcomes, err := e.store.ListOutcomes(ctx, outcome.PropositionID)
	if err != nil {
		return 0, err
	}
	price, err := e.latestAffirmPrice(ctx, outcomeID, len(outcomes), at)
	if err != nil {
		return 0, err
	}
	return complement(price, affirm), nil
}

// BidPrice returns the price of the best standing order on one side of
// an outcome, or 0 with no orders.
func (e *Engine) BidPrice(ctx context.Context, outcomeID string, affirm bool) (int64, error) {
	orders, err := e.store.ListOrders(ctx, outcomeID, affirm)
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}
	return orders[0].Price, nil
}

// AskPrice returns what it would cost right now to take one side of an
// outcome: the cheaper of matching the best opposing bid directly and
// assembling same-side bids across every other outcome.
func (e *Engine) AskPrice(ctx context.Context, outcomeID string, affirm bool) (int64, error) {
	outcome, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return 0, err
	}
	outcomes, err := e.store.ListOutcomes(ctx, outcome.PropositionID)
	if err != nil {
		return 0, err
	}

	counterBid, err := e.BidPrice(ctx, outcomeID, !affirm)
	if err != nil {
		return 0, err
	}
	directAsk := model.PriceTotal - counterBid

	indirectAsk := model.PriceTotal
	if !affirm {
		indirectAsk = model.PriceTotal * (int64(len(outcomes)) - 1)
	}
	for _, o := range outcomes {
		if o.ID == outcomeID {
			continue
		}
		bid, err := e.BidPrice(ctx, o.ID, affirm)
		if err != nil {
			return 0, err
		}
		indirectAsk -= bid
	}

	return min(directAsk, indirectAsk), nil
}

// AveragePrice returns the volume-weighted average price for one side of
// an outcome over [start, end]. An empty window falls back to the most
// recent equal-length window ending at the last trade; an empty history
// falls back to the uniform prior.
func (e *Engine) AveragePrice(ctx context.Context, outcomeID string, affirm bool, start, end time.Time) (int64, error) {
	outcome, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return 0, err
	}
	outcomes, err := e.store.ListOutcomes(ctx, outcome.PropositionID)
	if err != nil {
		return 0, err
	}

	history, err := e.store.ListPrices(ctx, outcomeID, time.Time{}, end)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return complement(uniformPrior(len(outcomes)), affirm), nil
	}

	rows := pricesSince(history, start)
	if len(rows) == 0 {
		// Slide an equal-length window back to the most recent trade.
		latest := history[len(history)-1]
		rows = pricesSince(history, latest.Time.Add(-end.Sub(start)))
	}

	num := decimal.Zero
	var volume int64
	for _, r := range rows {
		num = num.Add(r.Price.Mul(decimal.NewFromInt(r.Quantity)))
		volume += r.Quantity
	}
	avg := num.Div(decimal.NewFromInt(volume))
	if !affirm {
		avg = decimal.NewFromInt(model.PriceTotal).Sub(avg)
	}
	return avg.Round(0).IntPart(), nil
}

func pricesSince(history []model.Price, start time.Time) []model.Price {
	var rows []model.Price
	for _, r := range history {
		if !r.Time.Before(start) {
			rows = append(rows, r)
		}
	}
	return rows
}

// PriceChange returns the difference in cents between the latest price
// at end and at start.
func (e *Engine) PriceChange(ctx context.Context, outcomeID string, affirm bool, start, end time.Time) (int64, error) {
	after, err := e.LatestPrice(ctx, outcomeID, affirm, end)
	if err != nil {
		return 0, err
	}
	before, err := e.LatestPrice(ctx, outcomeID, affirm, start)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// PercentChange returns the price change over the window as a percentage
// of the starting price, 0 when there was nothing to change from.
func (e *Engine) PercentChange(ctx context.Context, outcomeID string, affirm bool, start, end time.Time) (int64, error) {
	change, err := e.PriceChange(ctx, outcomeID, affirm, start, end)
	if err != nil {
		return 0, err
	}
	before, err := e.LatestPrice(ctx, outcomeID, affirm, start)
	if err != nil {
		return 0, err
	}
	if before <= 0 {
		return 0, nil
	}
	return 100 * change / before, nil
}

// PricePoint is one sample of a charted price series.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price int64     `json:"price"` // affirmative cents
}

// Prices produces a resampled affirmative price series for charting: one
// anchor before start (the last trade before the window, or the
// proposition's creation price), up to resolution evenly spaced interior
// samples — each included only if any volume traded in its half-step
// neighbourhood, so silence doesn't draw flat segments — and one closing
// sample at end.
func (e *Engine) Prices(ctx context.Context, outcomeID string, start, end time.Time, resolution int) ([]PricePoint, error) {
	outcome, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	prop, err := e.getProposition(ctx, outcome.PropositionID)
	if err != nil {
		return nil, err
	}
	step := end.Sub(start) / time.Duration(resolution)

	var points []PricePoint

	anchor, err := e.store.LatestPrice(ctx, outcomeID, start)
	switch {
	case err == nil:
		price, err := e.AveragePrice(ctx, outcomeID, true, anchor.Time.Add(-step), anchor.Time)
		if err != nil {
			return nil, err
		}
		points = append(points, PricePoint{Time: anchor.Time.Add(-step / 2), Price: price})
	case errors.Is(err, store.ErrNotFound):
		price, err := e.LatestPrice(ctx, outcomeID, true, prop.CreatedAt)
		if err != nil {
			return nil, err
		}
		points = append(points, PricePoint{Time: prop.CreatedAt, Price: price})
	default:
		return nil, err
	}

	for t := 0; t < resolution; t++ {
		mid := start.Add(step * time.Duration(t))
		iStart, iEnd := mid.Add(-step/2), mid.Add(step/2)

		volume, err := e.TradeVolume(ctx, prop.ID, iStart, iEnd)
		if err != nil {
			return nil, err
		}
		if volume <= 0 {
			continue
		}
		price, err := e.AveragePrice(ctx, outcomeID, true, iStart, iEnd)
		if err != nil {
			return nil, err
		}
		points = append(points, PricePoint{Time: mid, Price: price})
	}

	closing, err := e.LatestPrice(ctx, outcomeID, true, end)
	if err != nil {
		return nil, err
	}
	return append(points, PricePoint{Time: end, Price: closing}), nil
}

// TradeVolume returns the cash value of all trades on a proposition
// strictly inside (start, end), in whole cash units.
func (e *Engine) TradeVolume(ctx context.Context, propositionID string, start, end time.Time) (int64, error) {
	rows, err := e.store.ListPricesByProposition(ctx, propositionID, start, end)
	if err != nil {
		return 0, err
	}
	sum := decimal.Zero
	for _, r := range rows {
		if r.Time.After(start) && r.Time.Before(end) {
			sum = sum.Add(r.Price.Mul(decimal.NewFromInt(r.Quantity)))
		}
	}
	return sum.Div(decimal.NewFromInt(model.PriceTotal)).Round(0).IntPart(), nil
}

// BidVolume returns the total face value of standing orders on a
// proposition, in whole cash units.
func (e *Engine) BidVolume(ctx context.Context, propositionID string) (int64, error) {
	orders, err := e.store.ListOrdersByProposition(ctx, propositionID)
	if err != nil {
		return 0, err
	}
	var cents int64
	for _, o := range orders {
		cents += o.Price * o.Quantity
	}
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(model.PriceTotal)).Round(0).IntPart(), nil
}

// OutcomesByPrice returns a proposition's outcomes sorted by descending
// latest affirmative price.
func (e *Engine) OutcomesByPrice(ctx context.Context, propositionID string, at time.Time) ([]model.Outcome, error) {
	outcomes, err := e.store.ListOutcomes(ctx, propositionID)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]int64, len(outcomes))
	for _, o := range outcomes {
		p, err := e.latestAffirmPrice(ctx, o.ID, len(outcomes), at)
		if err != nil {
			return nil, err
		}
		prices[o.ID] = p
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return prices[outcomes[i].ID] > prices[outcomes[j].ID]
	})
	return outcomes, nil
}

// TotalStake returns the total winning-side stake if the current price
// leader won, 0 once the proposition has resolved.
func (e *Engine) TotalStake(ctx context.Context, propositionID string, at time.Time) (int64, error) {
	prop, err := e.getProposition(ctx, propositionID)
	if err != nil {
		return 0, err
	}
	if !prop.Active {
		return 0, nil
	}
	leaders, err := e.OutcomesByPrice(ctx, propositionID, at)
	if err != nil {
		return 0, err
	}
	winners, err := e.matchingPositions(ctx, propositionID, leaders[0].ID)
	if err != nil {
		return 0, err
	}
	var stake int64
	for _, p := range winners {
		stake += p.Quantity
	}
	return stake, nil
}

// NetWorth estimates a user's worth: available balance, plus positions
// on active propositions marked to their latest price, plus the face
// value of standing orders.
func (e *Engine) NetWorth(ctx context.Context, userID string, at time.Time) (decimal.Decimal, error) {
	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	worth := balance.Value

	positions, err := e.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range positions {
		prop, err := e.getProposition(ctx, p.PropositionID)
		if err != nil {
			return decimal.Zero, err
		}
		if !prop.Active {
			continue
		}
		price, err := e.LatestPrice(ctx, p.OutcomeID, p.Affirm, at)
		if err != nil {
			return decimal.Zero, err
		}
		worth = worth.Add(decimal.NewFromInt(p.Quantity * price).
			Div(decimal.NewFromInt(model.PriceTotal)))
	}

	orders, err := e.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range orders {
		worth = worth.Add(orders[i].FaceValue())
	}

	return worth.Round(2), nil
}
