package engine

import (
	"context"
	"log/slog"

	"github.com/SgtSwagrid/swagbets/internal/metrics"
	"github.com/SgtSwagrid/swagbets/internal/model"
)

// match runs the matching loop for a newly placed order: repeatedly pick
// the cheaper of the best direct and indirect matches and execute it,
// until the order is filled or every remaining counter-bid asks more
// than the order's price. Caller holds the proposition lock.
func (e *Engine) match(ctx context.Context, prop *model.Proposition, order *model.Order) ([]Trade, error) {
	outcomes, err := e.store.ListOutcomes(ctx, prop.ID)
	if err != nil {
		return nil, err
	}

	var trades []Trade
	for order.Quantity > 0 {
		direct, directAsk, err := e.directMatch(ctx, order)
		if err != nil {
			return nil, err
		}
		indirect, indirectAsk, err := e.indirectMatch(ctx, order, outcomes)
		if err != nil {
			return nil, err
		}

		// Every remaining counter-bid is too expensive; the rest of the
		// order rests as a standing order.
		if directAsk > order.Price && indirectAsk > order.Price {
			break
		}

		var t Trade
		if directAsk <= indirectAsk {
			t, err = e.executeDirect(ctx, prop, outcomes, order, direct, directAsk)
		} else {
			t, err = e.executeIndirect(ctx, prop, outcomes, order, indirect, indirectAsk)
		}
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// directMatch finds the best standing order on the same outcome and the
// opposite side whose implied ask (100 - its price) the incoming order
// can afford: highest price first, then earliest submission. With no
// candidate the ask is the theoretical maximum 100, which no 1-99 bid
// can meet, so the direct branch is simply out of the running for this
// iteration.
func (e *Engine) directMatch(ctx context.Context, order *model.Order) (*model.Order, int64, error) {
	counters, err := e.store.ListOrders(ctx, order.OutcomeID, !order.Affirm)
	if err != nil {
		return nil, 0, err
	}
	for i := range counters {
		if counters[i].Price >= model.PriceTotal-order.Price {
			return &counters[i], model.PriceTotal - counters[i].Price, nil
		}
	}
	return nil, model.PriceTotal, nil
}

// indirectMatch assembles the best same-side standing order on every
// other outcome of the proposition (skipping outcomes with none). A
// basket covering every other outcome's risk is economically equivalent
// to the incoming position, so its combined ask competes with the
// direct ask.
func (e *Engine) indirectMatch(ctx context.Context, order *model.Order, outcomes []model.Outcome) ([]model.Order, int64, error) {
	ask := model.PriceTotal
	if !order.Affirm {
		ask = model.PriceTotal * (int64(len(outcomes)) - 1)
	}

	var basket []model.Order
	for _, o := range outcomes {
		if o.ID == order.OutcomeID {
			continue
		}
		counters, err := e.store.ListOrders(ctx, o.ID, order.Affirm)
		if err != nil {
			return nil, 0, err
		}
		if len(counters) == 0 {
			continue
		}
		basket = append(basket, counters[0])
		ask -= counters[0].Price
	}
	return basket, ask, nil
}

// executeDirect trades the incoming order against one opposing order on
// the same outcome at the given ask.
func (e *Engine) executeDirect(ctx context.Context, prop *model.Proposition, outcomes []model.Outcome, order, counter *model.Order, ask int64) (Trade, error) {
	quantity := min(order.Quantity, counter.Quantity)

	if err := e.fulfill(ctx, order, quantity); err != nil {
		return Trade{}, err
	}
	if err := e.grantTokens(ctx, prop.ID, order.OutcomeID, order.Affirm, quantity, order.UserID); err != nil {
		return Trade{}, err
	}

	if err := e.fulfill(ctx, counter, quantity); err != nil {
		return Trade{}, err
	}
	if err := e.grantTokens(ctx, prop.ID, counter.OutcomeID, counter.Affirm, quantity, counter.UserID); err != nil {
		return Trade{}, err
	}

	if err := e.recordDirect(ctx, prop, outcomes, order.OutcomeID, order.Affirm, quantity, ask); err != nil {
		return Trade{}, err
	}

	metrics.TradesTotal.WithLabelValues(string(TradeDirect)).Inc()
	metrics.TradeVolume.WithLabelValues(string(TradeDirect)).Add(float64(quantity))
	slog.Info("direct match executed",
		"proposition", prop.Code,
		"outcome_id", order.OutcomeID,
		"ask", ask,
		"quantity", quantity,
	)
	return Trade{Kind: TradeDirect, Price: ask, Quantity: quantity}, nil
}

// executeIndirect trades the incoming order against a basket of
// same-side orders on every other outcome at the combined ask.
func (e *Engine) executeIndirect(ctx context.Context, prop *model.Proposition, outcomes []model.Outcome, order *model.Order, basket []model.Order, ask int64) (Trade, error) {
	quantity := order.Quantity
	for _, leg := range basket {
		quantity = min(quantity, leg.Quantity)
	}

	if err := e.fulfill(ctx, order, quantity); err != nil {
		return Trade{}, err
	}
	if err := e.grantTokens(ctx, prop.ID, order.OutcomeID, order.Affirm, quantity, order.UserID); err != nil {
		return Trade{}, err
	}

	offers := map[string]int64{order.OutcomeID: ask}
	for i := range basket {
		leg := &basket[i]
		if err := e.fulfill(ctx, leg, quantity); err != nil {
			return Trade{}, err
		}
		if err := e.grantTokens(ctx, prop.ID, leg.OutcomeID, leg.Affirm, quantity, leg.UserID); err != nil {
			return Trade{}, err
		}
		offers[leg.OutcomeID] = leg.Price
	}

	// A negative trade covers K-1 complementary positions per token.
	volume := quantity
	if !order.Affirm {
		volume = quantity * (int64(len(outcomes)) - 1)
	}
	if err := e.recordIndirect(ctx, prop, outcomes, order.Affirm, volume, offers); err != nil {
		return Trade{}, err
	}

	metrics.TradesTotal.WithLabelValues(string(TradeIndirect)).Inc()
	metrics.TradeVolume.WithLabelValues(string(TradeIndirect)).Add(float64(quantity))
	slog.Info("indirect match executed",
		"proposition", prop.Code,
		"outcome_id", order.OutcomeID,
		"ask", ask,
		"quantity", quantity,
		"legs", len(basket),
	)
	return Trade{Kind: TradeIndirect, Price: ask, Quantity: quantity}, nil
}

// fulfill removes traded quantity from an order, deleting it once empty.
func (e *Engine) fulfill(ctx context.Context, order *model.Order, quantity int64) error {
	order.Quantity -= quantity
	if order.Quantity <= 0 {
		return e.store.DeleteOrder(ctx, order.ID)
	}
	return e.store.UpdateOrderQuantity(ctx, order.ID, order.Quantity)
}
