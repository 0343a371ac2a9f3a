// Package engine implements the continuous matching and settlement core
// of the prediction market: order placement and matching (direct and
// indirect), the position-netting ledger, complementary price recording,
// pricing queries, and terminal settlement.
//
// All state lives behind store.Store. The engine serializes everything
// that touches one proposition — the whole place-order/match/price-record
// sequence and the whole resolve sequence — behind a per-proposition
// lock; balance updates are atomic per-user adjustments in the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/metrics"
	"github.com/SgtSwagrid/swagbets/internal/model"
	"github.com/SgtSwagrid/swagbets/internal/store"
)

// Engine is the matching and settlement core.
type Engine struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // one critical section per proposition
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine's time source. Used in tests to make
// every timestamped write deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given store.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockProposition acquires the critical section for one proposition and
// returns its release func.
func (e *Engine) lockProposition(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// TradeKind distinguishes the two matching strategies.
type TradeKind string

const (
	// TradeDirect is a trade between two orders on the same outcome,
	// opposite sides.
	TradeDirect TradeKind = "direct"

	// TradeIndirect is a trade synthesized from same-side orders across
	// every other outcome of the proposition.
	TradeIndirect TradeKind = "indirect"
)

// Trade describes one executed match inside a placement.
type Trade struct {
	Kind     TradeKind `json:"kind"`
	Price    int64     `json:"price"` // ask paid by the incoming order, cents
	Quantity int64     `json:"quantity"`
}

// PlaceResult reports what happened to a placed order.
type PlaceResult struct {
	OrderID   string  `json:"order_id"`
	Remaining int64   `json:"remaining"` // unfilled quantity now resting
	Trades    []Trade `json:"trades"`
}

// PlaceOrder debits the user, submits the order to the matching loop and
// rests any unfilled remainder as a standing order. An order that finds
// no liquidity at all is still a success.
func (e *Engine) PlaceOrder(ctx context.Context, propositionID, outcomeID string, affirm bool, price, quantity int64, userID string) (*PlaceResult, error) {
	if price < 1 || price > model.PriceTotal-1 || quantity <= 0 {
		return nil, fmt.Errorf("%w: price=%d quantity=%d", ErrInvalidOrder, price, quantity)
	}

	unlock := e.lockProposition(propositionID)
	defer unlock()

	prop, err := e.getProposition(ctx, propositionID)
	if err != nil {
		return nil, err
	}
	if !prop.Active {
		return nil, ErrAlreadyResolved
	}
	outcome, err := e.getOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	if outcome.PropositionID != prop.ID {
		return nil, fmt.Errorf("%w: outcome %s is not on proposition %s", ErrNotFound, outcomeID, propositionID)
	}

	// Funds sufficiency is checked here and only here; the ledger itself
	// performs unconditional adjustments.
	cost := decimal.NewFromInt(price * quantity).Div(decimal.NewFromInt(model.PriceTotal))
	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.Value.LessThan(cost) {
		return nil, fmt.Errorf("%w: balance %s, order costs %s", ErrInsufficientFunds, balance.Value, cost)
	}
	if err := e.store.AdjustBalance(ctx, userID, cost.Neg()); err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:            uuid.New().String(),
		PropositionID: prop.ID,
		OutcomeID:     outcome.ID,
		Affirm:        affirm,
		Price:         price,
		Quantity:      quantity,
		UserID:        userID,
		PlacedAt:      e.now(),
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	metrics.OrdersPlaced.Inc()
	slog.Info("order placed",
		"order_id", order.ID,
		"proposition", prop.Code,
		"outcome", outcome.Code,
		"affirm", affirm,
		"price", price,
		"quantity", quantity,
		"user", userID,
	)

	trades, err := e.match(ctx, prop, order)
	if err != nil {
		return nil, err
	}

	return &PlaceResult{
		OrderID:   order.ID,
		Remaining: order.Quantity,
		Trades:    trades,
	}, nil
}

// CancelOrder refunds the order's face value to its owner and deletes
// it. No matching side effects.
func (e *Engine) CancelOrder(ctx context.Context, orderID, userID string) error {
	order, err := e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}

	unlock := e.lockProposition(order.PropositionID)
	defer unlock()

	// Re-read under the lock; the order may have been consumed by a
	// concurrent match in the meantime.
	order, err = e.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOwner
	}
	if err := e.cancelLocked(ctx, order); err != nil {
		return err
	}
	metrics.OrdersCancelled.Inc()
	return nil
}

// cancelLocked refunds and deletes a standing order. Caller holds the
// proposition lock.
func (e *Engine) cancelLocked(ctx context.Context, order *model.Order) error {
	if err := e.store.AdjustBalance(ctx, order.UserID, order.FaceValue()); err != nil {
		return err
	}
	if err := e.store.DeleteOrder(ctx, order.ID); err != nil {
		return err
	}
	slog.Info("order cancelled", "order_id", order.ID, "user", order.UserID, "refund", order.FaceValue())
	return nil
}

// DismissPosition deletes a worthless position left behind by a resolved
// proposition. Owner only; active propositions keep their positions.
func (e *Engine) DismissPosition(ctx context.Context, positionID, userID string) error {
	pos, err := e.store.GetPositionByID(ctx, positionID)
	if err != nil {
		return e.wrapStoreErr(err)
	}

	unlock := e.lockProposition(pos.PropositionID)
	defer unlock()

	// Re-read under the lock; a concurrent resolve may have netted or
	// paid out the position in the meantime.
	pos, err = e.store.GetPositionByID(ctx, positionID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	if pos.UserID != userID {
		return ErrNotOwner
	}
	prop, err := e.getProposition(ctx, pos.PropositionID)
	if err != nil {
		return err
	}
	if prop.Active {
		return ErrStillActive
	}
	return e.store.DeletePosition(ctx, pos.ID)
}

// --- store lookups with NotFound mapping ---

func (e *Engine) getProposition(ctx context.Context, id string) (*model.Proposition, error) {
	p, err := e.store.GetProposition(ctx, id)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	return p, nil
}

func (e *Engine) getOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	o, err := e.store.GetOutcome(ctx, id)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	return o, nil
}

func (e *Engine) getOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := e.store.GetOrder(ctx, id)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	return o, nil
}

func (e *Engine) wrapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
