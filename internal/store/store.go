// Package store defines the persistence interface for the matching engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Every entity is addressable by id
// and filterable by proposition, outcome, user, side, and time range.
// Implementations must make AdjustBalance an atomic read-modify-write of
// the single balance row for that user.
type Store interface {
	// --- Propositions ---

	// CreateProposition persists a new proposition.
	CreateProposition(ctx context.Context, p *model.Proposition) error

	// GetProposition retrieves a proposition by id.
	GetProposition(ctx context.Context, id string) (*model.Proposition, error)

	// ListPropositions returns all propositions.
	ListPropositions(ctx context.Context) ([]model.Proposition, error)

	// UpdateProposition replaces a proposition row (used at resolution).
	UpdateProposition(ctx context.Context, p *model.Proposition) error

	// --- Outcomes ---

	// CreateOutcome persists a new outcome.
	CreateOutcome(ctx context.Context, o *model.Outcome) error

	// GetOutcome retrieves an outcome by id.
	GetOutcome(ctx context.Context, id string) (*model.Outcome, error)

	// ListOutcomes returns all outcomes of a proposition, in creation order.
	ListOutcomes(ctx context.Context, propositionID string) ([]model.Outcome, error)

	// --- Orders ---

	// CreateOrder persists a new standing order and assigns its Seq.
	CreateOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by id.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// UpdateOrderQuantity sets the remaining quantity after a partial fill.
	UpdateOrderQuantity(ctx context.Context, id string, quantity int64) error

	// DeleteOrder removes an order (full fill or cancellation).
	DeleteOrder(ctx context.Context, id string) error

	// ListOrders returns standing orders on one side of an outcome,
	// best first: highest price, then earliest submission.
	ListOrders(ctx context.Context, outcomeID string, affirm bool) ([]model.Order, error)

	// ListOrdersByProposition returns all standing orders on a proposition.
	ListOrdersByProposition(ctx context.Context, propositionID string) ([]model.Order, error)

	// ListOrdersByUser returns all standing orders owned by a user.
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// --- Prices (append-only) ---

	// InsertPrice appends an immutable price record and assigns its Seq.
	InsertPrice(ctx context.Context, p *model.Price) error

	// LatestPrice returns the most recent price row for an outcome at or
	// before the given instant, or ErrNotFound.
	LatestPrice(ctx context.Context, outcomeID string, at time.Time) (*model.Price, error)

	// ListPrices returns price rows for an outcome with start <= time <= end,
	// in insertion order.
	ListPrices(ctx context.Context, outcomeID string, start, end time.Time) ([]model.Price, error)

	// ListPricesByProposition returns price rows for a whole proposition in
	// the inclusive window, in insertion order.
	ListPricesByProposition(ctx context.Context, propositionID string, start, end time.Time) ([]model.Price, error)

	// --- Positions ---

	// GetPosition returns the single position for (outcome, user), or
	// ErrNotFound.
	GetPosition(ctx context.Context, outcomeID, userID string) (*model.Position, error)

	// GetPositionByID retrieves a position by id.
	GetPositionByID(ctx context.Context, id string) (*model.Position, error)

	// SavePosition creates or replaces the position row wholesale, keyed
	// by its ID. Netting never patches fields in place.
	SavePosition(ctx context.Context, p *model.Position) error

	// DeletePosition removes a position row.
	DeletePosition(ctx context.Context, id string) error

	// ListPositionsByProposition returns all positions on a proposition.
	ListPositionsByProposition(ctx context.Context, propositionID string) ([]model.Position, error)

	// ListPositionsByUser returns all positions owned by a user.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// --- Balances ---

	// GetBalance returns a user's balance, creating a zero row on first
	// access.
	GetBalance(ctx context.Context, userID string) (*model.Balance, error)

	// AdjustBalance atomically adds delta (possibly negative) to a user's
	// balance, creating a zero row first if none exists.
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) error
}
