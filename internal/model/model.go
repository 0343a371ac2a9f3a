// Package model defines the core domain types shared across the engine.
// Cash values use shopspring/decimal — never float64 for money. Order
// prices and token quantities are integer cents/tokens.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTotal is the fixed sum of affirmative prices across all outcomes
// of a proposition, in cents. One token pays out PriceTotal cents (one
// cash unit) if its side wins.
const PriceTotal int64 = 100

// Proposition is a market over a set of mutually-exclusive outcomes.
// Active flips to false exactly once, on resolution.
type Proposition struct {
	ID          string    `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"` // three-letter code
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ResolvesAt  time.Time `json:"resolves_at" db:"resolves_at"`
	Active      bool      `json:"active" db:"active"`
	// OutcomeID is the winning outcome once resolved, empty while active.
	OutcomeID string `json:"outcome_id,omitempty" db:"outcome_id"`
}

// Outcome is one possible result of a proposition. Immutable once created.
type Outcome struct {
	ID            string `json:"id" db:"id"`
	PropositionID string `json:"proposition_id" db:"proposition_id"`
	Code          string `json:"code" db:"code"` // three-letter code
	Description   string `json:"description" db:"description"`
	Colour        string `json:"colour" db:"colour"` // display colour, #rrggbb
}

// Order is a standing bid awaiting a matching counter-order. Quantity is
// decremented on partial fills; the row is deleted when it reaches zero
// or on cancellation.
type Order struct {
	ID            string    `json:"id" db:"id"`
	Seq           int64     `json:"-" db:"seq"` // store-assigned, submission order
	PropositionID string    `json:"proposition_id" db:"proposition_id"`
	OutcomeID     string    `json:"outcome_id" db:"outcome_id"`
	Affirm        bool      `json:"affirm" db:"affirm"`
	Price         int64     `json:"price" db:"price"`       // cents per token, 1..99
	Quantity      int64     `json:"quantity" db:"quantity"` // tokens, > 0
	UserID        string    `json:"user_id" db:"user_id"`
	PlacedAt      time.Time `json:"placed_at" db:"placed_at"`
}

// FaceValue is the cash committed to this order: price * quantity / 100.
func (o *Order) FaceValue() decimal.Decimal {
	return decimal.NewFromInt(o.Price * o.Quantity).Div(decimal.NewFromInt(PriceTotal))
}

// Price is an immutable record of a traded price for one outcome,
// expressed in affirmative terms. Once created these are never modified
// or deleted. Values are decimal because complementary rescaling
// produces fractional cents; readers round.
type Price struct {
	ID            string          `json:"id" db:"id"`
	Seq           int64           `json:"-" db:"seq"` // store-assigned, insertion order
	PropositionID string          `json:"proposition_id" db:"proposition_id"`
	OutcomeID     string          `json:"outcome_id" db:"outcome_id"`
	Price         decimal.Decimal `json:"price" db:"price"` // affirmative cents, 0..100
	Quantity      int64           `json:"quantity" db:"quantity"`
	Time          time.Time       `json:"time" db:"time"`
}

// Position is a user's net stake in one outcome. At most one row exists
// per (user, outcome); opposing stakes are netted into it and its side
// may flip. Quantity is always positive while the row exists.
type Position struct {
	ID            string `json:"id" db:"id"`
	PropositionID string `json:"proposition_id" db:"proposition_id"`
	OutcomeID     string `json:"outcome_id" db:"outcome_id"`
	Affirm        bool   `json:"affirm" db:"affirm"`
	Quantity      int64  `json:"quantity" db:"quantity"` // tokens, > 0
	UserID        string `json:"user_id" db:"user_id"`
}

// Balance is a user's available cash. Created lazily at zero on first
// access.
type Balance struct {
	UserID string          `json:"user_id" db:"user_id"`
	Value  decimal.Decimal `json:"value" db:"value"`
}
