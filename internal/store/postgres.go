package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Cash and history prices are stored as NUMERIC for exact decimal
// precision; order seq and price seq come from BIGSERIAL columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// --- Propositions ---

func (s *PostgresStore) CreateProposition(ctx context.Context, p *model.Proposition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO propositions (id, code, description, created_at, resolves_at, active, outcome_id)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
		p.ID, p.Code, p.Description, p.CreatedAt, p.ResolvesAt, p.Active, p.OutcomeID,
	)
	return err
}

func (s *PostgresStore) GetProposition(ctx context.Context, id string) (*model.Proposition, error) {
	var p model.Proposition
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, description, created_at, resolves_at, active, COALESCE(outcome_id, '')
		 FROM propositions WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt, &p.ResolvesAt, &p.Active, &p.OutcomeID)
	if err != nil {
		return nil, notFound(err, "proposition", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListPropositions(ctx context.Context) ([]model.Proposition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, description, created_at, resolves_at, active, COALESCE(outcome_id, '')
		 FROM propositions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []model.Proposition
	for rows.Next() {
		var p model.Proposition
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt, &p.ResolvesAt, &p.Active, &p.OutcomeID); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (s *PostgresStore) UpdateProposition(ctx context.Context, p *model.Proposition) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE propositions
		 SET code = $2, description = $3, created_at = $4, resolves_at = $5,
		     active = $6, outcome_id = NULLIF($7, '')
		 WHERE id = $1`,
		p.ID, p.Code, p.Description, p.CreatedAt, p.ResolvesAt, p.Active, p.OutcomeID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: proposition %s", ErrNotFound, p.ID)
	}
	return nil
}

// --- Outcomes ---

func (s *PostgresStore) CreateOutcome(ctx context.Context, o *model.Outcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes (id, proposition_id, code, description, colour)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.PropositionID, o.Code, o.Description, o.Colour,
	)
	return err
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	var o model.Outcome
	err := s.pool.QueryRow(ctx,
		`SELECT id, proposition_id, code, description, colour
		 FROM outcomes WHERE id = $1`, id).
		Scan(&o.ID, &o.PropositionID, &o.Code, &o.Description, &o.Colour)
	if err != nil {
		return nil, notFound(err, "outcome", id)
	}
	return &o, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, propositionID string) ([]model.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, proposition_id, code, description, colour
		 FROM outcomes WHERE proposition_id = $1 ORDER BY seq`, propositionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.ID, &o.PropositionID, &o.Code, &o.Description, &o.Colour); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// --- Orders ---

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO orders (id, proposition_id, outcome_id, affirm, price, quantity, user_id, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING seq`,
		o.ID, o.PropositionID, o.OutcomeID, o.Affirm, o.Price, o.Quantity, o.UserID, o.PlacedAt,
	).Scan(&o.Seq)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.pool.QueryRow(ctx,
		`SELECT id, seq, proposition_id, outcome_id, affirm, price, quantity, user_id, placed_at
		 FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Seq, &o.PropositionID, &o.OutcomeID, &o.Affirm, &o.Price, &o.Quantity, &o.UserID, &o.PlacedAt)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &o, nil
}

func (s *PostgresStore) UpdateOrderQuantity(ctx context.Context, id string, quantity int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, outcomeID string, affirm bool) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT id, seq, proposition_id, outcome_id, affirm, price, quantity, user_id, placed_at
		 FROM orders WHERE outcome_id = $1 AND affirm = $2
		 ORDER BY price DESC, seq`, outcomeID, affirm)
}

func (s *PostgresStore) ListOrdersByProposition(ctx context.Context, propositionID string) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT id, seq, proposition_id, outcome_id, affirm, price, quantity, user_id, placed_at
		 FROM orders WHERE proposition_id = $1 ORDER BY seq`, propositionID)
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT id, seq, proposition_id, outcome_id, affirm, price, quantity, user_id, placed_at
		 FROM orders WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *PostgresStore) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.Seq, &o.PropositionID, &o.OutcomeID, &o.Affirm,
			&o.Price, &o.Quantity, &o.UserID, &o.PlacedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// --- Prices ---

func (s *PostgresStore) InsertPrice(ctx context.Context, p *model.Price) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO prices (id, proposition_id, outcome_id, price, quantity, time)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)
		 RETURNING seq`,
		p.ID, p.PropositionID, p.OutcomeID, p.Price.String(), p.Quantity, p.Time,
	).Scan(&p.Seq)
}

func (s *PostgresStore) LatestPrice(ctx context.Context, outcomeID string, at time.Time) (*model.Price, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, seq, proposition_id, outcome_id, price::TEXT, quantity, time
		 FROM prices WHERE outcome_id = $1 AND time <= $2
		 ORDER BY time DESC, seq DESC LIMIT 1`, outcomeID, at)

	var p model.Price
	var priceS string
	if err := row.Scan(&p.ID, &p.Seq, &p.PropositionID, &p.OutcomeID, &priceS, &p.Quantity, &p.Time); err != nil {
		return nil, notFound(err, "price for outcome", outcomeID)
	}
	p.Price, _ = decimal.NewFromString(priceS)
	return &p, nil
}

func (s *PostgresStore) ListPrices(ctx context.Context, outcomeID string, start, end time.Time) ([]model.Price, error) {
	return s.queryPrices(ctx,
		`SELECT id, seq, proposition_id, outcome_id, price::TEXT, quantity, time
		 FROM prices WHERE outcome_id = $1 AND time >= $2 AND time <= $3
		 ORDER BY seq`, outcomeID, start, end)
}

func (s *PostgresStore) ListPricesByProposition(ctx context.Context, propositionID string, start, end time.Time) ([]model.Price, error) {
	return s.queryPrices(ctx,
		`SELECT id, seq, proposition_id, outcome_id, price::TEXT, quantity, time
		 FROM prices WHERE proposition_id = $1 AND time >= $2 AND time <= $3
		 ORDER BY seq`, propositionID, start, end)
}

func (s *PostgresStore) queryPrices(ctx context.Context, sql string, args ...any) ([]model.Price, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []model.Price
	for rows.Next() {
		var p model.Price
		var priceS string
		if err := rows.Scan(&p.ID, &p.Seq, &p.PropositionID, &p.OutcomeID, &priceS, &p.Quantity, &p.Time); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(priceS)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, outcomeID, userID string) (*model.Position, error) {
	var p model.Position
	err := s.pool.QueryRow(ctx,
		`SELECT id, proposition_id, outcome_id, affirm, quantity, user_id
		 FROM positions WHERE outcome_id = $1 AND user_id = $2`, outcomeID, userID).
		Scan(&p.ID, &p.PropositionID, &p.OutcomeID, &p.Affirm, &p.Quantity, &p.UserID)
	if err != nil {
		return nil, notFound(err, "position for outcome", outcomeID)
	}
	return &p, nil
}

func (s *PostgresStore) GetPositionByID(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	err := s.pool.QueryRow(ctx,
		`SELECT id, proposition_id, outcome_id, affirm, quantity, user_id
		 FROM positions WHERE id = $1`, id).
		Scan(&p.ID, &p.PropositionID, &p.OutcomeID, &p.Affirm, &p.Quantity, &p.UserID)
	if err != nil {
		return nil, notFound(err, "position", id)
	}
	return &p, nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, proposition_id, outcome_id, affirm, quantity, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET affirm = EXCLUDED.affirm, quantity = EXCLUDED.quantity`,
		p.ID, p.PropositionID, p.OutcomeID, p.Affirm, p.Quantity, p.UserID,
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: position %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListPositionsByProposition(ctx context.Context, propositionID string) ([]model.Position, error) {
	return s.queryPositions(ctx,
		`SELECT id, proposition_id, outcome_id, affirm, quantity, user_id
		 FROM positions WHERE proposition_id = $1`, propositionID)
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.queryPositions(ctx,
		`SELECT id, proposition_id, outcome_id, affirm, quantity, user_id
		 FROM positions WHERE user_id = $1`, userID)
}

func (s *PostgresStore) queryPositions(ctx context.Context, sql string, args ...any) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.ID, &p.PropositionID, &p.OutcomeID, &p.Affirm, &p.Quantity, &p.UserID); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Balances ---

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO balances (user_id, value) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, err
	}

	var b model.Balance
	var valueS string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, value::TEXT FROM balances WHERE user_id = $1`, userID).
		Scan(&b.UserID, &valueS)
	if err != nil {
		return nil, err
	}
	b.Value, _ = decimal.NewFromString(valueS)
	return &b, nil
}

func (s *PostgresStore) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	// Single statement keeps the read-modify-write atomic per user row.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (user_id, value) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (user_id) DO UPDATE SET value = balances.value + EXCLUDED.value`,
		userID, delta.String(),
	)
	return err
}
