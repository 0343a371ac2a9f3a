package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for the hot read paths: propositions, outcome
// sets, and latest prices. Writes go to the primary store and
// invalidate the cache. Orders, positions, and balances mutate on every
// trade and are always passed through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func propositionKey(id string) string { return fmt.Sprintf("proposition:%s", id) }
func outcomeKey(id string) string     { return fmt.Sprintf("outcome:%s", id) }
func outcomesKey(propID string) string {
	return fmt.Sprintf("outcomes:%s", propID)
}
func latestPriceKey(outcomeID string) string {
	return fmt.Sprintf("latest_price:%s", outcomeID)
}

// --- Propositions ---

func (s *CachedStore) CreateProposition(ctx context.Context, p *model.Proposition) error {
	if err := s.primary.CreateProposition(ctx, p); err != nil {
		return err
	}
	s.cacheJSON(ctx, propositionKey(p.ID), p)
	return nil
}

func (s *CachedStore) GetProposition(ctx context.Context, id string) (*model.Proposition, error) {
	var cached model.Proposition
	if s.readJSON(ctx, propositionKey(id), &cached) {
		return &cached, nil
	}

	p, err := s.primary.GetProposition(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, propositionKey(id), p)
	return p, nil
}

func (s *CachedStore) ListPropositions(ctx context.Context) ([]model.Proposition, error) {
	return s.primary.ListPropositions(ctx)
}

func (s *CachedStore) UpdateProposition(ctx context.Context, p *model.Proposition) error {
	if err := s.primary.UpdateProposition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, propositionKey(p.ID))
	return nil
}

// --- Outcomes ---

func (s *CachedStore) CreateOutcome(ctx context.Context, o *model.Outcome) error {
	if err := s.primary.CreateOutcome(ctx, o); err != nil {
		return err
	}
	s.rdb.Del(ctx, outcomesKey(o.PropositionID))
	return nil
}

func (s *CachedStore) GetOutcome(ctx context.Context, id string) (*model.Outcome, error) {
	var cached model.Outcome
	if s.readJSON(ctx, outcomeKey(id), &cached) {
		return &cached, nil
	}

	o, err := s.primary.GetOutcome(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, outcomeKey(id), o)
	return o, nil
}

func (s *CachedStore) ListOutcomes(ctx context.Context, propositionID string) ([]model.Outcome, error) {
	var cached []model.Outcome
	if s.readJSON(ctx, outcomesKey(propositionID), &cached) {
		return cached, nil
	}

	outcomes, err := s.primary.ListOutcomes(ctx, propositionID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, outcomesKey(propositionID), outcomes)
	return outcomes, nil
}

// --- Orders (passthrough) ---

func (s *CachedStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.CreateOrder(ctx, o)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) UpdateOrderQuantity(ctx context.Context, id string, quantity int64) error {
	return s.primary.UpdateOrderQuantity(ctx, id, quantity)
}

func (s *CachedStore) DeleteOrder(ctx context.Context, id string) error {
	return s.primary.DeleteOrder(ctx, id)
}

func (s *CachedStore) ListOrders(ctx context.Context, outcomeID string, affirm bool) ([]model.Order, error) {
	return s.primary.ListOrders(ctx, outcomeID, affirm)
}

func (s *CachedStore) ListOrdersByProposition(ctx context.Context, propositionID string) ([]model.Order, error) {
	return s.primary.ListOrdersByProposition(ctx, propositionID)
}

func (s *CachedStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.primary.ListOrdersByUser(ctx, userID)
}

// --- Prices ---

func (s *CachedStore) InsertPrice(ctx context.Context, p *model.Price) error {
	if err := s.primary.InsertPrice(ctx, p); err != nil {
		return err
	}
	// The cached row is no longer the latest; next read re-populates.
	s.rdb.Del(ctx, latestPriceKey(p.OutcomeID))
	return nil
}

// LatestPrice caches only the globally newest row per outcome, so the
// cache can answer any query whose instant is at or after it. Queries
// further back in history always go to the primary.
func (s *CachedStore) LatestPrice(ctx context.Context, outcomeID string, at time.Time) (*model.Price, error) {
	var cached model.Price
	if s.readJSON(ctx, latestPriceKey(outcomeID), &cached) && !cached.Time.After(at) {
		return &cached, nil
	}

	p, err := s.primary.LatestPrice(ctx, outcomeID, at)
	if err != nil {
		return nil, err
	}
	if !at.Before(time.Now().UTC()) {
		// Only a query reaching the present is guaranteed to have seen
		// the newest row.
		s.cacheJSON(ctx, latestPriceKey(outcomeID), p)
	}
	return p, nil
}

func (s *CachedStore) ListPrices(ctx context.Context, outcomeID string, start, end time.Time) ([]model.Price, error) {
	return s.primary.ListPrices(ctx, outcomeID, start, end)
}

func (s *CachedStore) ListPricesByProposition(ctx context.Context, propositionID string, start, end time.Time) ([]model.Price, error) {
	return s.primary.ListPricesByProposition(ctx, propositionID, start, end)
}

// --- Positions (passthrough) ---

func (s *CachedStore) GetPosition(ctx context.Context, outcomeID, userID string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, outcomeID, userID)
}

func (s *CachedStore) GetPositionByID(ctx context.Context, id string) (*model.Position, error) {
	return s.primary.GetPositionByID(ctx, id)
}

func (s *CachedStore) SavePosition(ctx context.Context, p *model.Position) error {
	return s.primary.SavePosition(ctx, p)
}

func (s *CachedStore) DeletePosition(ctx context.Context, id string) error {
	return s.primary.DeletePosition(ctx, id)
}

func (s *CachedStore) ListPositionsByProposition(ctx context.Context, propositionID string) ([]model.Position, error) {
	return s.primary.ListPositionsByProposition(ctx, propositionID)
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.primary.ListPositionsByUser(ctx, userID)
}

// --- Balances (passthrough) ---

func (s *CachedStore) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	return s.primary.GetBalance(ctx, userID)
}

func (s *CachedStore) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	return s.primary.AdjustBalance(ctx, userID, delta)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) readJSON(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
