package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	propositions map[string]*model.Proposition
	outcomes     []model.Outcome // creation order
	orders       map[string]*model.Order
	orderSeq     int64
	prices       []model.Price // insertion order, append-only
	priceSeq     int64
	positions    map[string]*model.Position
	balances     map[string]*model.Balance
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		propositions: make(map[string]*model.Proposition),
		orders:       make(map[string]*model.Order),
		positions:    make(map[string]*model.Position),
		balances:     make(map[string]*model.Balance),
	}
}

// --- Propositions ---

func (s *MemoryStore) CreateProposition(_ context.Context, p *model.Proposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.propositions[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProposition(_ context.Context, id string) (*model.Proposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.propositions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPropositions(_ context.Context) ([]model.Proposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props := make([]model.Proposition, 0, len(s.propositions))
	for _, p := range s.propositions {
		props = append(props, *p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Code < props[j].Code })
	return props, nil
}

func (s *MemoryStore) UpdateProposition(_ context.Context, p *model.Proposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.propositions[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.propositions[p.ID] = &cp
	return nil
}

// --- Outcomes ---

func (s *MemoryStore) CreateOutcome(_ context.Context, o *model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, *o)
	return nil
}

func (s *MemoryStore) GetOutcome(_ context.Context, id string) (*model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.outcomes {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListOutcomes(_ context.Context, propositionID string) ([]model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Outcome
	for _, o := range s.outcomes {
		if o.PropositionID == propositionID {
			result = append(result, o)
		}
	}
	return result, nil
}

// --- Orders ---

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderSeq++
	o.Seq = s.orderSeq
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateOrderQuantity(_ context.Context, id string, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Quantity = quantity
	return nil
}

func (s *MemoryStore) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *MemoryStore) ListOrders(_ context.Context, outcomeID string, affirm bool) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.OutcomeID == outcomeID && o.Affirm == affirm {
			result = append(result, *o)
		}
	}
	sortOrders(result)
	return result, nil
}

func (s *MemoryStore) ListOrdersByProposition(_ context.Context, propositionID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.PropositionID == propositionID {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

// sortOrders arranges standing orders best-first: highest price, then
// earliest submission.
func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Price != orders[j].Price {
			return orders[i].Price > orders[j].Price
		}
		return orders[i].Seq < orders[j].Seq
	})
}

// --- Prices ---

func (s *MemoryStore) InsertPrice(_ context.Context, p *model.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceSeq++
	p.Seq = s.priceSeq
	s.prices = append(s.prices, *p)
	return nil
}

func (s *MemoryStore) LatestPrice(_ context.Context, outcomeID string, at time.Time) (*model.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Scan newest-first; insertion order breaks timestamp ties.
	for i := len(s.prices) - 1; i >= 0; i-- {
		p := s.prices[i]
		if p.OutcomeID == outcomeID && !p.Time.After(at) {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPrices(_ context.Context, outcomeID string, start, end time.Time) ([]model.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Price
	for _, p := range s.prices {
		if p.OutcomeID == outcomeID && !p.Time.Before(start) && !p.Time.After(end) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPricesByProposition(_ context.Context, propositionID string, start, end time.Time) ([]model.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Price
	for _, p := range s.prices {
		if p.PropositionID == propositionID && !p.Time.Before(start) && !p.Time.After(end) {
			result = append(result, p)
		}
	}
	return result, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, outcomeID, userID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.OutcomeID == outcomeID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPositionByID(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return ErrNotFound
	}
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) ListPositionsByProposition(_ context.Context, propositionID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.PropositionID == propositionID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	return result, nil
}

// --- Balances ---

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balance(userID)
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) AdjustBalance(_ context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balance(userID)
	b.Value = b.Value.Add(delta)
	return nil
}

// balance returns the row for userID, creating a zero one on first
// touch. Caller must hold mu.
func (s *MemoryStore) balance(userID string) *model.Balance {
	b, ok := s.balances[userID]
	if !ok {
		b = &model.Balance{UserID: userID, Value: decimal.Zero}
		s.balances[userID] = b
	}
	return b
}
