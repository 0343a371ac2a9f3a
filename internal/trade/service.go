// Package trade provides the HTTP handlers over the matching engine:
// creating propositions, placing and cancelling orders, pricing queries,
// portfolios, and staff settlement.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/engine"
	"github.com/SgtSwagrid/swagbets/internal/model"
	"github.com/SgtSwagrid/swagbets/internal/store"
)

// Boundary defaults for pricing queries. The engine itself always takes
// explicit instants and windows.
const (
	defaultWindow     = 24 * time.Hour
	defaultResolution = 20
)

// Service handles exchange operations over the engine. The store is
// held directly only for plain listings; anything that mutates or
// prices goes through the engine.
type Service struct {
	engine     *engine.Engine
	store      store.Store
	staffToken string
	wsHub      *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service. Pass nil for hub if WebSocket
// broadcasting is not needed. An empty staffToken disables settlement
// over HTTP.
func NewService(eng *engine.Engine, st store.Store, staffToken string, hub *WSHub) *Service {
	return &Service{
		engine:     eng,
		store:      st,
		staffToken: staffToken,
		wsHub:      hub,
	}
}

// --- Request/Response types ---

// CreatePropositionRequest is the JSON body for proposition creation.
type CreatePropositionRequest struct {
	Code        string               `json:"code"`
	Description string               `json:"description"`
	ResolvesAt  time.Time            `json:"resolves_at"`
	Outcomes    []engine.OutcomeSpec `json:"outcomes"`
}

// PropositionResponse is one proposition with its outcomes.
type PropositionResponse struct {
	model.Proposition
	Outcomes []model.Outcome `json:"outcomes"`
}

// PropositionSummary is the browse-page view of one proposition.
type PropositionSummary struct {
	model.Proposition
	Volume    int64          `json:"volume"`     // traded over the trailing window
	BidVolume int64          `json:"bid_volume"` // face value of standing orders
	Leader    *model.Outcome `json:"leader,omitempty"`
}

// PropositionDetail is the market-page view: outcomes ranked by price,
// each with its latest price, plus the proposition's stake and volume.
type PropositionDetail struct {
	model.Proposition
	Outcomes   []OutcomeQuote `json:"outcomes"`
	TotalStake int64          `json:"total_stake"`
	Volume     int64          `json:"volume"`
	BidVolume  int64          `json:"bid_volume"`
}

// OutcomeQuote is one outcome with its current affirmative price.
type OutcomeQuote struct {
	model.Outcome
	Price int64 `json:"price"`
}

// PlaceOrderRequest is the JSON body for POST /api/v1/orders.
type PlaceOrderRequest struct {
	UserID        string `json:"user_id"`
	PropositionID string `json:"proposition_id"`
	OutcomeID     string `json:"outcome_id"`
	Affirm        bool   `json:"affirm"`
	Price         int64  `json:"price"` // cents, 1-99
	Quantity      int64  `json:"quantity"`
}

// OutcomePriceResponse is the quote panel for one outcome and side.
type OutcomePriceResponse struct {
	OutcomeID     string `json:"outcome_id"`
	Affirm        bool   `json:"affirm"`
	Latest        int64  `json:"latest"`
	Bid           int64  `json:"bid"`
	Ask           int64  `json:"ask"`
	Change        int64  `json:"change"`
	PercentChange int64  `json:"percent_change"`
}

// PortfolioResponse is the balances-page view of one user.
type PortfolioResponse struct {
	UserID    string           `json:"user_id"`
	Balance   decimal.Decimal  `json:"balance"`
	NetWorth  decimal.Decimal  `json:"net_worth"`
	Positions []model.Position `json:"positions"`
	Orders    []model.Order    `json:"orders"`
}

// --- HTTP Handlers ---

// CreateProposition handles POST /api/v1/propositions.
func (s *Service) CreateProposition(w http.ResponseWriter, r *http.Request) {
	var req CreatePropositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	prop, outcomes, err := s.engine.CreateProposition(r.Context(), req.Code, req.Description, req.ResolvesAt, req.Outcomes)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PropositionResponse{Proposition: *prop, Outcomes: outcomes})
}

// ListPropositions handles GET /api/v1/propositions: every proposition
// with its trailing-24h volume, standing bid volume, and current leader.
func (s *Service) ListPropositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	props, err := s.store.ListPropositions(ctx)
	if err != nil {
		writeError(w, "failed to list propositions", http.StatusInternalServerError)
		return
	}

	summaries := make([]PropositionSummary, 0, len(props))
	for i := range props {
		p := props[i]
		volume, err := s.engine.TradeVolume(ctx, p.ID, now.Add(-defaultWindow), now)
		if err != nil {
			writeError(w, "failed to compute volume", http.StatusInternalServerError)
			return
		}
		bidVolume, err := s.engine.BidVolume(ctx, p.ID)
		if err != nil {
			writeError(w, "failed to compute bid volume", http.StatusInternalServerError)
			return
		}
		summary := PropositionSummary{Proposition: p, Volume: volume, BidVolume: bidVolume}
		if ranked, err := s.engine.OutcomesByPrice(ctx, p.ID, now); err == nil && len(ranked) > 0 {
			summary.Leader = &ranked[0]
		}
		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, summaries)
}

// GetProposition handles GET /api/v1/propositions/{propID}.
func (s *Service) GetProposition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propID := chi.URLParam(r, "propID")
	now := time.Now().UTC()

	prop, err := s.store.GetProposition(ctx, propID)
	if err != nil {
		writeError(w, "proposition not found", http.StatusNotFound)
		return
	}

	ranked, err := s.engine.OutcomesByPrice(ctx, prop.ID, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	quotes := make([]OutcomeQuote, 0, len(ranked))
	for _, o := range ranked {
		price, err := s.engine.LatestPrice(ctx, o.ID, true, now)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		quotes = append(quotes, OutcomeQuote{Outcome: o, Price: price})
	}

	stake, err := s.engine.TotalStake(ctx, prop.ID, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	volume, err := s.engine.TradeVolume(ctx, prop.ID, now.Add(-defaultWindow), now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	bidVolume, err := s.engine.BidVolume(ctx, prop.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PropositionDetail{
		Proposition: *prop,
		Outcomes:    quotes,
		TotalStake:  stake,
		Volume:      volume,
		BidVolume:   bidVolume,
	})
}

// ResolveProposition handles POST /api/v1/propositions/{propID}/resolve.
// Staff only: the request must carry the configured token.
func (s *Service) ResolveProposition(w http.ResponseWriter, r *http.Request) {
	propID := chi.URLParam(r, "propID")

	var req struct {
		OutcomeID string `json:"outcome_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	staff := s.staffToken != "" && r.Header.Get("X-Staff-Token") == s.staffToken
	if err := s.engine.Resolve(r.Context(), propID, req.OutcomeID, staff); err != nil {
		writeEngineError(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "proposition_resolved",
			PropositionID: propID,
			OutcomeID:     req.OutcomeID,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// PlaceOrder handles POST /api/v1/orders.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.PlaceOrder(r.Context(), req.PropositionID, req.OutcomeID, req.Affirm, req.Price, req.Quantity, req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if s.wsHub != nil {
		for _, t := range result.Trades {
			s.wsHub.Broadcast(WSMessage{
				Type:          "trade_executed",
				PropositionID: req.PropositionID,
				OutcomeID:     req.OutcomeID,
				Kind:          string(t.Kind),
				Price:         t.Price,
				Quantity:      t.Quantity,
			})
		}
	}

	writeJSON(w, http.StatusCreated, result)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}. The caller
// identifies itself with the X-User-ID header.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	if err := s.engine.CancelOrder(r.Context(), orderID, userID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOutcomePrice handles GET /api/v1/outcomes/{outcomeID}/price.
// Query: affirm (default true). Change is over the trailing 24 hours.
func (s *Service) GetOutcomePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcomeID := chi.URLParam(r, "outcomeID")
	affirm := parseBool(r.URL.Query().Get("affirm"), true)
	now := time.Now().UTC()

	latest, err := s.engine.LatestPrice(ctx, outcomeID, affirm, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	bid, err := s.engine.BidPrice(ctx, outcomeID, affirm)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	ask, err := s.engine.AskPrice(ctx, outcomeID, affirm)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	change, err := s.engine.PriceChange(ctx, outcomeID, affirm, now.Add(-defaultWindow), now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	percent, err := s.engine.PercentChange(ctx, outcomeID, affirm, now.Add(-defaultWindow), now)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OutcomePriceResponse{
		OutcomeID:     outcomeID,
		Affirm:        affirm,
		Latest:        latest,
		Bid:           bid,
		Ask:           ask,
		Change:        change,
		PercentChange: percent,
	})
}

// GetOutcomeHistory handles GET /api/v1/outcomes/{outcomeID}/history.
// Query: start, end (RFC 3339, default trailing 24h), resolution
// (default 20). Returns a resampled price series for charting.
func (s *Service) GetOutcomeHistory(w http.ResponseWriter, r *http.Request) {
	outcomeID := chi.URLParam(r, "outcomeID")
	now := time.Now().UTC()

	end := parseTime(r.URL.Query().Get("end"), now)
	start := parseTime(r.URL.Query().Get("start"), end.Add(-defaultWindow))
	resolution := parseInt(r.URL.Query().Get("resolution"), defaultResolution)
	if resolution < 1 || !start.Before(end) {
		writeError(w, "invalid history window", http.StatusBadRequest)
		return
	}

	points, err := s.engine.Prices(r.Context(), outcomeID, start, end, resolution)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// GetPortfolio handles GET /api/v1/users/{userID}/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	now := time.Now().UTC()

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}
	netWorth, err := s.engine.NetWorth(ctx, userID, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	positions, err := s.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		UserID:    userID,
		Balance:   balance.Value,
		NetWorth:  netWorth,
		Positions: positions,
		Orders:    orders,
	})
}

// DismissPosition handles
// POST /api/v1/users/{userID}/positions/{positionID}/dismiss.
func (s *Service) DismissPosition(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	positionID := chi.URLParam(r, "positionID")

	if err := s.engine.DismissPosition(r.Context(), positionID, userID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps engine sentinels onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrAlreadyResolved),
		errors.Is(err, engine.ErrStillActive):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNotOwner),
		errors.Is(err, engine.ErrNotAuthorized):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}
