package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/engine"
	"github.com/SgtSwagrid/swagbets/internal/store"
	"github.com/SgtSwagrid/swagbets/internal/trade"
)

const staffToken = "test-staff-token"

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*engine.Engine, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	eng := engine.New(ms)
	svc := trade.NewService(eng, ms, staffToken, nil)

	r := chi.NewRouter()
	r.Get("/api/v1/propositions", svc.ListPropositions)
	r.Post("/api/v1/propositions", svc.CreateProposition)
	r.Get("/api/v1/propositions/{propID}", svc.GetProposition)
	r.Post("/api/v1/propositions/{propID}/resolve", svc.ResolveProposition)
	r.Post("/api/v1/orders", svc.PlaceOrder)
	r.Delete("/api/v1/orders/{orderID}", svc.CancelOrder)
	r.Get("/api/v1/outcomes/{outcomeID}/price", svc.GetOutcomePrice)
	r.Get("/api/v1/outcomes/{outcomeID}/history", svc.GetOutcomeHistory)
	r.Get("/api/v1/users/{userID}/portfolio", svc.GetPortfolio)
	r.Post("/api/v1/users/{userID}/positions/{positionID}/dismiss", svc.DismissPosition)

	return eng, ms, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedProposition creates a two-outcome proposition through the API and
// returns its detail response.
func seedProposition(t *testing.T, router chi.Router) trade.PropositionResponse {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/propositions", trade.CreatePropositionRequest{
		Code:        "PRP",
		Description: "test proposition",
		ResolvesAt:  time.Now().UTC().Add(24 * time.Hour),
		Outcomes: []engine.OutcomeSpec{
			{Code: "AAA", Description: "first"},
			{Code: "BBB", Description: "second"},
		},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed proposition: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp trade.PropositionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func fund(t *testing.T, ms *store.MemoryStore, userID string, amount int64) {
	t.Helper()
	if err := ms.AdjustBalance(context.Background(), userID, decimal.NewFromInt(amount)); err != nil {
		t.Fatalf("failed to fund %s: %v", userID, err)
	}
}

// --- Proposition endpoints ---

func TestCreateProposition(t *testing.T) {
	_, _, router := newTestEnv(t)
	resp := seedProposition(t, router)

	if resp.Code != "PRP" || !resp.Active {
		t.Errorf("proposition = %+v, want active PRP", resp.Proposition)
	}
	if len(resp.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(resp.Outcomes))
	}
	for _, o := range resp.Outcomes {
		if o.ID == "" || o.Colour == "" {
			t.Errorf("outcome %s missing id or colour: %+v", o.Code, o)
		}
	}
}

func TestCreateProposition_InvalidCode(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/propositions", trade.CreatePropositionRequest{
		Code: "nope",
		Outcomes: []engine.OutcomeSpec{
			{Code: "AAA"}, {Code: "BBB"},
		},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid code, got %d", w.Code)
	}
}

func TestGetProposition(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)

	w := doJSON(t, router, "GET", "/api/v1/propositions/"+prop.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var detail trade.PropositionDetail
	json.Unmarshal(w.Body.Bytes(), &detail)

	if len(detail.Outcomes) != 2 {
		t.Fatalf("expected 2 outcome quotes, got %d", len(detail.Outcomes))
	}
	// Fresh market: uniform prior on both sides.
	for _, q := range detail.Outcomes {
		if q.Price != 50 {
			t.Errorf("quote %s = %d, want 50", q.Code, q.Price)
		}
	}
}

func TestGetProposition_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := doJSON(t, router, "GET", "/api/v1/propositions/ghost", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListPropositions(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)

	// A resting order shows up as bid volume.
	w := doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID:        "alice",
		PropositionID: prop.ID,
		OutcomeID:     prop.Outcomes[0].ID,
		Affirm:        true,
		Price:         60,
		Quantity:      10,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("place order: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/propositions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []trade.PropositionSummary
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 proposition, got %d", len(list))
	}
	if list[0].BidVolume != 6 {
		t.Errorf("bid volume = %d, want 6", list[0].BidVolume)
	}
	if list[0].Leader == nil {
		t.Error("expected a leader")
	}
}

// --- Order endpoints ---

func TestPlaceOrder_Trades(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)
	fund(t, ms, "bob", 100)

	w := doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "bob", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: false, Price: 45, Quantity: 10,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("bob's order: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: true, Price: 60, Quantity: 10,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("alice's order: %d %s", w.Code, w.Body.String())
	}

	var res engine.PlaceResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Remaining != 0 || len(res.Trades) != 1 || res.Trades[0].Price != 55 {
		t.Errorf("result = %+v, want one trade at 55", res)
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 1)

	cases := []struct {
		name string
		req  trade.PlaceOrderRequest
		want int
	}{
		{"missing user", trade.PlaceOrderRequest{
			PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID, Price: 50, Quantity: 1,
		}, http.StatusBadRequest},
		{"bad price", trade.PlaceOrderRequest{
			UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID, Price: 0, Quantity: 1,
		}, http.StatusBadRequest},
		{"unknown outcome", trade.PlaceOrderRequest{
			UserID: "alice", PropositionID: prop.ID, OutcomeID: "ghost", Price: 50, Quantity: 1,
		}, http.StatusNotFound},
		{"insufficient funds", trade.PlaceOrderRequest{
			UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID, Price: 50, Quantity: 100,
		}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/orders", tc.req, nil)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)

	w := doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: true, Price: 60, Quantity: 10,
	}, nil)
	var res engine.PlaceResult
	json.Unmarshal(w.Body.Bytes(), &res)

	// No identity header.
	w = doJSON(t, router, "DELETE", "/api/v1/orders/"+res.OrderID, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without X-User-ID, got %d", w.Code)
	}

	// Wrong user.
	w = doJSON(t, router, "DELETE", "/api/v1/orders/"+res.OrderID, nil,
		map[string]string{"X-User-ID": "mallory"})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", w.Code)
	}

	// Owner.
	w = doJSON(t, router, "DELETE", "/api/v1/orders/"+res.OrderID, nil,
		map[string]string{"X-User-ID": "alice"})
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	b, _ := ms.GetBalance(context.Background(), "alice")
	if !b.Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want full refund to 100", b.Value)
	}
}

// --- Settlement ---

func TestResolveProposition(t *testing.T) {
	_, _, router := newTestEnv(t)
	prop := seedProposition(t, router)
	body := map[string]string{"outcome_id": prop.Outcomes[0].ID}

	// No token: forbidden.
	w := doJSON(t, router, "POST", "/api/v1/propositions/"+prop.ID+"/resolve", body, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without token, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/propositions/"+prop.ID+"/resolve", body,
		map[string]string{"X-Staff-Token": staffToken})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	// Trading is closed afterwards.
	wOrder := doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: true, Price: 50, Quantity: 1,
	}, nil)
	if wOrder.Code != http.StatusConflict {
		t.Errorf("expected 409 after resolution, got %d", wOrder.Code)
	}
}

// --- Pricing endpoints ---

func TestGetOutcomePrice(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "bob", 100)

	w := doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "bob", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: false, Price: 45, Quantity: 10,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("order: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/outcomes/"+prop.Outcomes[0].ID+"/price", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp trade.OutcomePriceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Latest != 50 {
		t.Errorf("latest = %d, want prior 50", resp.Latest)
	}
	if resp.Ask != 55 {
		t.Errorf("ask = %d, want 55 against the 45 counter-bid", resp.Ask)
	}

	// The opposite side of the same outcome.
	w = doJSON(t, router, "GET", "/api/v1/outcomes/"+prop.Outcomes[0].ID+"/price?affirm=false", nil, nil)
	var neg trade.OutcomePriceResponse
	json.Unmarshal(w.Body.Bytes(), &neg)
	if neg.Bid != 45 {
		t.Errorf("negative bid = %d, want 45", neg.Bid)
	}
}

func TestGetOutcomeHistory(t *testing.T) {
	_, _, router := newTestEnv(t)
	prop := seedProposition(t, router)

	w := doJSON(t, router, "GET", "/api/v1/outcomes/"+prop.Outcomes[0].ID+"/history", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var points []engine.PricePoint
	json.Unmarshal(w.Body.Bytes(), &points)
	// No trades yet: just the anchor at creation and the closing sample.
	if len(points) != 2 {
		t.Errorf("expected 2 points on a fresh market, got %d", len(points))
	}

	w = doJSON(t, router, "GET", "/api/v1/outcomes/"+prop.Outcomes[0].ID+"/history?resolution=0", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero resolution, got %d", w.Code)
	}
}

// --- Portfolio ---

func TestGetPortfolio(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)
	fund(t, ms, "bob", 100)

	doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "bob", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: false, Price: 45, Quantity: 10,
	}, nil)
	doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: true, Price: 55, Quantity: 10,
	}, nil)

	w := doJSON(t, router, "GET", "/api/v1/users/alice/portfolio", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var portfolio trade.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &portfolio)

	if portfolio.UserID != "alice" {
		t.Errorf("user_id = %s, want alice", portfolio.UserID)
	}
	if !portfolio.Balance.Equal(decimal.RequireFromString("94.5")) {
		t.Errorf("balance = %s, want 94.5", portfolio.Balance)
	}
	if len(portfolio.Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(portfolio.Positions))
	}
	// Tokens marked to the traded price of 55: 94.5 + 5.5.
	if !portfolio.NetWorth.Equal(decimal.NewFromInt(100)) {
		t.Errorf("net worth = %s, want 100", portfolio.NetWorth)
	}
}

func TestGetPortfolio_Empty(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/users/nobody/portfolio", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var portfolio trade.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &portfolio)
	if len(portfolio.Positions) != 0 || len(portfolio.Orders) != 0 {
		t.Errorf("expected empty portfolio, got %+v", portfolio)
	}
}

// --- Dismissal ---

func TestDismissPosition(t *testing.T) {
	_, ms, router := newTestEnv(t)
	prop := seedProposition(t, router)
	fund(t, ms, "alice", 100)
	fund(t, ms, "bob", 100)

	doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "bob", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: false, Price: 45, Quantity: 10,
	}, nil)
	doJSON(t, router, "POST", "/api/v1/orders", trade.PlaceOrderRequest{
		UserID: "alice", PropositionID: prop.ID, OutcomeID: prop.Outcomes[0].ID,
		Affirm: true, Price: 55, Quantity: 10,
	}, nil)

	pos, err := ms.GetPosition(context.Background(), prop.Outcomes[0].ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/v1/users/bob/positions/" + pos.ID + "/dismiss"

	// Still active: conflict.
	w := doJSON(t, router, "POST", path, nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 while active, got %d", w.Code)
	}

	doJSON(t, router, "POST", "/api/v1/propositions/"+prop.ID+"/resolve",
		map[string]string{"outcome_id": prop.Outcomes[0].ID},
		map[string]string{"X-Staff-Token": staffToken})

	w = doJSON(t, router, "POST", path, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 after resolution, got %d: %s", w.Code, w.Body.String())
	}
}
