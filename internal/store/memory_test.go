package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SgtSwagrid/swagbets/internal/model"
	"github.com/SgtSwagrid/swagbets/internal/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, st *store.MemoryStore, id string, price int64) *model.Order {
	t.Helper()
	o := &model.Order{
		ID:            id,
		PropositionID: "prop",
		OutcomeID:     "out",
		Affirm:        true,
		Price:         price,
		Quantity:      10,
		UserID:        "alice",
		PlacedAt:      t0,
	}
	if err := st.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("create order %s: %v", id, err)
	}
	return o
}

func TestOrders_SortedBestFirst(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	seedOrder(t, st, "low", 40)
	seedOrder(t, st, "high", 60)
	first := seedOrder(t, st, "mid-1", 50)
	second := seedOrder(t, st, "mid-2", 50)

	// Seq follows submission order.
	if first.Seq >= second.Seq {
		t.Errorf("seq not monotonic: %d then %d", first.Seq, second.Seq)
	}

	orders, err := st.ListOrders(ctx, "out", true)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	// Highest price first; equal prices keep submission order.
	want := []string{"high", "mid-1", "mid-2", "low"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order book = %v, want %v", ids, want)
		}
	}

	// Opposite side of the same outcome is a separate book.
	opposing, err := st.ListOrders(ctx, "out", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(opposing) != 0 {
		t.Errorf("expected empty negative book, got %d", len(opposing))
	}
}

func TestOrders_UpdateAndDelete(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedOrder(t, st, "ord", 50)

	if err := st.UpdateOrderQuantity(ctx, "ord", 3); err != nil {
		t.Fatal(err)
	}
	o, err := st.GetOrder(ctx, "ord")
	if err != nil || o.Quantity != 3 {
		t.Errorf("quantity = %d, %v; want 3", o.Quantity, err)
	}

	if err := st.DeleteOrder(ctx, "ord"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetOrder(ctx, "ord"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := st.DeleteOrder(ctx, "ord"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
	if err := st.UpdateOrderQuantity(ctx, "ord", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestLatestPrice(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	insert := func(id string, price int64, at time.Time) {
		t.Helper()
		err := st.InsertPrice(ctx, &model.Price{
			ID:            id,
			PropositionID: "prop",
			OutcomeID:     "out",
			Price:         decimal.NewFromInt(price),
			Quantity:      1,
			Time:          at,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if _, err := st.LatestPrice(ctx, "out", t0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no history, got %v", err)
	}

	insert("p1", 40, t0)
	insert("p2", 55, t0.Add(time.Hour))
	// Same instant as p2; insertion order breaks the tie.
	insert("p3", 60, t0.Add(time.Hour))

	p, err := st.LatestPrice(ctx, "out", t0.Add(2*time.Hour))
	if err != nil || p.ID != "p3" {
		t.Errorf("latest = %+v, %v; want p3", p, err)
	}

	// The query instant is inclusive, and earlier instants see earlier
	// rows.
	p, err = st.LatestPrice(ctx, "out", t0)
	if err != nil || p.ID != "p1" {
		t.Errorf("latest at t0 = %+v, %v; want p1", p, err)
	}
	if _, err = st.LatestPrice(ctx, "out", t0.Add(-time.Second)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound before first row, got %v", err)
	}
}

func TestListPrices_InclusiveWindow(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"p1", "p2", "p3"} {
		err := st.InsertPrice(ctx, &model.Price{
			ID:            id,
			PropositionID: "prop",
			OutcomeID:     "out",
			Price:         decimal.NewFromInt(50),
			Quantity:      1,
			Time:          t0.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows, err := st.ListPrices(ctx, "out", t0, t0.Add(time.Hour))
	if err != nil || len(rows) != 2 {
		t.Errorf("window rows = %d, %v; want 2", len(rows), err)
	}
	rows, err = st.ListPricesByProposition(ctx, "prop", t0, t0.Add(2*time.Hour))
	if err != nil || len(rows) != 3 {
		t.Errorf("proposition rows = %d, %v; want 3", len(rows), err)
	}
}

func TestPositions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	pos := &model.Position{
		ID:            "pos1",
		PropositionID: "prop",
		OutcomeID:     "out",
		Affirm:        true,
		Quantity:      10,
		UserID:        "alice",
	}
	if err := st.SavePosition(ctx, pos); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetPosition(ctx, "out", "alice")
	if err != nil || got.ID != "pos1" {
		t.Fatalf("get by outcome/user = %+v, %v", got, err)
	}

	// Save replaces the row wholesale: side flips survive.
	pos.Affirm = false
	pos.Quantity = 5
	if err := st.SavePosition(ctx, pos); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetPositionByID(ctx, "pos1")
	if err != nil || got.Affirm || got.Quantity != 5 {
		t.Errorf("replaced position = %+v, %v; want negative 5", got, err)
	}

	if err := st.DeletePosition(ctx, "pos1"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetPosition(ctx, "out", "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := st.DeletePosition(ctx, "pos1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestBalances(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	// First touch creates a zero balance.
	b, err := st.GetBalance(ctx, "alice")
	if err != nil || !b.Value.IsZero() {
		t.Fatalf("fresh balance = %+v, %v; want zero", b, err)
	}

	if err := st.AdjustBalance(ctx, "alice", decimal.RequireFromString("10.5")); err != nil {
		t.Fatal(err)
	}
	if err := st.AdjustBalance(ctx, "alice", decimal.RequireFromString("-4.25")); err != nil {
		t.Fatal(err)
	}

	b, err = st.GetBalance(ctx, "alice")
	if err != nil || !b.Value.Equal(decimal.RequireFromString("6.25")) {
		t.Errorf("balance = %s, %v; want 6.25", b.Value, err)
	}

	// Balances never reject: the engine checks sufficiency, the store
	// just adjusts.
	if err := st.AdjustBalance(ctx, "alice", decimal.RequireFromString("-100")); err != nil {
		t.Fatal(err)
	}
	b, _ = st.GetBalance(ctx, "alice")
	if !b.Value.Equal(decimal.RequireFromString("-93.75")) {
		t.Errorf("balance = %s, want -93.75", b.Value)
	}
}

func TestPropositionsAndOutcomes(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	prop := &model.Proposition{ID: "prop", Code: "PRP", Active: true, CreatedAt: t0}
	if err := st.CreateProposition(ctx, prop); err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"AAA", "BBB"} {
		err := st.CreateOutcome(ctx, &model.Outcome{ID: code, PropositionID: "prop", Code: code})
		if err != nil {
			t.Fatal(err)
		}
	}

	outcomes, err := st.ListOutcomes(ctx, "prop")
	if err != nil || len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, %v; want 2", len(outcomes), err)
	}

	// Mutating the caller's struct after an update must not leak into
	// the store.
	prop.Active = false
	prop.OutcomeID = "AAA"
	if err := st.UpdateProposition(ctx, prop); err != nil {
		t.Fatal(err)
	}
	prop.OutcomeID = "mutated-later"

	got, err := st.GetProposition(ctx, "prop")
	if err != nil || got.Active || got.OutcomeID != "AAA" {
		t.Errorf("proposition = %+v, %v; want resolved to AAA", got, err)
	}

	if err := st.UpdateProposition(ctx, &model.Proposition{ID: "ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating unknown proposition, got %v", err)
	}
}
