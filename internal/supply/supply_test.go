package supply

import (
	"testing"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/rng"
	"github.com/talgya/venturesim/internal/store"
)

func supplyWorld() *store.WorldState {
	w := store.NewWorldState()
	w.Cash = money.FromDollars(5000)
	w.Products["widget"] = &store.Product{ID: "widget", Name: "Widget", Price: 2000, UnitCost: 700, BSR: 1}
	return w
}

func newService(t *testing.T, cfg Config, seed int64, b *bus.Bus) (*Service, *store.Store, *ledger.Ledger) {
	t.Helper()
	st := store.New(nil, nil)
	st.Seed(supplyWorld())
	l := ledger.New(nil)
	if _, err := l.Post(0, "opening balances", []ledger.Line{
		{Account: ledger.Cash, Debit: money.FromDollars(5000)},
		{Account: ledger.OwnerCapital, Credit: money.FromDollars(5000)},
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	return New(cfg, st, l, b, seed, rng.New(seed)), st, l
}

func noDisruption() Config {
	return Config{PerturbMax: 0, BlackSwanProb: 0, BlackSwanExtension: 0}
}

func TestOrderMaturesAtPromisedTickWithoutDisruption(t *testing.T) {
	svc, st, l := newService(t, noDisruption(), 1, nil)

	order, err := svc.PlaceOrder(1, "acme", "widget", 50, 700, 5, store.TermsCash)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.DeliveryTick != 6 {
		t.Fatalf("delivery tick = %d, want 6", order.DeliveryTick)
	}
	if order.Disrupted {
		t.Fatal("undisturbed order flagged disrupted")
	}

	for tick := uint64(2); tick <= 5; tick++ {
		if err := svc.Step(tick); err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
		if got := st.Snapshot().Products["widget"].Inventory; got != 0 {
			t.Fatalf("inventory credited early at tick %d", tick)
		}
	}

	if err := svc.Step(6); err != nil {
		t.Fatalf("step 6: %v", err)
	}
	w := st.Snapshot()
	if got := w.Products["widget"].Inventory; got != 50 {
		t.Fatalf("inventory = %d, want 50", got)
	}
	if w.Orders[0].Status != store.OrderDelivered {
		t.Fatalf("order status = %s, want delivered", w.Orders[0].Status)
	}

	// Ledger: inventory asset up, cash down, equation holds.
	if got := l.Balance(ledger.Inventory); got != 35000 {
		t.Fatalf("inventory asset = %d, want 35000", got)
	}
	if got := l.Balance(ledger.Cash); got != money.FromDollars(5000)-35000 {
		t.Fatalf("cash = %d, want %d", got, money.FromDollars(5000)-35000)
	}
	if err := l.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestDisruptionDelaysDeliveryToActualTick(t *testing.T) {
	// Black swan on every order: promised lead 5 extends to 9.
	cfg := Config{PerturbMax: 0, BlackSwanProb: 1, BlackSwanExtension: 4}
	b := bus.New()
	var disruptions []DisruptionPayload
	b.Subscribe(bus.EventSupplyDisruption, func(e bus.Event) {
		disruptions = append(disruptions, e.Payload.(DisruptionPayload))
	})
	svc, st, _ := newService(t, cfg, 1, b)

	order, err := svc.PlaceOrder(0, "acme", "widget", 10, 700, 5, store.TermsCash)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.DeliveryTick != 9 {
		t.Fatalf("delivery tick = %d, want 9", order.DeliveryTick)
	}

	if err := svc.Step(5); err != nil {
		t.Fatalf("step 5: %v", err)
	}
	if got := st.Snapshot().Products["widget"].Inventory; got != 0 {
		t.Fatal("inventory credited at promised tick despite disruption")
	}

	if err := svc.Step(9); err != nil {
		t.Fatalf("step 9: %v", err)
	}
	if got := st.Snapshot().Products["widget"].Inventory; got != 10 {
		t.Fatalf("inventory at tick 9 = %d, want 10", got)
	}

	if len(disruptions) != 1 {
		t.Fatalf("disruption events = %d, want 1", len(disruptions))
	}
	d := disruptions[0]
	if !d.BlackSwan || d.PromisedLead != 5 || d.ActualLead != 9 {
		t.Fatalf("disruption payload = %+v", d)
	}
}

func TestCreditTermsPostToPayables(t *testing.T) {
	svc, _, l := newService(t, noDisruption(), 1, nil)

	if _, err := svc.PlaceOrder(0, "acme", "widget", 10, 700, 1, store.TermsCredit); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if err := svc.Step(1); err != nil {
		t.Fatalf("step: %v", err)
	}

	if got := l.Balance(ledger.Payables); got != 7000 {
		t.Fatalf("payables = %d, want 7000", got)
	}
	if got := l.Balance(ledger.Cash); got != money.FromDollars(5000) {
		t.Fatalf("cash moved on credit terms: %d", got)
	}
	if err := l.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestPerturbationIsDeterministicPerSeed(t *testing.T) {
	cfg := Config{PerturbMax: 3, BlackSwanProb: 0.5, BlackSwanExtension: 10}

	place := func(seed int64) []uint64 {
		svc, _, _ := newService(t, cfg, seed, nil)
		var ticks []uint64
		for i := 0; i < 10; i++ {
			o, err := svc.PlaceOrder(0, "acme", "widget", 1, 700, 5, store.TermsCash)
			if err != nil {
				t.Fatalf("PlaceOrder: %v", err)
			}
			ticks = append(ticks, o.DeliveryTick)
		}
		return ticks
	}

	a, b := place(42), place(42)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("delivery ticks diverged at order %d: %d vs %d", i, a[i], b[i])
		}
	}
}
