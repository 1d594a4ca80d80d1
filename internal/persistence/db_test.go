package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/sim"
	"github.com/talgya/venturesim/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSnapshot(tick uint64) sim.Snapshot {
	w := store.NewWorldState()
	w.Tick = tick
	w.Cash = 123456
	w.Products["widget"] = &store.Product{ID: "widget", Price: 2000, UnitCost: 800, Inventory: 42, BSR: 1}

	l := ledger.New(nil)
	l.Post(tick, "opening balances", []ledger.Line{
		{Account: ledger.Cash, Debit: 123456},
		{Account: ledger.OwnerCapital, Credit: 123456},
	})

	return sim.Snapshot{
		Tick:   tick,
		Day:    tick,
		KPIs:   sim.KPIs{Cash: 123456, InventoryUnits: 42},
		World:  w,
		Ledger: l.Snapshot(),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.BeginRun("run-1", "baseline", 7); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	want := sampleSnapshot(5)
	if err := db.SaveSnapshot("run-1", want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.LoadSnapshot("run-1", 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tick != 5 || got.KPIs.Cash != 123456 {
		t.Fatalf("tick/cash = %d/%d", got.Tick, got.KPIs.Cash)
	}
	p := got.World.Products["widget"]
	if p == nil || p.Inventory != 42 {
		t.Fatalf("widget = %+v", p)
	}
	if len(got.Ledger.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(got.Ledger.Transactions))
	}

	if _, err := db.LoadSnapshot("run-1", 99); err == nil {
		t.Fatal("load of missing tick succeeded")
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	db := openTestDB(t)

	snap := sampleSnapshot(3)
	if err := db.SaveSnapshot("run-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.KPIs.Cash = 999
	if err := db.SaveSnapshot("run-1", snap); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, err := db.LoadSnapshot("run-1", 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.KPIs.Cash != 999 {
		t.Fatalf("cash = %d, want replaced value 999", got.KPIs.Cash)
	}
}

func TestLatestTick(t *testing.T) {
	db := openTestDB(t)

	tick, err := db.LatestTick("run-1")
	if err != nil {
		t.Fatalf("latest on empty: %v", err)
	}
	if tick != 0 {
		t.Fatalf("latest on empty = %d, want 0", tick)
	}

	for _, n := range []uint64{1, 4, 2} {
		if err := db.SaveSnapshot("run-1", sampleSnapshot(n)); err != nil {
			t.Fatalf("save %d: %v", n, err)
		}
	}
	tick, err = db.LatestTick("run-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if tick != 4 {
		t.Fatalf("latest = %d, want 4", tick)
	}
}

func TestEventLog(t *testing.T) {
	db := openTestDB(t)

	events := []bus.Event{
		{Type: bus.EventTickCompleted, Tick: 1, Origin: "orchestrator"},
		{Type: bus.EventTransactionPosted, Tick: 1, Origin: "ledger",
			Payload: ledger.PostedPayload{TxID: "tx-000001", Memo: "sale", Total: 2000}},
		{Type: bus.EventTickCompleted, Tick: 2, Origin: "orchestrator"},
	}
	if err := db.SaveEvents("run-1", events); err != nil {
		t.Fatalf("save events: %v", err)
	}

	rows, err := db.RecentEvents("run-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Newest first.
	if rows[0].Tick != 2 || rows[1].Type != string(bus.EventTransactionPosted) {
		t.Fatalf("rows = %+v", rows)
	}

	// Other runs are invisible.
	rows, err = db.RecentEvents("run-2", 10)
	if err != nil {
		t.Fatalf("recent other run: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows for other run = %d, want 0", len(rows))
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	if err := db.BeginRun("run-1", "baseline", 7); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res := sim.Result{State: sim.Completed, Reason: sim.ReasonMaxTicks, Ticks: 30, Final: sampleSnapshot(30)}
	if err := db.SaveResult("run-1", res, nil); err != nil {
		t.Fatalf("save result: %v", err)
	}

	var state string
	if err := db.conn.Get(&state, "SELECT state FROM runs WHERE run_id = ?", "run-1"); err != nil {
		t.Fatalf("query run: %v", err)
	}
	if state != "completed" {
		t.Fatalf("state = %q, want completed", state)
	}
	if _, err := db.LoadSnapshot("run-1", 30); err != nil {
		t.Fatalf("final snapshot missing: %v", err)
	}
}

func TestWorldPersisterRoundTrip(t *testing.T) {
	db := openTestDB(t)
	p := db.NewWorldPersister("checkpoint")

	if _, err := p.LoadWorld(); !errors.Is(err, store.ErrNoSavedWorld) {
		t.Fatalf("err = %v, want ErrNoSavedWorld", err)
	}

	w := store.NewWorldState()
	w.Tick = 12
	w.Cash = 5000
	if err := p.SaveWorld(w); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := p.LoadWorld()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tick != 12 || got.Cash != 5000 {
		t.Fatalf("tick/cash = %d/%d", got.Tick, got.Cash)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.GetMeta("schema_version"); err != nil || v != schemaVersion {
		t.Fatalf("schema_version = %q, %v", v, err)
	}
	if err := db.SaveMeta("last_run", "run-1"); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	if v, _ := db.GetMeta("last_run"); v != "run-1" {
		t.Fatalf("last_run = %q", v)
	}
}
