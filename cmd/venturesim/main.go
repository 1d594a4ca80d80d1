// Command venturesim runs one business simulation: a seeded market, a
// double-entry ledger, a supply chain, and a decision source driving the
// business tick by tick.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/config"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/market"
	"github.com/talgya/venturesim/internal/persistence"
	"github.com/talgya/venturesim/internal/rng"
	"github.com/talgya/venturesim/internal/sim"
	"github.com/talgya/venturesim/internal/store"
	"github.com/talgya/venturesim/internal/supply"
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		slog.Error("bad environment", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(env.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// ── Scenario ──────────────────────────────────────────────────────
	scenario := config.Default()
	if env.ScenarioPath != "" {
		scenario, err = config.Load(env.ScenarioPath)
		if err != nil {
			slog.Error("failed to load scenario", "error", err)
			os.Exit(1)
		}
	}
	env.Apply(&scenario)
	slog.Info("scenario loaded",
		"name", scenario.Name,
		"seed", scenario.Seed,
		"max_ticks", scenario.Run.MaxTicks,
		"products", len(scenario.Products),
		"competitors", len(scenario.Competitors),
		"source", scenario.Source.Kind,
	)

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(env.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", env.DBPath)

	// ── World, Books, Models ──────────────────────────────────────────
	b := bus.New()
	st := store.New(b, db.NewWorldPersister(scenario.Name))
	st.Seed(scenario.BuildWorld())

	books := ledger.New(b)
	if _, err := books.Post(0, "opening balances", scenario.OpeningLines()); err != nil {
		slog.Error("failed to post opening balances", "error", err)
		os.Exit(1)
	}

	mkt := market.New(scenario.Market, st, books, scenario.Fees, scenario.Seed)
	sup := supply.New(scenario.Supply, st, books, b, scenario.Seed, rng.New(scenario.Seed))

	orch := sim.New(scenario.Run, b, st, books, mkt, sup, scenario.Fees, scenario.BuildSource())
	runID := orch.RunID()

	// ── Observers ─────────────────────────────────────────────────────
	var pending []bus.Event
	for _, typ := range []bus.EventType{
		bus.EventTickCompleted,
		bus.EventTransactionPosted,
		bus.EventSupplyDisruption,
		bus.EventRunFailed,
	} {
		b.Subscribe(typ, func(e bus.Event) {
			pending = append(pending, e)
		})
	}
	b.Subscribe(bus.EventSupplyDisruption, func(e bus.Event) {
		d := e.Payload.(supply.DisruptionPayload)
		slog.Warn("supply disruption",
			"order", d.OrderID,
			"promised_lead", d.PromisedLead,
			"actual_lead", d.ActualLead,
			"black_swan", d.BlackSwan,
		)
	})

	// Persist the end-of-tick snapshot and the tick's events.
	orch.OnTick(func(snap sim.Snapshot) {
		if err := db.SaveSnapshot(runID, snap); err != nil {
			slog.Error("snapshot save failed", "tick", snap.Tick, "error", err)
		}
		if err := db.SaveEvents(runID, pending); err != nil {
			slog.Error("event save failed", "tick", snap.Tick, "error", err)
		}
		pending = pending[:0]

		if snap.Tick%30 == 0 {
			slog.Info("progress",
				"tick", snap.Tick,
				"cash", snap.KPIs.Cash,
				"revenue", snap.KPIs.Revenue,
				"profit", snap.KPIs.Profit,
				"inventory", snap.KPIs.InventoryUnits,
			)
		}
	})

	// ── Run ───────────────────────────────────────────────────────────
	if err := db.BeginRun(runID, scenario.Name, scenario.Seed); err != nil {
		slog.Error("failed to register run", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, stopping at tick boundary", "signal", sig)
		orch.Stop()
	}()

	fmt.Printf("Run %s: %q, seed %d, up to %d ticks. (Ctrl+C to stop)\n",
		runID, scenario.Name, scenario.Seed, scenario.Run.MaxTicks)

	res := orch.Run(context.Background())

	if err := db.SaveResult(runID, res, pending); err != nil {
		slog.Error("final save failed", "error", err)
	}

	// ── Summary ───────────────────────────────────────────────────────
	final := res.Final
	if res.State == sim.Failed {
		final = res.LastValid
	}
	fmt.Printf("\nRun %s %s (%s) after %d ticks.\n", runID, res.State, res.Reason, res.Ticks)
	if final.World != nil {
		fmt.Printf("Cash %s | Revenue %s | Expenses %s | Profit %s\n",
			final.KPIs.Cash, final.KPIs.Revenue, final.KPIs.Expenses, final.KPIs.Profit)
		fmt.Printf("Inventory %d units | Units sold %d\n",
			final.KPIs.InventoryUnits, final.KPIs.UnitsSold)
	}
	if res.Err != nil {
		fmt.Printf("Failure: %v\n", res.Err)
		os.Exit(1)
	}
}
