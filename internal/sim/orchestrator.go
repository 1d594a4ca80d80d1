package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/fees"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/market"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
	"github.com/talgya/venturesim/internal/supply"
)

// RunState is the orchestrator's lifecycle state.
type RunState int32

const (
	Idle RunState = iota
	Running
	Paused
	Completed
	Failed
)

// String returns the lowercase state name.
func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Reason explains why a run terminated.
type Reason string

const (
	ReasonMaxTicks      Reason = "max_ticks"
	ReasonBankruptcy    Reason = "bankruptcy"
	ReasonStopped       Reason = "stopped"
	ReasonIntegrity     Reason = "integrity_failure"
	ReasonActionFailure Reason = "action_failure"
	ReasonInternal      Reason = "internal_error"
)

// Config bounds a run.
type Config struct {
	MaxTicks            uint64        `yaml:"max_ticks"`
	TicksPerDay         uint64        `yaml:"ticks_per_day"`
	DecisionTimeout     time.Duration `yaml:"decision_timeout"`
	MaxActionsPerTick   int           `yaml:"max_actions_per_tick"`
	ActionRetries       int           `yaml:"action_retries"`
	BankruptcyThreshold money.Cents   `yaml:"bankruptcy_threshold"` // cash below this counts toward bankruptcy
	BankruptcyTicks     int           `yaml:"bankruptcy_ticks"`     // consecutive ticks below threshold
}

// DefaultConfig returns sane run bounds.
func DefaultConfig() Config {
	return Config{
		MaxTicks:            365,
		TicksPerDay:         1,
		DecisionTimeout:     5 * time.Second,
		MaxActionsPerTick:   16,
		ActionRetries:       2,
		BankruptcyThreshold: 0,
		BankruptcyTicks:     7,
	}
}

// Result is the terminal report of a run. A failed run carries its last
// valid snapshot for forensics; it is never reported as completed.
type Result struct {
	RunID     string
	State     RunState
	Reason    Reason
	Err       error
	Ticks     uint64
	Final     Snapshot
	LastValid Snapshot
}

// Orchestrator drives one isolated run: its own world, ledger, market, and
// supply chain, sharing nothing with other runs but the bus dispatch
// mechanism handed in by the caller.
type Orchestrator struct {
	cfg    Config
	runID  string
	bus    *bus.Bus
	store  *store.Store
	ledger *ledger.Ledger
	market *market.Simulator
	supply *supply.Service
	fees   fees.Schedule
	source DecisionSource

	state  atomic.Int32
	stop   atomic.Bool
	onTick func(Snapshot) // optional per-tick hook (snapshot persistence)

	negativeStreak int
}

// New wires an orchestrator from explicitly constructed services.
func New(cfg Config, b *bus.Bus, st *store.Store, led *ledger.Ledger, mkt *market.Simulator, sup *supply.Service, schedule fees.Schedule, src DecisionSource) *Orchestrator {
	if cfg.TicksPerDay == 0 {
		cfg.TicksPerDay = 1
	}
	return &Orchestrator{
		cfg:    cfg,
		runID:  uuid.NewString(),
		bus:    b,
		store:  st,
		ledger: led,
		market: mkt,
		supply: sup,
		fees:   schedule,
		source: src,
	}
}

// RunID returns the unique identity of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the current lifecycle state.
func (o *Orchestrator) State() RunState { return RunState(o.state.Load()) }

// Pause suspends the tick loop at the next tick boundary.
func (o *Orchestrator) Pause() {
	o.state.CompareAndSwap(int32(Running), int32(Paused))
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() {
	o.state.CompareAndSwap(int32(Paused), int32(Running))
}

// Stop requests termination; honored at the next tick boundary.
func (o *Orchestrator) Stop() { o.stop.Store(true) }

// OnTick registers a hook invoked with the end-of-tick snapshot after the
// tick's events publish. Used by snapshot persistence.
func (o *Orchestrator) OnTick(fn func(Snapshot)) { o.onTick = fn }

// Run executes the tick loop until termination and returns the terminal
// result. Cancellation and stop requests are honored only at tick
// boundaries; a tick in flight always finishes or fails whole.
func (o *Orchestrator) Run(ctx context.Context) Result {
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return Result{RunID: o.runID, State: o.State(), Reason: ReasonInternal,
			Err: fmt.Errorf("run already started (state %s)", o.State())}
	}
	slog.Info("run started", "run_id", o.runID, "max_ticks", o.cfg.MaxTicks, "source", o.source.Name())

	var lastValid Snapshot
	for {
		// Tick boundary: the only place cancellation, stop, and pause are
		// observed.
		if ctx.Err() != nil || o.stop.Load() {
			return o.complete(ReasonStopped, lastValid)
		}
		for o.State() == Paused {
			if ctx.Err() != nil || o.stop.Load() {
				return o.complete(ReasonStopped, lastValid)
			}
			time.Sleep(20 * time.Millisecond)
		}

		if err := o.store.Apply(store.AdvanceTick{TicksPerDay: o.cfg.TicksPerDay}); err != nil {
			return o.fail(ReasonInternal, err, lastValid)
		}
		tick := o.store.Tick()

		// (1) Snapshot world + ledger for the decision source and as the
		// forensic baseline for this tick.
		snap := o.snapshot(tick)
		lastValid = snap

		// (2) Collect a bounded set of proposed actions.
		actions := o.decide(ctx, snap)
		if len(actions) > o.cfg.MaxActionsPerTick {
			slog.Warn("action set truncated",
				"run_id", o.runID, "tick", tick,
				"proposed", len(actions), "limit", o.cfg.MaxActionsPerTick)
			actions = actions[:o.cfg.MaxActionsPerTick]
		}

		// (3) Validate and apply.
		for _, a := range actions {
			if err := o.applyAction(tick, a); err != nil {
				return o.fail(ReasonActionFailure, err, lastValid)
			}
		}

		// (4) Advance the market and the supply chain.
		if err := o.market.Step(tick); err != nil {
			return o.fail(ReasonInternal, err, lastValid)
		}
		if err := o.supply.Step(tick); err != nil {
			return o.fail(ReasonInternal, err, lastValid)
		}
		if err := o.postOverheads(tick); err != nil {
			return o.fail(ReasonInternal, err, lastValid)
		}
		if err := o.syncCash(); err != nil {
			return o.fail(ReasonInternal, err, lastValid)
		}

		// (5) The books must balance after every tick, no exceptions.
		if err := o.ledger.VerifyIntegrity(); err != nil {
			return o.fail(ReasonIntegrity, err, lastValid)
		}

		// (6) Publish completion.
		end := o.snapshot(tick)
		o.bus.Publish(bus.Event{
			Type:    bus.EventTickCompleted,
			Tick:    tick,
			Origin:  "orchestrator",
			Payload: TickPayload{Tick: tick, Day: end.Day, KPIs: end.KPIs},
		})
		if o.onTick != nil {
			o.onTick(end)
		}

		// (7) Termination checks.
		if done, reason := o.shouldTerminate(tick, end.KPIs.Cash); done {
			return o.complete(reason, end)
		}
	}
}

func (o *Orchestrator) shouldTerminate(tick uint64, cash money.Cents) (bool, Reason) {
	if cash < o.cfg.BankruptcyThreshold {
		o.negativeStreak++
	} else {
		o.negativeStreak = 0
	}
	if o.cfg.BankruptcyTicks > 0 && o.negativeStreak >= o.cfg.BankruptcyTicks {
		return true, ReasonBankruptcy
	}
	if tick >= o.cfg.MaxTicks {
		return true, ReasonMaxTicks
	}
	return false, ""
}

// decide calls the decision source with the configured deadline. A timeout
// substitutes an empty action set; the run never blocks on a slow source.
func (o *Orchestrator) decide(ctx context.Context, snap Snapshot) []Action {
	dctx, cancel := context.WithTimeout(ctx, o.cfg.DecisionTimeout)
	defer cancel()

	type outcome struct {
		actions []Action
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		actions, err := o.source.Decide(dctx, snap)
		ch <- outcome{actions, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			slog.Warn("decision source errored, proceeding without actions",
				"run_id", o.runID, "tick", snap.Tick, "error", out.err)
			return nil
		}
		return out.actions
	case <-dctx.Done():
		terr := &TimeoutError{Source: o.source.Name(), Tick: snap.Tick}
		slog.Warn("decision source timed out, substituting no-op",
			"run_id", o.runID, "tick", snap.Tick, "error", terr)
		return nil
	}
}

// applyAction maps one proposed action onto store commands or supply-chain
// calls. Malformed actions are skipped (the run continues); an ordering
// conflict is retried a bounded number of times and then fails the run.
func (o *Orchestrator) applyAction(tick uint64, a Action) error {
	attempt := func() error {
		switch act := a.(type) {
		case ChangePrice:
			return o.store.Apply(store.SetPrice{Product: act.Product, Price: act.Price})
		case ShiftAdBudget:
			return o.store.Apply(store.SetAdBudget{Product: act.Product, Budget: act.Budget})
		case RejectOrder:
			return o.store.Apply(store.CancelOrder{OrderID: act.OrderID})
		case Restock:
			_, err := o.supply.PlaceOrder(tick, act.Supplier, act.Product, act.Qty, act.UnitCost, act.PromisedLead, act.Terms)
			return err
		default:
			return fmt.Errorf("unknown action %T", a)
		}
	}

	var err error
	for try := 0; try <= o.cfg.ActionRetries; try++ {
		err = attempt()
		if err == nil {
			return nil
		}
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("action rejected",
				"run_id", o.runID, "tick", tick,
				"action", a.ActionName(), "error", err)
			return nil
		}
		var cerr *store.ConflictError
		if !errors.As(err, &cerr) {
			return fmt.Errorf("apply %s: %w", a.ActionName(), err)
		}
	}
	return fmt.Errorf("apply %s: retries exhausted: %w", a.ActionName(), err)
}

// postOverheads books recurring costs: advertising spend every tick a
// budget is set, storage fees at each day boundary.
func (o *Orchestrator) postOverheads(tick uint64) error {
	w := o.store.Snapshot()

	var adSpend money.Cents
	for _, p := range w.Products {
		adSpend += p.AdBudget
	}
	if adSpend > 0 {
		_, err := o.ledger.Post(tick, "advertising spend", []ledger.Line{
			{Account: ledger.Advertising, Debit: adSpend},
			{Account: ledger.Cash, Credit: adSpend},
		})
		if err != nil {
			return err
		}
	}

	if tick%o.cfg.TicksPerDay == 0 {
		storage := o.fees.Storage(w.TotalInventory())
		if storage > 0 {
			_, err := o.ledger.Post(tick, "storage fees", []ledger.Line{
				{Account: ledger.StorageFees, Debit: storage},
				{Account: ledger.Cash, Credit: storage},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// syncCash reconciles the world's cash mirror to the ledger, which is the
// source of truth for monetary state.
func (o *Orchestrator) syncCash() error {
	delta := o.ledger.Balance(ledger.Cash) - o.store.Snapshot().Cash
	if delta == 0 {
		return nil
	}
	return o.store.Apply(store.AdjustCash{Delta: delta})
}

func (o *Orchestrator) snapshot(tick uint64) Snapshot {
	w := o.store.Snapshot()
	books := o.ledger.Snapshot()
	return Snapshot{
		Tick:   tick,
		Day:    w.Day,
		KPIs:   computeKPIs(w, books),
		World:  w,
		Ledger: books,
		Agents: w.Agents,
	}
}

func (o *Orchestrator) complete(reason Reason, last Snapshot) Result {
	o.state.Store(int32(Completed))
	final := o.snapshot(o.store.Tick())
	slog.Info("run completed",
		"run_id", o.runID,
		"reason", reason,
		"ticks", final.Tick,
		"cash", final.KPIs.Cash,
		"profit", final.KPIs.Profit,
	)
	return Result{
		RunID:     o.runID,
		State:     Completed,
		Reason:    reason,
		Ticks:     final.Tick,
		Final:     final,
		LastValid: last,
	}
}

func (o *Orchestrator) fail(reason Reason, err error, last Snapshot) Result {
	o.state.Store(int32(Failed))
	tick := o.store.Tick()
	slog.Error("run failed", "run_id", o.runID, "tick", tick, "reason", reason, "error", err)
	o.bus.Publish(bus.Event{
		Type:    bus.EventRunFailed,
		Tick:    tick,
		Origin:  "orchestrator",
		Payload: FailurePayload{Tick: tick, Reason: string(reason)},
	})
	return Result{
		RunID:     o.runID,
		State:     Failed,
		Reason:    reason,
		Err:       err,
		Ticks:     tick,
		LastValid: last,
	}
}
