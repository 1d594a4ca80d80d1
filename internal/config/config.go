// Package config loads run scenarios from YAML and applies environment
// overrides. A scenario is the complete declarative input of one run:
// seed, bounds, catalog, competitors, market and supply tuning, fees, and
// the decision source. Everything else derives from it.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talgya/venturesim/internal/fees"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/market"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/sim"
	"github.com/talgya/venturesim/internal/store"
	"github.com/talgya/venturesim/internal/supply"
)

// ProductSpec declares one catalog entry at run start.
type ProductSpec struct {
	ID        string      `yaml:"id"`
	Name      string      `yaml:"name"`
	Price     money.Cents `yaml:"price"`
	UnitCost  money.Cents `yaml:"unit_cost"`
	Inventory int64       `yaml:"inventory"`
}

// CompetitorSpec declares one rival listing at run start.
type CompetitorSpec struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Price     money.Cents    `yaml:"price"`
	Inventory int64          `yaml:"inventory"`
	Strategy  store.Strategy `yaml:"strategy"`
}

// SourceSpec selects and tunes the decision source for a run.
type SourceSpec struct {
	Kind string `yaml:"kind"` // "heuristic" or "scripted"

	// Heuristic tuning; ignored for other kinds.
	Supplier     string      `yaml:"supplier"`
	ReorderBelow int64       `yaml:"reorder_below"`
	ReorderQty   int64       `yaml:"reorder_qty"`
	PromisedLead uint64      `yaml:"promised_lead"`
	UndercutBy   money.Cents `yaml:"undercut_by"`
}

// Scenario is one complete run description.
type Scenario struct {
	Name         string           `yaml:"name"`
	Seed         int64            `yaml:"seed"`
	StartingCash money.Cents      `yaml:"starting_cash"`
	Run          sim.Config       `yaml:"run"`
	Market       market.Config    `yaml:"market"`
	Supply       supply.Config    `yaml:"supply"`
	Fees         fees.Schedule    `yaml:"fees"`
	Products     []ProductSpec    `yaml:"products"`
	Competitors  []CompetitorSpec `yaml:"competitors"`
	Source       SourceSpec       `yaml:"source"`
}

// Default returns the baseline scenario: one product, two competitors,
// a year of daily ticks, heuristic decisions.
func Default() Scenario {
	return Scenario{
		Name:         "baseline",
		Seed:         1,
		StartingCash: money.FromDollars(25000),
		Run:          sim.DefaultConfig(),
		Market:       market.DefaultConfig(),
		Supply:       supply.DefaultConfig(),
		Fees:         fees.DefaultSchedule(),
		Products: []ProductSpec{
			{ID: "widget", Name: "Widget", Price: 2000, UnitCost: 800, Inventory: 200},
		},
		Competitors: []CompetitorSpec{
			{ID: "alpha", Name: "Alpha Goods", Price: 2200, Inventory: 150, Strategy: store.StrategyUndercut},
			{ID: "bravo", Name: "Bravo Trading", Price: 1900, Inventory: 120, Strategy: store.StrategyHold},
		},
		Source: SourceSpec{
			Kind:         "heuristic",
			Supplier:     "acme",
			ReorderBelow: 60,
			ReorderQty:   120,
			PromisedLead: 5,
			UndercutBy:   25,
		},
	}
}

// Load reads a scenario file. Fields absent from the file keep the
// baseline defaults, so a scenario only states what it changes.
func Load(path string) (Scenario, error) {
	s := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects scenarios that cannot produce a coherent run.
func (s Scenario) Validate() error {
	if s.StartingCash < 0 {
		return fmt.Errorf("starting_cash must be >= 0, got %s", s.StartingCash)
	}
	if s.Run.MaxTicks == 0 {
		return fmt.Errorf("run.max_ticks must be > 0")
	}
	if len(s.Products) == 0 {
		return fmt.Errorf("at least one product required")
	}
	seen := map[string]bool{}
	for _, p := range s.Products {
		if p.ID == "" {
			return fmt.Errorf("product id must not be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate product id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Price <= 0 {
			return fmt.Errorf("product %q: price must be > 0", p.ID)
		}
		if p.UnitCost <= 0 {
			return fmt.Errorf("product %q: unit_cost must be > 0", p.ID)
		}
		if p.Inventory < 0 {
			return fmt.Errorf("product %q: inventory must be >= 0", p.ID)
		}
	}
	for _, c := range s.Competitors {
		if c.ID == "" {
			return fmt.Errorf("competitor id must not be empty")
		}
		switch c.Strategy {
		case store.StrategyUndercut, store.StrategyMatch, store.StrategyHold:
		default:
			return fmt.Errorf("competitor %q: unknown strategy %q", c.ID, c.Strategy)
		}
	}
	switch s.Source.Kind {
	case "heuristic", "scripted":
	default:
		return fmt.Errorf("unknown source kind %q", s.Source.Kind)
	}
	return nil
}

// BuildWorld constructs the opening world state for this scenario.
func (s Scenario) BuildWorld() *store.WorldState {
	w := store.NewWorldState()
	w.Cash = s.StartingCash
	for _, p := range s.Products {
		w.Products[store.ProductID(p.ID)] = &store.Product{
			ID:        store.ProductID(p.ID),
			Name:      p.Name,
			Price:     p.Price,
			UnitCost:  p.UnitCost,
			Inventory: p.Inventory,
			BSR:       1,
		}
	}
	for _, c := range s.Competitors {
		w.Competitors[store.CompetitorID(c.ID)] = &store.Competitor{
			ID:         store.CompetitorID(c.ID),
			Name:       c.Name,
			Price:      c.Price,
			Inventory:  c.Inventory,
			Strategy:   c.Strategy,
			OutOfStock: c.Inventory == 0,
		}
	}
	return w
}

// OpeningLines returns the opening balance entry: cash and inventory
// against owner capital.
func (s Scenario) OpeningLines() []ledger.Line {
	var inventory money.Cents
	for _, p := range s.Products {
		inventory += p.UnitCost.MulQty(p.Inventory)
	}
	lines := []ledger.Line{}
	if s.StartingCash > 0 {
		lines = append(lines, ledger.Line{Account: ledger.Cash, Debit: s.StartingCash})
	}
	if inventory > 0 {
		lines = append(lines, ledger.Line{Account: ledger.Inventory, Debit: inventory})
	}
	lines = append(lines, ledger.Line{Account: ledger.OwnerCapital, Credit: s.StartingCash + inventory})
	return lines
}

// BuildSource constructs the scenario's decision source.
func (s Scenario) BuildSource() sim.DecisionSource {
	switch s.Source.Kind {
	case "scripted":
		return &sim.ScriptedSource{}
	default:
		return &sim.HeuristicSource{
			Supplier:     s.Source.Supplier,
			ReorderBelow: s.Source.ReorderBelow,
			ReorderQty:   s.Source.ReorderQty,
			PromisedLead: s.Source.PromisedLead,
			UndercutBy:   s.Source.UndercutBy,
		}
	}
}

// Env holds process-level settings read from the environment. These
// override the scenario file where both speak.
type Env struct {
	ScenarioPath string `env:"VENTURESIM_SCENARIO"`
	DBPath       string `env:"VENTURESIM_DB" envDefault:"venturesim.db"`
	Seed         int64  `env:"VENTURESIM_SEED"`
	MaxTicks     uint64 `env:"VENTURESIM_MAX_TICKS"`
	LogLevel     string `env:"VENTURESIM_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads settings from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply folds environment overrides into a scenario. Zero values mean
// "not set" and leave the scenario alone.
func (e Env) Apply(s *Scenario) {
	if e.Seed != 0 {
		s.Seed = e.Seed
	}
	if e.MaxTicks != 0 {
		s.Run.MaxTicks = e.MaxTicks
	}
}
