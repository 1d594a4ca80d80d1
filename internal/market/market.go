// Package market simulates demand, competitor pricing, and best-seller
// rank. It reads the world through snapshots and writes every result back
// through store commands; it never mutates state directly.
package market

import (
	"fmt"
	"math"
	"slices"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/venturesim/internal/fees"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
)

// Config tunes the market model.
type Config struct {
	BaseDemand      float64     `yaml:"base_demand"`       // units/tick at price parity
	Elasticity      float64     `yaml:"elasticity"`        // price sensitivity exponent
	SmoothingAlpha  float64     `yaml:"smoothing_alpha"`   // EWMA weight for new sales
	RankDecay       float64     `yaml:"rank_decay"`        // weight kept from previous rank score
	AdLiftPer10     float64     `yaml:"ad_lift_per_10"`    // demand lift per $10/tick ad budget
	UndercutDelta   money.Cents `yaml:"undercut_delta"`    // cents undercutters shave off
	RestockInterval uint64      `yaml:"restock_interval"`  // competitor restock cadence, ticks
	RestockQty      int64       `yaml:"restock_qty"`       // units per competitor restock
	NoiseAmplitude  float64     `yaml:"noise_amplitude"`   // demand noise, fraction of demand
}

// DefaultConfig returns the tuning used by the standard scenario.
func DefaultConfig() Config {
	return Config{
		BaseDemand:      8,
		Elasticity:      1.6,
		SmoothingAlpha:  0.3,
		RankDecay:       0.8,
		AdLiftPer10:     0.05,
		UndercutDelta:   50,
		RestockInterval: 12,
		RestockQty:      40,
		NoiseAmplitude:  0.15,
	}
}

// Simulator advances the market one step per tick.
type Simulator struct {
	cfg    Config
	store  *store.Store
	ledger *ledger.Ledger
	fees   fees.Schedule
	noise  opensimplex.Noise

	// Decayed rank scores per participant; survives across ticks so a
	// single noisy tick cannot reorder the rank table.
	scores map[string]float64

	// Units sold by the demand resolution of the current step, per product.
	sold map[store.ProductID]int64
}

// New creates a market simulator. The noise grid is derived from the run
// seed, so two simulators with the same seed replay the same market.
func New(cfg Config, st *store.Store, led *ledger.Ledger, schedule fees.Schedule, seed int64) *Simulator {
	return &Simulator{
		cfg:    cfg,
		store:  st,
		ledger: led,
		fees:   schedule,
		noise:  opensimplex.NewNormalized(seed),
		scores: make(map[string]float64),
		sold:   make(map[store.ProductID]int64),
	}
}

// Step runs one market tick: competitor responses, demand resolution and
// sale settlement, then index and rank writeback.
func (s *Simulator) Step(tick uint64) error {
	clear(s.sold)
	w := s.store.Snapshot()

	if err := s.respondCompetitors(w, tick); err != nil {
		return fmt.Errorf("competitor response: %w", err)
	}

	// Re-read after competitor moves so pricing below sees their new
	// prices.
	w = s.store.Snapshot()
	ref := ReferencePrice(w)

	if err := s.resolveDemand(w, tick, ref); err != nil {
		return fmt.Errorf("demand resolution: %w", err)
	}

	w = s.store.Snapshot()
	if err := s.writeIndices(w, ref); err != nil {
		return fmt.Errorf("index writeback: %w", err)
	}
	return nil
}

// ReferencePrice is the mean in-stock competitor price, the basket our
// relative price index is measured against. Out-of-stock competitors never
// participate. Falls back to the mean own listing when every competitor is
// dark.
func ReferencePrice(w *store.WorldState) money.Cents {
	var sum money.Cents
	var n int64
	for _, c := range w.Competitors {
		if c.OutOfStock {
			continue
		}
		sum += c.Price
		n++
	}
	if n > 0 {
		return sum / money.Cents(n)
	}
	for _, p := range w.Products {
		sum += p.Price
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / money.Cents(n)
}

// ownFloorPrice is the cheapest in-stock own listing competitors react to.
func ownFloorPrice(w *store.WorldState) (money.Cents, bool) {
	var floor money.Cents
	found := false
	for _, id := range sortedProducts(w) {
		p := w.Products[id]
		if p.Inventory == 0 {
			continue
		}
		if !found || p.Price < floor {
			floor = p.Price
			found = true
		}
	}
	return floor, found
}

func (s *Simulator) respondCompetitors(w *store.WorldState, tick uint64) error {
	floor, haveFloor := ownFloorPrice(w)

	for _, id := range sortedCompetitors(w) {
		c := w.Competitors[id]
		price := c.Price
		if haveFloor {
			switch c.Strategy {
			case store.StrategyUndercut:
				if floor-s.cfg.UndercutDelta > 0 {
					price = floor - s.cfg.UndercutDelta
				}
			case store.StrategyMatch:
				price = floor
			case store.StrategyHold:
				// keeps its price
			}
		}

		// Stock depletion: cheaper competitors sell faster. Replenishment
		// arrives on a fixed cadence.
		inv := c.Inventory
		if inv > 0 {
			sold := int64(1)
			if haveFloor && c.Price < floor {
				sold = 2
			}
			if sold > inv {
				sold = inv
			}
			inv -= sold
		}
		if s.cfg.RestockInterval > 0 && tick%s.cfg.RestockInterval == 0 {
			inv += s.cfg.RestockQty
		}

		err := s.store.Apply(store.UpdateCompetitor{
			Competitor: id,
			Price:      price,
			Inventory:  inv,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// demandFor models units demanded this tick for one product.
func (s *Simulator) demandFor(p *store.Product, tick uint64, ref money.Cents) int64 {
	if p.Price <= 0 || ref <= 0 {
		return 0
	}
	ratio := float64(ref) / float64(p.Price)
	demand := s.cfg.BaseDemand * math.Pow(ratio, s.cfg.Elasticity)

	// Advertising lift, diminishing nothing fancy: linear in budget.
	lift := 1 + s.cfg.AdLiftPer10*float64(p.AdBudget)/1000.0
	demand *= lift

	// Smooth deterministic noise over (product, tick).
	n := s.noise.Eval2(float64(tick)*0.1, productNoiseLane(p.ID))
	demand *= 1 + s.cfg.NoiseAmplitude*(2*n-1)

	if demand < 0 {
		return 0
	}
	return int64(math.Floor(demand + 0.5))
}

// productNoiseLane spreads products across the noise grid.
func productNoiseLane(id store.ProductID) float64 {
	var h uint32
	for _, b := range []byte(id) {
		h = h*31 + uint32(b)
	}
	return float64(h%1024) * 3.7
}

func (s *Simulator) resolveDemand(w *store.WorldState, tick uint64, ref money.Cents) error {
	for _, id := range sortedProducts(w) {
		p := w.Products[id]
		demand := s.demandFor(p, tick, ref)
		qty := demand
		if qty > p.Inventory {
			qty = p.Inventory
		}
		if qty <= 0 {
			continue
		}
		if err := s.settleSale(tick, p, qty); err != nil {
			return err
		}
	}
	return nil
}

// settleSale applies the sale to the world and posts the matching ledger
// transaction: cash at net proceeds, marketplace fees as expenses, revenue
// at gross, and cost-of-goods relief at unit cost.
func (s *Simulator) settleSale(tick uint64, p *store.Product, qty int64) error {
	if err := s.store.Apply(store.RecordSale{Product: p.ID, Qty: qty}); err != nil {
		return err
	}
	s.sold[p.ID] += qty

	b := s.fees.ForSale(p.Price, qty)
	cogs := p.UnitCost.MulQty(qty)

	lines := []ledger.Line{{Account: ledger.Sales, Credit: b.Gross}}
	if b.Net > 0 {
		lines = append(lines, ledger.Line{Account: ledger.Cash, Debit: b.Net})
	} else if b.Net < 0 {
		// Fees exceeded the sale price; the marketplace bills the gap.
		lines = append(lines, ledger.Line{Account: ledger.Cash, Credit: -b.Net})
	}
	if b.Referral > 0 {
		lines = append(lines, ledger.Line{Account: ledger.OtherExpense, Debit: b.Referral})
	}
	if b.Fulfillment > 0 {
		lines = append(lines, ledger.Line{Account: ledger.Fulfillment, Debit: b.Fulfillment})
	}
	if cogs > 0 {
		lines = append(lines,
			ledger.Line{Account: ledger.COGS, Debit: cogs},
			ledger.Line{Account: ledger.Inventory, Credit: cogs},
		)
	}
	memo := fmt.Sprintf("sale %s x%d", p.ID, qty)
	if _, err := s.ledger.Post(tick, memo, lines); err != nil {
		return fmt.Errorf("post sale: %w", err)
	}
	return nil
}

// writeIndices recomputes velocity, price/sales indices, and BSR for every
// product, then writes them back through commands.
func (s *Simulator) writeIndices(w *store.WorldState, ref money.Cents) error {
	// Update decayed scores for competitors first; an out-of-stock
	// competitor keeps its place in rank history but scores nothing new.
	for _, id := range sortedCompetitors(w) {
		c := w.Competitors[id]
		raw := 0.0
		if !c.OutOfStock && c.Price > 0 && ref > 0 {
			raw = float64(ref) / float64(c.Price)
		}
		s.scores["c/"+string(id)] = s.cfg.RankDecay*s.scores["c/"+string(id)] + (1-s.cfg.RankDecay)*raw
	}

	type ranked struct {
		key   string
		score float64
	}
	var table []ranked

	ids := sortedProducts(w)
	velocities := make(map[store.ProductID]float64, len(ids))
	priceIndices := make(map[store.ProductID]float64, len(ids))
	var totalVelocity float64

	for _, id := range ids {
		p := w.Products[id]
		v := s.cfg.SmoothingAlpha*float64(s.sold[id]) + (1-s.cfg.SmoothingAlpha)*p.SalesVelocity
		velocities[id] = v
		totalVelocity += v

		priceIndex := 1.0
		if ref > 0 && p.Price > 0 {
			priceIndex = float64(p.Price) / float64(ref)
		}
		priceIndices[id] = priceIndex

		raw := 0.0
		if priceIndex > 0 && s.cfg.BaseDemand > 0 {
			raw = (v / s.cfg.BaseDemand) / priceIndex
		}
		key := "p/" + string(id)
		s.scores[key] = s.cfg.RankDecay*s.scores[key] + (1-s.cfg.RankDecay)*raw
		table = append(table, ranked{key: key, score: s.scores[key]})
	}

	for _, id := range sortedCompetitors(w) {
		key := "c/" + string(id)
		table = append(table, ranked{key: key, score: s.scores[key]})
	}

	sort.SliceStable(table, func(i, j int) bool {
		if table[i].score != table[j].score {
			return table[i].score > table[j].score
		}
		return table[i].key < table[j].key
	})

	rankOf := make(map[string]int64, len(table))
	for i, r := range table {
		rankOf[r.key] = int64(i + 1)
	}

	for _, id := range ids {
		salesIndex := 0.0
		if totalVelocity > 0 {
			salesIndex = velocities[id] / totalVelocity
		}
		if err := s.store.Apply(store.SetProductStats{
			Product:    id,
			Velocity:   velocities[id],
			PriceIndex: priceIndices[id],
			SalesIndex: salesIndex,
			BSR:        rankOf["p/"+string(id)],
		}); err != nil {
			return err
		}
	}
	return nil
}

func sortedProducts(w *store.WorldState) []store.ProductID {
	ids := make([]store.ProductID, 0, len(w.Products))
	for id := range w.Products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortedCompetitors(w *store.WorldState) []store.CompetitorID {
	ids := make([]store.CompetitorID, 0, len(w.Competitors))
	for id := range w.Competitors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
