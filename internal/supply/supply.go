// Package supply models supplier lead times, stochastic disruption, and
// inbound inventory maturation. Orders placed here arrive later than
// promised when the congestion noise or a black-swan event says so; on
// arrival the service credits stock through a store command and posts the
// matching ledger transaction.
package supply

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
)

// Config tunes the disruption model.
type Config struct {
	PerturbMax         uint64  `yaml:"perturb_max"`          // max extra ticks from congestion
	BlackSwanProb      float64 `yaml:"black_swan_prob"`      // per-order probability
	BlackSwanExtension uint64  `yaml:"black_swan_extension"` // extra ticks on a black swan
}

// DefaultConfig returns the standard disruption tuning.
func DefaultConfig() Config {
	return Config{
		PerturbMax:         3,
		BlackSwanProb:      0.02,
		BlackSwanExtension: 10,
	}
}

// DisruptionPayload is the bus payload for a modeled supply disruption.
// Disruptions are domain events, not errors: the run continues and the
// order arrives late.
type DisruptionPayload struct {
	OrderID      string
	Supplier     string
	PromisedLead uint64
	ActualLead   uint64
	BlackSwan    bool
}

// EventType implements bus.Payload.
func (DisruptionPayload) EventType() bus.EventType { return bus.EventSupplyDisruption }

// Service owns the supply order lifecycle for one run.
type Service struct {
	cfg    Config
	store  *store.Store
	ledger *ledger.Ledger
	bus    *bus.Bus
	noise  opensimplex.Noise
	rng    *rand.Rand
	seq    uint64
}

// New creates a supply chain service. The congestion noise grid and the
// black-swan stream both derive from the run's seeded rng, so replays see
// identical disruptions.
func New(cfg Config, st *store.Store, led *ledger.Ledger, b *bus.Bus, seed int64, r *rand.Rand) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		ledger: led,
		bus:    b,
		noise:  opensimplex.NewNormalized(seed + 1),
		rng:    r,
	}
}

// PlaceOrder registers a new supply order. The actual delivery tick is the
// promised lead plus a congestion perturbation, plus a black-swan extension
// when the dice come up badly.
func (s *Service) PlaceOrder(tick uint64, supplier string, product store.ProductID, qty int64, unitCost money.Cents, promisedLead uint64, terms store.PaymentTerms) (store.SupplyOrder, error) {
	s.seq++
	id := fmt.Sprintf("po-%06d", s.seq)

	perturb := s.perturbation(s.seq)
	actualLead := promisedLead + perturb
	blackSwan := s.rng.Float64() < s.cfg.BlackSwanProb
	if blackSwan {
		actualLead += s.cfg.BlackSwanExtension
	}

	order := store.SupplyOrder{
		ID:           id,
		Supplier:     supplier,
		Product:      product,
		Quantity:     qty,
		UnitCost:     unitCost,
		Terms:        terms,
		PlacedTick:   tick,
		PromisedLead: promisedLead,
		DeliveryTick: tick + actualLead,
		Status:       store.OrderPending,
		Disrupted:    actualLead > promisedLead,
	}

	if err := s.store.Apply(store.RegisterOrder{Order: order}); err != nil {
		return store.SupplyOrder{}, err
	}

	if order.Disrupted && s.bus != nil {
		s.bus.Publish(bus.Event{
			Type:   bus.EventSupplyDisruption,
			Tick:   tick,
			Origin: "supply",
			Payload: DisruptionPayload{
				OrderID:      id,
				Supplier:     supplier,
				PromisedLead: promisedLead,
				ActualLead:   actualLead,
				BlackSwan:    blackSwan,
			},
		})
	}

	slog.Debug("supply order placed",
		"order", id,
		"supplier", supplier,
		"qty", qty,
		"promised_lead", promisedLead,
		"delivery_tick", order.DeliveryTick,
		"black_swan", blackSwan,
	)
	return order, nil
}

// perturbation maps smooth congestion noise onto [0, PerturbMax] ticks.
func (s *Service) perturbation(seq uint64) uint64 {
	if s.cfg.PerturbMax == 0 {
		return 0
	}
	n := s.noise.Eval2(float64(seq)*0.73, 0.5)
	p := uint64(math.Floor(n * float64(s.cfg.PerturbMax+1)))
	if p > s.cfg.PerturbMax {
		p = s.cfg.PerturbMax
	}
	return p
}

// Step matures every pending order whose delivery tick has arrived:
// inventory is credited through MatureOrder and the purchase is posted to
// the ledger against cash or payables per the order's terms.
func (s *Service) Step(tick uint64) error {
	w := s.store.Snapshot()
	for _, o := range w.PendingOrders() {
		if o.DeliveryTick > tick {
			continue
		}
		if err := s.settle(tick, o); err != nil {
			return fmt.Errorf("settle order %s: %w", o.ID, err)
		}
	}
	return nil
}

func (s *Service) settle(tick uint64, o store.SupplyOrder) error {
	if err := s.store.Apply(store.MatureOrder{OrderID: o.ID}); err != nil {
		return err
	}

	cost := o.UnitCost.MulQty(o.Quantity)
	if cost > 0 {
		credit := ledger.Cash
		if o.Terms == store.TermsCredit {
			credit = ledger.Payables
		}
		memo := fmt.Sprintf("supply order %s delivered (%s x%d)", o.ID, o.Product, o.Quantity)
		_, err := s.ledger.Post(tick, memo, []ledger.Line{
			{Account: ledger.Inventory, Debit: cost},
			{Account: credit, Credit: cost},
		})
		if err != nil {
			return err
		}
	}

	slog.Debug("supply order delivered",
		"order", o.ID,
		"tick", tick,
		"promised_tick", o.PlacedTick+o.PromisedLead,
		"late_by", tick-(o.PlacedTick+o.PromisedLead),
	)
	return nil
}
