package sim

import (
	"context"
	"fmt"
	"slices"

	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
)

// DecisionSource supplies proposed actions each tick, given a read-only
// snapshot of the run. Implementations may block on network calls; the
// orchestrator bounds them with a timeout and substitutes no actions when
// the deadline passes.
type DecisionSource interface {
	Name() string
	Decide(ctx context.Context, snap Snapshot) ([]Action, error)
}

// TimeoutError records a decision source missing its deadline. Recoverable:
// the orchestrator proceeds with no actions for that tick.
type TimeoutError struct {
	Source string
	Tick   uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("decision source %q timed out at tick %d", e.Source, e.Tick)
}

// ScriptedSource replays a fixed action schedule keyed by tick. Used for
// deterministic and golden-master runs.
type ScriptedSource struct {
	Script map[uint64][]Action
}

// Name implements DecisionSource.
func (s *ScriptedSource) Name() string { return "scripted" }

// Decide returns the scripted actions for the snapshot's tick.
func (s *ScriptedSource) Decide(ctx context.Context, snap Snapshot) ([]Action, error) {
	return s.Script[snap.Tick], nil
}

// HeuristicSource is a simple built-in policy: keep stock above a floor by
// reordering from one supplier, and price just under the cheapest in-stock
// competitor.
type HeuristicSource struct {
	Supplier     string
	ReorderBelow int64
	ReorderQty   int64
	PromisedLead uint64
	UndercutBy   money.Cents
}

// Name implements DecisionSource.
func (h *HeuristicSource) Name() string { return "heuristic" }

// Decide implements DecisionSource. Products are visited in sorted id
// order so the same snapshot always yields the same action sequence.
func (h *HeuristicSource) Decide(ctx context.Context, snap Snapshot) ([]Action, error) {
	ids := make([]store.ProductID, 0, len(snap.World.Products))
	for id := range snap.World.Products {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var cheapest money.Cents
	for _, c := range snap.World.Competitors {
		if c.OutOfStock {
			continue
		}
		if cheapest == 0 || c.Price < cheapest {
			cheapest = c.Price
		}
	}

	var actions []Action
	for _, id := range ids {
		p := snap.World.Products[id]

		inbound := int64(0)
		for _, o := range snap.World.PendingOrders() {
			if o.Product == id {
				inbound += o.Quantity
			}
		}
		if p.Inventory+inbound < h.ReorderBelow {
			actions = append(actions, Restock{
				Supplier:     h.Supplier,
				Product:      id,
				Qty:          h.ReorderQty,
				UnitCost:     p.UnitCost,
				PromisedLead: h.PromisedLead,
				Terms:        store.TermsCash,
			})
		}

		if cheapest > 0 {
			target := cheapest - h.UndercutBy
			if target < p.UnitCost {
				target = p.UnitCost
			}
			if target != p.Price {
				actions = append(actions, ChangePrice{Product: id, Price: target})
			}
		}
	}
	return actions, nil
}
