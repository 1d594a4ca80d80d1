package sim

import (
	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/ledger"
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
)

// KPIs are the headline figures exposed to observers each tick.
type KPIs struct {
	Cash           money.Cents `json:"cash"`
	Revenue        money.Cents `json:"revenue"`
	Expenses       money.Cents `json:"expenses"`
	Profit         money.Cents `json:"profit"`
	InventoryUnits int64       `json:"inventory_units"`
	UnitsSold      int64       `json:"units_sold"`
}

// Snapshot is a complete, serializable copy of one run at a given tick:
// the world, the full ledger, and recent events. It is sufficient to
// resume or diff a run given the same seed and decision sequence.
type Snapshot struct {
	Tick   uint64            `json:"tick"`
	Day    uint64            `json:"day"`
	KPIs   KPIs              `json:"kpis"`
	World  *store.WorldState `json:"world"`
	Ledger ledger.Snapshot   `json:"ledger"`
	Agents []store.Agent     `json:"agents"`
	Events []bus.Event       `json:"events,omitempty"`
}

// TickPayload is the bus payload published when a tick completes.
type TickPayload struct {
	Tick uint64
	Day  uint64
	KPIs KPIs
}

// EventType implements bus.Payload.
func (TickPayload) EventType() bus.EventType { return bus.EventTickCompleted }

// FailurePayload is the bus payload published when a run fails.
type FailurePayload struct {
	Tick   uint64
	Reason string
}

// EventType implements bus.Payload.
func (FailurePayload) EventType() bus.EventType { return bus.EventRunFailed }

func computeKPIs(w *store.WorldState, snap ledger.Snapshot) KPIs {
	k := KPIs{InventoryUnits: w.TotalInventory()}
	for _, p := range w.Products {
		k.UnitsSold += p.UnitsSold
	}
	for _, a := range snap.Accounts {
		switch a.Type {
		case ledger.Revenue:
			k.Revenue += a.Balance
		case ledger.Expense:
			k.Expenses += a.Balance
		}
		if a.Code == ledger.Cash {
			k.Cash = a.Balance
		}
	}
	k.Profit = k.Revenue - k.Expenses
	return k
}
