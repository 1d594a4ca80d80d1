// Package sim drives the simulation: the tick orchestrator state machine,
// the decision-source contract, and the per-tick pipeline that keeps world
// state, the ledger, and the market models consistent.
package sim

import (
	"github.com/talgya/venturesim/internal/money"
	"github.com/talgya/venturesim/internal/store"
)

// Action is a proposed change from a decision source. The set is a closed
// tagged union; the orchestrator maps each variant onto store commands and
// supply-chain calls.
type Action interface {
	ActionName() string
}

// ChangePrice proposes a new listing price for a product.
type ChangePrice struct {
	Product store.ProductID
	Price   money.Cents
}

func (ChangePrice) ActionName() string { return "ChangePrice" }

// Restock proposes a new supply order.
type Restock struct {
	Supplier     string
	Product      store.ProductID
	Qty          int64
	UnitCost     money.Cents
	PromisedLead uint64
	Terms        store.PaymentTerms
}

func (Restock) ActionName() string { return "Restock" }

// ShiftAdBudget proposes a new per-tick advertising budget for a product.
type ShiftAdBudget struct {
	Product store.ProductID
	Budget  money.Cents
}

func (ShiftAdBudget) ActionName() string { return "ShiftAdBudget" }

// RejectOrder cancels a pending supply order before delivery.
type RejectOrder struct {
	OrderID string
}

func (RejectOrder) ActionName() string { return "RejectOrder" }
