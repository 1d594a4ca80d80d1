package store

import (
	"fmt"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/money"
)

// Command is an intent to change world state. Validation runs against the
// current state before any mutation; apply runs only after validation
// passes and returns the field-level diff for the StateChanged event.
type Command interface {
	Name() string
	validate(w *WorldState) error
	apply(w *WorldState) []Change
}

// Change is one field-level difference produced by a command.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ChangedPayload is the bus payload emitted after each successful command.
type ChangedPayload struct {
	Command string
	Changes []Change
}

// EventType implements bus.Payload.
func (ChangedPayload) EventType() bus.EventType { return bus.EventStateChanged }

func change(field string, from, to any) Change {
	return Change{Field: field, From: fmt.Sprint(from), To: fmt.Sprint(to)}
}

// SetPrice sets a product's listing price.
type SetPrice struct {
	Product ProductID
	Price   money.Cents
}

func (SetPrice) Name() string { return "SetPrice" }

func (c SetPrice) validate(w *WorldState) error {
	if c.Price < 0 {
		return &ValidationError{Command: c.Name(), Reason: "price must be >= 0"}
	}
	if _, ok := w.Products[c.Product]; !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", c.Product)}
	}
	return nil
}

func (c SetPrice) apply(w *WorldState) []Change {
	p := w.Products[c.Product]
	ch := change(string(c.Product)+".price", p.Price, c.Price)
	p.Price = c.Price
	return []Change{ch}
}

// AdjustInventory moves a product's stock by a signed delta. A delta that
// would drive stock negative is a conflict, not a validation error: the
// command was plausible when submitted but lost to current state.
type AdjustInventory struct {
	Product ProductID
	Delta   int64
}

func (AdjustInventory) Name() string { return "AdjustInventory" }

func (c AdjustInventory) validate(w *WorldState) error {
	p, ok := w.Products[c.Product]
	if !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", c.Product)}
	}
	if p.Inventory+c.Delta < 0 {
		return &ConflictError{Command: c.Name(),
			Reason: fmt.Sprintf("inventory %d + delta %d would be negative", p.Inventory, c.Delta)}
	}
	return nil
}

func (c AdjustInventory) apply(w *WorldState) []Change {
	p := w.Products[c.Product]
	ch := change(string(c.Product)+".inventory", p.Inventory, p.Inventory+c.Delta)
	p.Inventory += c.Delta
	return []Change{ch}
}

// AdjustCash moves the world's cash mirror by a signed delta. Cash may go
// negative; bankruptcy detection is the orchestrator's concern.
type AdjustCash struct {
	Delta money.Cents
}

func (AdjustCash) Name() string { return "AdjustCash" }

func (c AdjustCash) validate(w *WorldState) error { return nil }

func (c AdjustCash) apply(w *WorldState) []Change {
	ch := change("cash", w.Cash, w.Cash+c.Delta)
	w.Cash += c.Delta
	return []Change{ch}
}

// SetAdBudget sets a product's advertising budget per tick.
type SetAdBudget struct {
	Product ProductID
	Budget  money.Cents
}

func (SetAdBudget) Name() string { return "SetAdBudget" }

func (c SetAdBudget) validate(w *WorldState) error {
	if c.Budget < 0 {
		return &ValidationError{Command: c.Name(), Reason: "budget must be >= 0"}
	}
	if _, ok := w.Products[c.Product]; !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", c.Product)}
	}
	return nil
}

func (c SetAdBudget) apply(w *WorldState) []Change {
	p := w.Products[c.Product]
	ch := change(string(c.Product)+".ad_budget", p.AdBudget, c.Budget)
	p.AdBudget = c.Budget
	return []Change{ch}
}

// RecordSale deducts sold units from stock and bumps the lifetime counter.
type RecordSale struct {
	Product ProductID
	Qty     int64
}

func (RecordSale) Name() string { return "RecordSale" }

func (c RecordSale) validate(w *WorldState) error {
	if c.Qty <= 0 {
		return &ValidationError{Command: c.Name(), Reason: "quantity must be > 0"}
	}
	p, ok := w.Products[c.Product]
	if !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", c.Product)}
	}
	if p.Inventory < c.Qty {
		return &ConflictError{Command: c.Name(),
			Reason: fmt.Sprintf("selling %d units with %d in stock", c.Qty, p.Inventory)}
	}
	return nil
}

func (c RecordSale) apply(w *WorldState) []Change {
	p := w.Products[c.Product]
	chs := []Change{
		change(string(c.Product)+".inventory", p.Inventory, p.Inventory-c.Qty),
		change(string(c.Product)+".units_sold", p.UnitsSold, p.UnitsSold+c.Qty),
	}
	p.Inventory -= c.Qty
	p.UnitsSold += c.Qty
	return chs
}

// RegisterOrder records a new pending supply order.
type RegisterOrder struct {
	Order SupplyOrder
}

func (RegisterOrder) Name() string { return "RegisterOrder" }

func (c RegisterOrder) validate(w *WorldState) error {
	o := c.Order
	if o.ID == "" {
		return &ValidationError{Command: c.Name(), Reason: "order id required"}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Command: c.Name(), Reason: "quantity must be > 0"}
	}
	if o.UnitCost < 0 {
		return &ValidationError{Command: c.Name(), Reason: "unit cost must be >= 0"}
	}
	if _, ok := w.Products[o.Product]; !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", o.Product)}
	}
	for _, existing := range w.Orders {
		if existing.ID == o.ID {
			return &ConflictError{Command: c.Name(), Reason: fmt.Sprintf("order %q already registered", o.ID)}
		}
	}
	return nil
}

func (c RegisterOrder) apply(w *WorldState) []Change {
	o := c.Order
	o.Status = OrderPending
	w.Orders = append(w.Orders, o)
	return []Change{change("orders", len(w.Orders)-1, len(w.Orders))}
}

// MatureOrder marks a pending order delivered and credits its units to
// stock. Status and inventory change in one command so observers never see
// a delivered order whose units are missing.
type MatureOrder struct {
	OrderID string
}

func (MatureOrder) Name() string { return "MatureOrder" }

func (c MatureOrder) validate(w *WorldState) error {
	for i := range w.Orders {
		if w.Orders[i].ID == c.OrderID {
			if w.Orders[i].Status != OrderPending {
				return &ConflictError{Command: c.Name(),
					Reason: fmt.Sprintf("order %q is %s, not pending", c.OrderID, w.Orders[i].Status)}
			}
			return nil
		}
	}
	return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown order %q", c.OrderID)}
}

func (c MatureOrder) apply(w *WorldState) []Change {
	for i := range w.Orders {
		if w.Orders[i].ID != c.OrderID {
			continue
		}
		o := &w.Orders[i]
		o.Status = OrderDelivered
		p := w.Products[o.Product]
		chs := []Change{
			change("order."+o.ID+".status", OrderPending, OrderDelivered),
			change(string(o.Product)+".inventory", p.Inventory, p.Inventory+o.Quantity),
		}
		p.Inventory += o.Quantity
		return chs
	}
	return nil
}

// CancelOrder rejects a pending supply order before it ships. Delivered
// orders cannot be cancelled.
type CancelOrder struct {
	OrderID string
}

func (CancelOrder) Name() string { return "CancelOrder" }

func (c CancelOrder) validate(w *WorldState) error {
	for i := range w.Orders {
		if w.Orders[i].ID == c.OrderID {
			if w.Orders[i].Status != OrderPending {
				return &ConflictError{Command: c.Name(),
					Reason: fmt.Sprintf("order %q is %s, not pending", c.OrderID, w.Orders[i].Status)}
			}
			return nil
		}
	}
	return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown order %q", c.OrderID)}
}

func (c CancelOrder) apply(w *WorldState) []Change {
	for i := range w.Orders {
		if w.Orders[i].ID == c.OrderID {
			w.Orders[i].Status = OrderCancelled
			return []Change{change("order."+c.OrderID+".status", OrderPending, OrderCancelled)}
		}
	}
	return nil
}

// UpdateCompetitor overwrites a competitor's observable state. Stock flag
// is derived here so it can never disagree with the inventory figure.
type UpdateCompetitor struct {
	Competitor CompetitorID
	Price      money.Cents
	Inventory  int64
}

func (UpdateCompetitor) Name() string { return "UpdateCompetitor" }

func (c UpdateCompetitor) validate(w *WorldState) error {
	if c.Price < 0 {
		return &ValidationError{Command: c.Name(), Reason: "price must be >= 0"}
	}
	if c.Inventory < 0 {
		return &ValidationError{Command: c.Name(), Reason: "inventory must be >= 0"}
	}
	if _, ok := w.Competitors[c.Competitor]; !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown competitor %q", c.Competitor)}
	}
	return nil
}

func (c UpdateCompetitor) apply(w *WorldState) []Change {
	m := w.Competitors[c.Competitor]
	chs := []Change{
		change(string(c.Competitor)+".price", m.Price, c.Price),
		change(string(c.Competitor)+".inventory", m.Inventory, c.Inventory),
	}
	m.Price = c.Price
	m.Inventory = c.Inventory
	m.OutOfStock = c.Inventory == 0
	return chs
}

// SetProductStats writes back the market simulator's per-tick statistics.
type SetProductStats struct {
	Product    ProductID
	Velocity   float64
	PriceIndex float64
	SalesIndex float64
	BSR        int64
}

func (SetProductStats) Name() string { return "SetProductStats" }

func (c SetProductStats) validate(w *WorldState) error {
	if _, ok := w.Products[c.Product]; !ok {
		return &ValidationError{Command: c.Name(), Reason: fmt.Sprintf("unknown product %q", c.Product)}
	}
	if c.BSR < 1 {
		return &ValidationError{Command: c.Name(), Reason: "bsr must be >= 1"}
	}
	return nil
}

func (c SetProductStats) apply(w *WorldState) []Change {
	p := w.Products[c.Product]
	ch := change(string(c.Product)+".bsr", p.BSR, c.BSR)
	p.SalesVelocity = c.Velocity
	p.PriceIndex = c.PriceIndex
	p.SalesIndex = c.SalesIndex
	p.BSR = c.BSR
	return []Change{ch}
}

// RegisterAgent adds a decision source to the registry.
type RegisterAgent struct {
	Agent Agent
}

func (RegisterAgent) Name() string { return "RegisterAgent" }

func (c RegisterAgent) validate(w *WorldState) error {
	if c.Agent.ID == "" {
		return &ValidationError{Command: c.Name(), Reason: "agent id required"}
	}
	for _, a := range w.Agents {
		if a.ID == c.Agent.ID {
			return &ConflictError{Command: c.Name(), Reason: fmt.Sprintf("agent %q already registered", c.Agent.ID)}
		}
	}
	return nil
}

func (c RegisterAgent) apply(w *WorldState) []Change {
	w.Agents = append(w.Agents, c.Agent)
	return []Change{change("agents", len(w.Agents)-1, len(w.Agents))}
}

// AdvanceTick moves simulated time forward by one tick. Tick is monotonic;
// Day derives from the ticks-per-day ratio.
type AdvanceTick struct {
	TicksPerDay uint64
}

func (AdvanceTick) Name() string { return "AdvanceTick" }

func (c AdvanceTick) validate(w *WorldState) error {
	if c.TicksPerDay == 0 {
		return &ValidationError{Command: c.Name(), Reason: "ticks per day must be >= 1"}
	}
	return nil
}

func (c AdvanceTick) apply(w *WorldState) []Change {
	ch := change("tick", w.Tick, w.Tick+1)
	w.Tick++
	w.Day = w.Tick / c.TicksPerDay
	return []Change{ch}
}
