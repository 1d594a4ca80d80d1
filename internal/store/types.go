// Package store holds the canonical mutable world state and arbitrates all
// changes to it. Systems never mutate state directly: they submit command
// objects which are validated against current state and applied in
// submission order under one lock.
package store

import (
	"github.com/talgya/venturesim/internal/money"
)

// ProductID identifies a product in the catalog.
type ProductID string

// Product is one listing the business sells.
type Product struct {
	ID        ProductID   `json:"id"`
	Name      string      `json:"name"`
	Price     money.Cents `json:"price"`
	UnitCost  money.Cents `json:"unit_cost"`
	Inventory int64       `json:"inventory"`
	AdBudget  money.Cents `json:"ad_budget"`

	// Market-derived statistics, written back each tick by the market
	// simulator.
	SalesVelocity float64 `json:"sales_velocity"` // smoothed units/tick
	PriceIndex    float64 `json:"price_index"`    // own price vs reference basket
	SalesIndex    float64 `json:"sales_index"`    // own velocity vs market
	BSR           int64   `json:"bsr"`            // best-seller rank, 1 is best
	UnitsSold     int64   `json:"units_sold"`     // lifetime units sold
}

// CompetitorID identifies a competitor listing.
type CompetitorID string

// Strategy is a competitor's pricing policy tag.
type Strategy string

const (
	StrategyUndercut Strategy = "undercut"
	StrategyMatch    Strategy = "match"
	StrategyHold     Strategy = "hold"
)

// Competitor is a rival listing in the same market.
type Competitor struct {
	ID         CompetitorID `json:"id"`
	Name       string       `json:"name"`
	Price      money.Cents  `json:"price"`
	Inventory  int64        `json:"inventory"`
	Strategy   Strategy     `json:"strategy"`
	OutOfStock bool         `json:"out_of_stock"`
}

// OrderStatus is the lifecycle state of a supply order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentTerms selects how an order is settled on delivery.
type PaymentTerms string

const (
	TermsCash   PaymentTerms = "cash"   // credit Cash on delivery
	TermsCredit PaymentTerms = "credit" // credit Accounts Payable on delivery
)

// SupplyOrder is an inbound inventory order placed with a supplier.
type SupplyOrder struct {
	ID           string       `json:"id"`
	Supplier     string       `json:"supplier"`
	Product      ProductID    `json:"product"`
	Quantity     int64        `json:"quantity"`
	UnitCost     money.Cents  `json:"unit_cost"`
	Terms        PaymentTerms `json:"terms"`
	PlacedTick   uint64       `json:"placed_tick"`
	PromisedLead uint64       `json:"promised_lead"` // ticks quoted by the supplier
	DeliveryTick uint64       `json:"delivery_tick"` // actual, set by the supply chain
	Status       OrderStatus  `json:"status"`
	Disrupted    bool         `json:"disrupted"`
}

// Agent is an entry in the decision-source registry.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "scripted", "heuristic", ...
}

// WorldState is the canonical simulation state for one run. Tick is
// monotonic non-decreasing; Cash mirrors the ledger's Cash account.
type WorldState struct {
	Tick        uint64                       `json:"tick"`
	Day         uint64                       `json:"day"`
	Cash        money.Cents                  `json:"cash"`
	Products    map[ProductID]*Product       `json:"products"`
	Competitors map[CompetitorID]*Competitor `json:"competitors"`
	Orders      []SupplyOrder                `json:"orders"`
	Agents      []Agent                      `json:"agents"`
}

// NewWorldState returns an empty world at tick zero.
func NewWorldState() *WorldState {
	return &WorldState{
		Products:    make(map[ProductID]*Product),
		Competitors: make(map[CompetitorID]*Competitor),
	}
}

// Clone returns a deep copy, safe to hand to decision sources and
// observers.
func (w *WorldState) Clone() *WorldState {
	c := &WorldState{
		Tick:        w.Tick,
		Day:         w.Day,
		Cash:        w.Cash,
		Products:    make(map[ProductID]*Product, len(w.Products)),
		Competitors: make(map[CompetitorID]*Competitor, len(w.Competitors)),
		Orders:      append([]SupplyOrder(nil), w.Orders...),
		Agents:      append([]Agent(nil), w.Agents...),
	}
	for id, p := range w.Products {
		cp := *p
		c.Products[id] = &cp
	}
	for id, m := range w.Competitors {
		cm := *m
		c.Competitors[id] = &cm
	}
	return c
}

// PendingOrders returns the orders not yet delivered, in placement order.
func (w *WorldState) PendingOrders() []SupplyOrder {
	var out []SupplyOrder
	for _, o := range w.Orders {
		if o.Status == OrderPending {
			out = append(out, o)
		}
	}
	return out
}

// TotalInventory sums on-hand units across the catalog.
func (w *WorldState) TotalInventory() int64 {
	var total int64
	for _, p := range w.Products {
		total += p.Inventory
	}
	return total
}
