// Package fees computes marketplace fees for sale settlements. The
// calculator is stateless: every function is pure over integer minor-unit
// amounts so the same inputs always produce the same fee.
package fees

import "github.com/talgya/venturesim/internal/money"

// Schedule holds the marketplace fee parameters for a run.
type Schedule struct {
	ReferralBps     int64       `yaml:"referral_bps"`      // percentage of sale price, basis points
	ReferralMin     money.Cents `yaml:"referral_min"`      // floor per unit sold
	FulfillmentUnit money.Cents `yaml:"fulfillment_unit"`  // fixed pick/pack/ship fee per unit
	StorageUnitDay  money.Cents `yaml:"storage_unit_day"`  // per unit in stock, per simulated day
}

// DefaultSchedule mirrors typical marketplace rates: 15% referral with a
// $0.30 floor, $3.22 fulfillment, $0.02/unit/day storage.
func DefaultSchedule() Schedule {
	return Schedule{
		ReferralBps:     1500,
		ReferralMin:     30,
		FulfillmentUnit: 322,
		StorageUnitDay:  2,
	}
}

// Referral returns the referral fee for selling qty units at unitPrice.
// Rounds half up per unit, then applies the per-unit floor.
func (s Schedule) Referral(unitPrice money.Cents, qty int64) money.Cents {
	perUnit := unitPrice.MulBasisPoints(s.ReferralBps)
	if perUnit < s.ReferralMin {
		perUnit = s.ReferralMin
	}
	return perUnit.MulQty(qty)
}

// Fulfillment returns the fixed pick/pack/ship fee for qty units.
func (s Schedule) Fulfillment(qty int64) money.Cents {
	return s.FulfillmentUnit.MulQty(qty)
}

// Storage returns the storage fee for holding unitsInStock for one day.
func (s Schedule) Storage(unitsInStock int64) money.Cents {
	return s.StorageUnitDay.MulQty(unitsInStock)
}

// SaleBreakdown itemizes the fees on one sale settlement.
type SaleBreakdown struct {
	Gross       money.Cents
	Referral    money.Cents
	Fulfillment money.Cents
	Net         money.Cents
}

// ForSale computes the full fee breakdown for selling qty units at
// unitPrice.
func (s Schedule) ForSale(unitPrice money.Cents, qty int64) SaleBreakdown {
	b := SaleBreakdown{
		Gross:       unitPrice.MulQty(qty),
		Referral:    s.Referral(unitPrice, qty),
		Fulfillment: s.Fulfillment(qty),
	}
	b.Net = b.Gross - b.Referral - b.Fulfillment
	return b
}
