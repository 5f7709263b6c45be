// internal/pricing/calculator.go
package pricing

import (
	"errors"
	"fmt"

	"gamerent/internal/catalog"
	"gamerent/internal/entitlement"
	"gamerent/internal/money"
)

// ErrInvalidArgument is returned for negative prices or non-positive durations.
var ErrInvalidArgument = errors.New("invalid argument")

// Tier is a duration discount: rentals of at least MinDays pay BasisPoints/10000
// of the undiscounted amount.
type Tier struct {
	MinDays     int
	BasisPoints int64
}

// DefaultTiers are ordered by descending threshold; the first match wins.
var DefaultTiers = []Tier{
	{MinDays: 30, BasisPoints: 7000},
	{MinDays: 14, BasisPoints: 8500},
	{MinDays: 7, BasisPoints: 9000},
}

// Config holds the catalog-wide price parameters.
type Config struct {
	BasePricePerDay  money.Money
	StandardTermDays int
	SubscriptionFee  money.Money
}

// DefaultConfig mirrors the storefront's published prices.
func DefaultConfig() Config {
	return Config{
		BasePricePerDay:  money.Cents(1000),
		StandardTermDays: 30,
		SubscriptionFee:  money.Cents(5000),
	}
}

// Calculator is a stateless price function set.
type Calculator struct {
	cfg   Config
	tiers []Tier
}

// NewCalculator fills unset fields of cfg with the defaults.
func NewCalculator(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.BasePricePerDay <= 0 {
		cfg.BasePricePerDay = def.BasePricePerDay
	}
	if cfg.StandardTermDays <= 0 {
		cfg.StandardTermDays = def.StandardTermDays
	}
	if cfg.SubscriptionFee <= 0 {
		cfg.SubscriptionFee = def.SubscriptionFee
	}
	return &Calculator{cfg: cfg, tiers: DefaultTiers}
}

// Config returns the effective configuration.
func (c *Calculator) Config() Config { return c.cfg }

// PriceForUnitRental computes basePricePerDay * days with the best matching
// duration discount, rounded to the cent.
func (c *Calculator) PriceForUnitRental(basePricePerDay money.Money, days int) (money.Money, error) {
	if basePricePerDay < 0 {
		return 0, fmt.Errorf("%w: base price per day %s is negative", ErrInvalidArgument, basePricePerDay)
	}
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidArgument, days)
	}

	amount := basePricePerDay.Mul(days)
	for _, t := range c.tiers {
		if days >= t.MinDays {
			return amount.ApplyBasisPoints(t.BasisPoints), nil
		}
	}
	return amount, nil
}

// PriceForSubscriptionPeriod returns the monthly fee unchanged, or the configured
// fee when none is given.
func (c *Calculator) PriceForSubscriptionPeriod(monthlyFee money.Money) money.Money {
	if monthlyFee <= 0 {
		return c.cfg.SubscriptionFee
	}
	return monthlyFee
}

// StandardRentalPrice is the flat price of a catalog title with no explicit price.
func (c *Calculator) StandardRentalPrice() (money.Money, error) {
	return c.PriceForUnitRental(c.cfg.BasePricePerDay, c.cfg.StandardTermDays)
}

// PriceForGame decides what a rental of game costs given the entitlement decision.
func (c *Calculator) PriceForGame(game *catalog.Game, decision entitlement.Decision) (money.Money, error) {
	if decision.IsFree {
		return money.Zero, nil
	}
	if game.Price > 0 {
		return game.Price, nil
	}
	if game.Price < 0 {
		return 0, fmt.Errorf("%w: game %s has negative price", ErrInvalidArgument, game.UUID)
	}
	return c.StandardRentalPrice()
}
