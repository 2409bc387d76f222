// Package pricing derives poster and plan charges from a versioned price
// table. All amounts are integer cents in a single currency.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neoma/internal/common"
)

type Format string

const (
	A4 Format = "A4"
	A3 Format = "A3"
	A2 Format = "A2"
	A1 Format = "A1"
	A0 Format = "A0"
)

// Formats lists every format from smallest to largest.
var Formats = []Format{A4, A3, A2, A1, A0}

type Quality string

const (
	Standard Quality = "standard"
	Superior Quality = "superior"
	Premium  Quality = "premium"
)

// Qualities lists print tiers from base to top.
var Qualities = []Quality{Standard, Superior, Premium}

var ErrUnknownPromo = errors.New("unknown promo code")

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown format %q", common.ErrValidation, s)
}

func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Qualities {
		if q == known {
			return q, nil
		}
	}
	return "", fmt.Errorf("%w: unknown quality %q", common.ErrValidation, s)
}

// Catalog is one immutable version of the price table. Base prices already
// include a single shipping charge.
type Catalog struct {
	Version          string                       `yaml:"version"`
	Currency         string                       `yaml:"currency"`
	ShippingCents    int64                        `yaml:"shipping_cents"`
	Prices           map[Format]map[Quality]int64 `yaml:"prices"`
	Promos           map[string]int               `yaml:"promos"`
	PaidAttempts     int                          `yaml:"paid_attempts"`
	FreeUserAttempts int                          `yaml:"free_user_attempts"`
}

// DefaultVersion names the built-in catalog.
const DefaultVersion = "2024-01"

// DefaultCatalog returns a fresh copy of the built-in price table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version:       DefaultVersion,
		Currency:      common.Currency,
		ShippingCents: 499,
		Prices: map[Format]map[Quality]int64{
			A4: {Standard: 2999, Superior: 3499, Premium: 3999},
			A3: {Standard: 3999, Superior: 4499, Premium: 4999},
			A2: {Standard: 5499, Superior: 6499, Premium: 7499},
			A1: {Standard: 6999, Superior: 7999, Premium: 8999},
			A0: {Standard: 8999, Superior: 9999, Premium: 10999},
		},
		Promos: map[string]int{
			"NEOMA25":   25,
			"WELCOME10": 10,
			"FRIENDS50": 50,
		},
		PaidAttempts:     50,
		FreeUserAttempts: 1,
	}
}

// Validate checks the table is complete. A missing (format, quality) entry
// would make a purchasable product unpriceable, so it is rejected up front.
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return errors.New("catalog: empty version")
	}
	if c.ShippingCents < 0 {
		return fmt.Errorf("catalog %s: negative shipping", c.Version)
	}
	for _, f := range Formats {
		for _, q := range Qualities {
			price, ok := c.Prices[f][q]
			if !ok {
				return fmt.Errorf("catalog %s: missing price for %s/%s", c.Version, f, q)
			}
			if price <= c.ShippingCents {
				return fmt.Errorf("catalog %s: price for %s/%s does not cover shipping", c.Version, f, q)
			}
		}
	}
	for code, pct := range c.Promos {
		if code != strings.ToUpper(code) {
			return fmt.Errorf("catalog %s: promo %q must be upper case", c.Version, code)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("catalog %s: promo %s out of range", c.Version, code)
		}
	}
	if c.PaidAttempts <= 0 {
		return fmt.Errorf("catalog %s: paid_attempts must be positive", c.Version)
	}
	return nil
}

// Base returns the shipping-inclusive price of one poster.
func (c *Catalog) Base(f Format, q Quality) (int64, error) {
	price, ok := c.Prices[f][q]
	if !ok {
		return 0, fmt.Errorf("%w: no price for %s/%s in catalog %s", common.ErrInvalidAmount, f, q, c.Version)
	}
	return price, nil
}

// DisplayPrice is the pre-checkout price shown to buyers, shipping excluded.
func (c *Catalog) DisplayPrice(f Format, q Quality) (int64, error) {
	base, err := c.Base(f, q)
	if err != nil {
		return 0, err
	}
	return base - c.ShippingCents, nil
}

// CheckoutPrice is the single-poster charge with shipping added once.
func (c *Catalog) CheckoutPrice(f Format, q Quality) (int64, error) {
	return c.Base(f, q)
}

// PercentOff looks up a promo code case-insensitively.
func (c *Catalog) PercentOff(code string) (int, bool) {
	pct, ok := c.Promos[NormalizePromo(code)]
	return pct, ok
}

func NormalizePromo(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount applies pct to amount with half-up rounding on whole cents and
// never returns a negative value.
func Discount(amount int64, pct int) int64 {
	if pct <= 0 {
		return amount
	}
	if pct >= 100 || amount <= 0 {
		return 0
	}
	return (amount*int64(100-pct) + 50) / 100
}
