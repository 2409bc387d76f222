package pricing

import (
	"fmt"

	"github.com/dmitrijs2005/neoma/internal/common"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 20

type Item struct {
	Format   Format
	Quality  Quality
	Quantity int
}

type Line struct {
	Item
	UnitCents int64 // shipping excluded
}

// Quote is a pricing context for one order. The undiscounted subtotal and
// the active promo are kept apart, so applying or removing a code never
// loses the original amount.
type Quote struct {
	catalog *Catalog

	Lines         []Line
	SubtotalCents int64
	PromoCode     string
	PercentOff    int
}

// NewQuote prices items against c. Quantities must be 1..MaxQuantity.
func (c *Catalog) NewQuote(items []Item) (*Quote, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty order", common.ErrValidation)
	}

	q := &Quote{catalog: c, Lines: make([]Line, 0, len(items))}
	for _, it := range items {
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: quantity %d out of range", common.ErrValidation, it.Quantity)
		}
		unit, err := c.DisplayPrice(it.Format, it.Quality)
		if err != nil {
			return nil, err
		}
		q.Lines = append(q.Lines, Line{Item: it, UnitCents: unit})
		q.SubtotalCents += unit * int64(it.Quantity)
	}
	return q, nil
}

// Version reports the catalog version the quote was priced with.
func (q *Quote) Version() string { return q.catalog.Version }

// ApplyPromo activates code, replacing any previous promo. Unknown codes
// return ErrUnknownPromo and leave the quote unchanged.
func (q *Quote) ApplyPromo(code string) error {
	pct, ok := q.catalog.PercentOff(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPromo, code)
	}
	q.PromoCode = NormalizePromo(code)
	q.PercentOff = pct
	return nil
}

func (q *Quote) RemovePromo() {
	q.PromoCode = ""
	q.PercentOff = 0
}

// DiscountedCents is the goods amount after the promo, shipping excluded.
func (q *Quote) DiscountedCents() int64 {
	return Discount(q.SubtotalCents, q.PercentOff)
}

func (q *Quote) ShippingCents() int64 { return q.catalog.ShippingCents }

// TotalCents is the charge: discounted goods plus shipping, once per order.
func (q *Quote) TotalCents() int64 {
	return q.DiscountedCents() + q.catalog.ShippingCents
}

// ItemCount sums quantities over all lines.
func (q *Quote) ItemCount() int {
	n := 0
	for _, l := range q.Lines {
		n += l.Quantity
	}
	return n
}
