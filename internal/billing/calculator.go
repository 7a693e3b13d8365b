package billing

// Money represents a monetary value stored in minor units (paise).
type Money = int64

// AddOn is a selected add-on on a line item.
type AddOn struct {
	Group string `json:"group,omitempty"`
	Name  string `json:"name"`
	Price Money  `json:"price"`
	Qty   int    `json:"qty"`
}

// LineItem describes one cart or order line. The unit price is always derived
// from the portion and add-on components, never stored alongside them.
type LineItem struct {
	ItemID       string  `json:"item_id"`
	Name         string  `json:"name"`
	PortionName  string  `json:"portion_name"`
	PortionPrice Money   `json:"portion_price"`
	AddOns       []AddOn `json:"add_ons,omitempty"`
	Qty          int     `json:"qty"`
	Note         string  `json:"note,omitempty"`
}

// UnitPrice derives the per-unit price: portion price plus the selected
// add-ons multiplied by their quantities.
func (li LineItem) UnitPrice() Money {
	price := li.PortionPrice
	for _, a := range li.AddOns {
		qty := a.Qty
		if qty <= 0 {
			qty = 1
		}
		price += a.Price * Money(qty)
	}
	return price
}

// Subtotal sums unit price times quantity over all lines. Lines with a
// non-positive quantity do not contribute.
func Subtotal(items []LineItem) Money {
	var total Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		total += it.UnitPrice() * Money(it.Qty)
	}
	return total
}

// TaxSettings describes GST configuration for a restaurant. The rate is split
// evenly into CGST and SGST halves.
type TaxSettings struct {
	Enabled    bool  `json:"enabled"`
	RateBps    int32 `json:"rate_bps"`
	MinTaxable Money `json:"min_taxable"`
	Inclusive  bool  `json:"inclusive"`
}

// Bill aggregates the computed components of a priced order.
type Bill struct {
	Subtotal        Money `json:"subtotal"`
	CouponDiscount  Money `json:"coupon_discount"`
	SpecialDiscount Money `json:"special_discount"`
	CGST            Money `json:"cgst"`
	SGST            Money `json:"sgst"`
	GrandTotal      Money `json:"grand_total"`
}

// Compute produces the bill for the provided lines, applied coupons and tax
// settings. The same function backs the client-side pre-submission estimate
// and the aggregated server-confirmed bill, so the two can never disagree.
//
// Discounts that would drive the taxable amount negative are floored at zero
// rather than rejected; the coupon minimum-order rule is enforced at apply
// time by CouponSet.
func Compute(items []LineItem, coupons []Coupon, tax TaxSettings) Bill {
	subtotal := Subtotal(items)

	var normal, special Money
	for _, c := range coupons {
		if c.Kind == KindFreeDelivery {
			// Delivery fees are settled outside this engine.
			continue
		}
		if subtotal < c.MinOrder {
			continue
		}
		amount := c.Value
		if c.Kind == KindPercent {
			if c.PercentBps <= 0 {
				continue
			}
			amount = roundDiv(subtotal*Money(c.PercentBps), 10000)
		}
		if amount < 0 {
			continue
		}
		if c.Special() {
			special += amount
		} else {
			normal += amount
		}
	}

	taxable := subtotal - normal - special
	if taxable < 0 {
		taxable = 0
	}

	bill := Bill{Subtotal: subtotal, CouponDiscount: normal, SpecialDiscount: special}
	if !tax.Enabled || tax.RateBps <= 0 || taxable < tax.MinTaxable {
		bill.GrandTotal = taxable
		return bill
	}

	if tax.Inclusive {
		// Listed prices already contain tax: the split is informational and
		// the grand total stays unchanged.
		base := roundDiv(taxable*10000, 10000+Money(tax.RateBps))
		gst := taxable - base
		half := roundDiv(gst, 2)
		bill.CGST, bill.SGST = half, half
		bill.GrandTotal = taxable
		return bill
	}

	half := roundDiv(taxable*Money(tax.RateBps), 20000)
	bill.CGST, bill.SGST = half, half
	bill.GrandTotal = taxable + half + half
	return bill
}

// roundDiv divides n by d rounding half away from zero. Each GST half is
// rounded from the unrounded half value, not derived by halving a rounded
// whole, so both halves land on the same paisa as point-of-sale systems.
func roundDiv(n, d Money) Money {
	if d == 0 {
		return 0
	}
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}
