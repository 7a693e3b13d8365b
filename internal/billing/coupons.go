package billing

import "errors"

// Coupon kinds accepted by the calculator.
const (
	KindFlat         = "flat"
	KindPercent      = "percentage"
	KindFreeDelivery = "free_delivery"
)

// ErrMinimumNotMet is returned when the cart subtotal is below the coupon's
// minimum order amount.
var ErrMinimumNotMet = errors.New("billing: coupon minimum order not met")

// Coupon describes a discount code. A non-empty CustomerID marks the coupon as
// customer-scoped ("special"), which stacks alongside at most one normal coupon.
type Coupon struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	Value      Money  `json:"value,omitempty"`
	PercentBps int32  `json:"percent_bps,omitempty"`
	MinOrder   Money  `json:"min_order"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Special reports whether the coupon is scoped to a single customer.
func (c Coupon) Special() bool { return c.CustomerID != "" }

// CouponSet holds the coupons applied to a cart and enforces the stacking
// rule: one normal coupon at most, any number of special coupons.
type CouponSet struct {
	normal   *Coupon
	specials []Coupon
}

// Apply adds a coupon to the set. A second normal coupon replaces the active
// one; a special coupon with a code already present is updated in place. When
// the subtotal does not meet the coupon minimum the set is left unchanged.
func (s *CouponSet) Apply(c Coupon, subtotal Money) error {
	if subtotal < c.MinOrder {
		return ErrMinimumNotMet
	}
	if c.Special() {
		for i := range s.specials {
			if s.specials[i].Code == c.Code {
				s.specials[i] = c
				return nil
			}
		}
		s.specials = append(s.specials, c)
		return nil
	}
	applied := c
	s.normal = &applied
	return nil
}

// Remove drops the coupon with the given code, if present.
func (s *CouponSet) Remove(code string) {
	if s.normal != nil && s.normal.Code == code {
		s.normal = nil
	}
	for i := range s.specials {
		if s.specials[i].Code == code {
			s.specials = append(s.specials[:i], s.specials[i+1:]...)
			return
		}
	}
}

// Applied returns the currently applied coupons, normal coupon first.
func (s *CouponSet) Applied() []Coupon {
	out := make([]Coupon, 0, len(s.specials)+1)
	if s.normal != nil {
		out = append(out, *s.normal)
	}
	return append(out, s.specials...)
}

// Clear resets the set.
func (s *CouponSet) Clear() {
	s.normal = nil
	s.specials = nil
}
