package reconcile

import (
	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/menu"
)

// DefaultTolerance absorbs sub-paisa rounding drift from upstream float
// conversion without flagging a real price change.
const DefaultTolerance billing.Money = 1

// Result is the outcome of a reconciliation pass. Items is always the same
// length as the input cart; nothing is ever dropped.
type Result struct {
	Items        []billing.LineItem `json:"items"`
	ChangedCount int                `json:"changed_count"`
}

// Reconcile reprices each cart line against the provided catalog snapshot.
// Lines whose catalog entry or portion has disappeared keep their previous
// price. A line counts as changed only when the absolute unit-price delta
// exceeds the tolerance.
func Reconcile(items []billing.LineItem, cat menu.Catalog, tolerance billing.Money) Result {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	out := make([]billing.LineItem, 0, len(items))
	changed := 0
	for _, it := range items {
		next, ok := reprice(it, cat)
		if !ok {
			out = append(out, it)
			continue
		}
		if absDelta(next.UnitPrice(), it.UnitPrice()) > tolerance {
			changed++
			out = append(out, next)
		} else {
			out = append(out, it)
		}
	}
	return Result{Items: out, ChangedCount: changed}
}

// reprice rebuilds a line item from current catalog prices. It reports false
// when the catalog entry or its portion is missing, in which case the caller
// keeps the cached pricing.
func reprice(it billing.LineItem, cat menu.Catalog) (billing.LineItem, bool) {
	entry, ok := cat.Item(it.ItemID)
	if !ok {
		return billing.LineItem{}, false
	}
	portion, ok := entry.Portion(it.PortionName)
	if !ok {
		return billing.LineItem{}, false
	}
	next := it
	next.PortionPrice = portion.Price
	if len(it.AddOns) > 0 {
		next.AddOns = make([]billing.AddOn, len(it.AddOns))
		copy(next.AddOns, it.AddOns)
		for i, a := range next.AddOns {
			if price, ok := entry.AddOnPrice(a.Group, a.Name); ok {
				next.AddOns[i].Price = price
			}
			// a vanished add-on keeps its cached price
		}
	}
	return next, true
}

func absDelta(a, b billing.Money) billing.Money {
	if a > b {
		return a - b
	}
	return b - a
}
