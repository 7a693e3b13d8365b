package reconcile

import (
	"testing"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/menu"
)

func catalogWith(items ...menu.Item) menu.Catalog {
	return menu.Catalog{RestaurantID: "rest-1", Items: items}
}

func TestReconcileDetectsPortionDrift(t *testing.T) {
	cart := []billing.LineItem{{
		ItemID:       "itm-1",
		PortionName:  "Full",
		PortionPrice: 15800,
		Qty:          2,
	}}
	cat := catalogWith(menu.Item{
		ID:       "itm-1",
		Portions: []menu.Portion{{Name: "Full", Price: 16800}},
	})
	res := Reconcile(cart, cat, 0)
	if res.ChangedCount != 1 {
		t.Fatalf("changed = %d, want 1", res.ChangedCount)
	}
	if got := res.Items[0].PortionPrice; got != 16800 {
		t.Fatalf("portion price = %d, want 16800", got)
	}
	if res.Items[0].Qty != 2 {
		t.Fatalf("quantity must survive repricing")
	}
}

func TestReconcileWithinToleranceUnchanged(t *testing.T) {
	cart := []billing.LineItem{{ItemID: "itm-1", PortionName: "Full", PortionPrice: 15800, Qty: 1}}
	cat := catalogWith(menu.Item{
		ID:       "itm-1",
		Portions: []menu.Portion{{Name: "Full", Price: 15801}},
	})
	res := Reconcile(cart, cat, 0)
	if res.ChangedCount != 0 {
		t.Fatalf("a one-paisa delta must not count as drift")
	}
	if res.Items[0].PortionPrice != 15800 {
		t.Fatalf("unchanged line keeps its cached price")
	}
}

func TestReconcileMissingEntryKeepsItem(t *testing.T) {
	cart := []billing.LineItem{
		{ItemID: "gone", PortionName: "Full", PortionPrice: 9900, Qty: 1},
		{ItemID: "itm-1", PortionName: "Gone Portion", PortionPrice: 5500, Qty: 1},
	}
	cat := catalogWith(menu.Item{
		ID:       "itm-1",
		Portions: []menu.Portion{{Name: "Full", Price: 6000}},
	})
	res := Reconcile(cart, cat, 0)
	if len(res.Items) != 2 {
		t.Fatalf("no line may be dropped, got %d items", len(res.Items))
	}
	if res.ChangedCount != 0 {
		t.Fatalf("missing entries are not price changes, changed = %d", res.ChangedCount)
	}
	if res.Items[0].PortionPrice != 9900 || res.Items[1].PortionPrice != 5500 {
		t.Fatalf("missing entries must keep their cached prices: %+v", res.Items)
	}
}

func TestReconcileAddOnRepricing(t *testing.T) {
	cart := []billing.LineItem{{
		ItemID:       "itm-1",
		PortionName:  "Full",
		PortionPrice: 10000,
		AddOns: []billing.AddOn{
			{Group: "Extras", Name: "Cheese", Price: 2000, Qty: 1},
			{Group: "Extras", Name: "Vanished", Price: 900, Qty: 1},
		},
		Qty: 1,
	}}
	cat := catalogWith(menu.Item{
		ID:       "itm-1",
		Portions: []menu.Portion{{Name: "Full", Price: 10000}},
		AddOnGroups: []menu.AddOnGroup{{
			Name:   "Extras",
			AddOns: []menu.AddOn{{Name: "Cheese", Price: 2500}},
		}},
	})
	res := Reconcile(cart, cat, 0)
	if res.ChangedCount != 1 {
		t.Fatalf("changed = %d, want 1", res.ChangedCount)
	}
	got := res.Items[0]
	if got.AddOns[0].Price != 2500 {
		t.Fatalf("cheese price = %d, want 2500", got.AddOns[0].Price)
	}
	if got.AddOns[1].Price != 900 {
		t.Fatalf("vanished add-on must keep its cached price, got %d", got.AddOns[1].Price)
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	cart := []billing.LineItem{{
		ItemID:       "itm-1",
		PortionName:  "Full",
		PortionPrice: 10000,
		AddOns:       []billing.AddOn{{Name: "Cheese", Price: 2000, Qty: 1}},
		Qty:          1,
	}}
	cat := catalogWith(menu.Item{
		ID:       "itm-1",
		Portions: []menu.Portion{{Name: "Full", Price: 12000}},
		AddOns:   []menu.AddOn{{Name: "Cheese", Price: 3000}},
	})
	_ = Reconcile(cart, cat, 0)
	if cart[0].PortionPrice != 10000 || cart[0].AddOns[0].Price != 2000 {
		t.Fatalf("input cart mutated: %+v", cart[0])
	}
}
