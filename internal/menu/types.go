package menu

import (
	"time"

	"github.com/anvay/backend-dinetab/internal/billing"
)

// AddOn is one purchasable extra with its current listed price.
type AddOn struct {
	Name  string        `json:"name"`
	Price billing.Money `json:"price"`
}

// AddOnGroup collects related add-ons under an item.
type AddOnGroup struct {
	Name   string  `json:"name"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	AddOns []AddOn `json:"add_ons"`
}

// Portion is a sellable size of an item with its own price.
type Portion struct {
	Name  string        `json:"name"`
	Price billing.Money `json:"price"`
}

// Item is one catalog entry. Flat add-ons apply when an add-on is not part of
// any group.
type Item struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    string       `json:"category,omitempty"`
	Portions    []Portion    `json:"portions"`
	AddOnGroups []AddOnGroup `json:"add_on_groups,omitempty"`
	AddOns      []AddOn      `json:"add_ons,omitempty"`
	Available   bool         `json:"available"`
}

// Catalog is the live menu snapshot for one restaurant.
type Catalog struct {
	RestaurantID string    `json:"restaurant_id"`
	Items        []Item    `json:"items"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Item looks up a catalog entry by id.
func (c Catalog) Item(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Portion looks up a portion by name.
func (i Item) Portion(name string) (Portion, bool) {
	for _, p := range i.Portions {
		if p.Name == name {
			return p, true
		}
	}
	return Portion{}, false
}

// AddOnPrice resolves the current price of an add-on, preferring the named
// group and falling back to the item's flat add-ons.
func (i Item) AddOnPrice(group, name string) (billing.Money, bool) {
	for _, g := range i.AddOnGroups {
		if group != "" && g.Name != group {
			continue
		}
		for _, a := range g.AddOns {
			if a.Name == name {
				return a.Price, true
			}
		}
	}
	for _, a := range i.AddOns {
		if a.Name == name {
			return a.Price, true
		}
	}
	return 0, false
}
