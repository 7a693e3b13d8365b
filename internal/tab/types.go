package tab

import (
	"time"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/status"
)

// OrderBatch is one submitted kitchen ticket with its lifecycle state and the
// last server-confirmed totals.
type OrderBatch struct {
	ID           string             `json:"id"`
	RestaurantID string             `json:"restaurant_id"`
	TableID      string             `json:"table_id,omitempty"`
	TabID        string             `json:"tab_id,omitempty"`
	Items        []billing.LineItem `json:"items"`
	Subtotal     billing.Money      `json:"subtotal"`
	CGST         billing.Money      `json:"cgst"`
	SGST         billing.Money      `json:"sgst"`
	GrandTotal   billing.Money      `json:"grand_total"`
	Status       status.Status      `json:"status"`
	Flow         status.Flow        `json:"flow"`
	Reason       string             `json:"reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Tab is a running dine-in bill accumulating zero or more batches.
type Tab struct {
	ID        string    `json:"id"`
	TableID   string    `json:"table_id"`
	Name      string    `json:"name"`
	Pax       int       `json:"pax"`
	BatchIDs  []string  `json:"batch_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Empty reports whether the tab has no member batches. Only empty tabs are
// closable.
func (t Tab) Empty() bool { return len(t.BatchIDs) == 0 }

// Table is a physical table with its active tabs and any order groups not yet
// attached to a tab.
type Table struct {
	ID            string   `json:"id"`
	Capacity      int      `json:"capacity"`
	Occupied      int      `json:"occupied"`
	TabIDs        []string `json:"tab_ids"`
	PendingGroups []string `json:"pending_groups,omitempty"`
}

// Selection identifies the active billing target for a table: either a tab or
// an ungrouped pending order group.
type Selection struct {
	TabID   string `json:"tab_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}
