package tab

import (
	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/status"
)

// CombinedStatus summarises a whole tab for the UI.
type CombinedStatus string

const (
	// CombinedComplete: at least one batch delivered and every batch settled.
	CombinedComplete CombinedStatus = "complete"
	// CombinedCancelled: every batch cancelled or rejected, none delivered.
	CombinedCancelled CombinedStatus = "cancelled"
	// CombinedInProgress: anything still moving through the kitchen.
	CombinedInProgress CombinedStatus = "in_progress"
)

// BatchItem tags a line item with the batch it came from so the UI can group
// the combined list by kitchen ticket.
type BatchItem struct {
	BatchID string           `json:"batch_id"`
	Item    billing.LineItem `json:"item"`
}

// BillView is the reconciled bill for one tab.
type BillView struct {
	TabID           string         `json:"tab_id"`
	Subtotal        billing.Money  `json:"subtotal"`
	CouponDiscount  billing.Money  `json:"coupon_discount"`
	SpecialDiscount billing.Money  `json:"special_discount"`
	CGST            billing.Money  `json:"cgst"`
	SGST            billing.Money  `json:"sgst"`
	GrandTotal      billing.Money  `json:"grand_total"`
	Items           []BatchItem    `json:"items"`
	Status          CombinedStatus `json:"status"`
}

// AggregateBill combines the member batches of a tab into one bill. Totals
// come from the server-confirmed batch amounts; the combined status gives a
// delivered outcome priority over partial cancellations, so a guest who
// received any food sees a completed bill rather than a cancellation notice.
func AggregateBill(t Tab, batches []OrderBatch) BillView {
	view := BillView{TabID: t.ID, Status: CombinedStatus(combinedStatus(batches))}
	for _, b := range batches {
		view.Subtotal += b.Subtotal
		view.CGST += b.CGST
		view.SGST += b.SGST
		view.GrandTotal += b.GrandTotal
		for _, it := range b.Items {
			view.Items = append(view.Items, BatchItem{BatchID: b.ID, Item: it})
		}
	}
	return view
}

func combinedStatus(batches []OrderBatch) CombinedStatus {
	if len(batches) == 0 {
		return CombinedInProgress
	}
	allTerminal := true
	anyDelivered := false
	allFailed := true
	for _, b := range batches {
		if !status.IsTerminal(b.Status) {
			allTerminal = false
		}
		if b.Status == status.Delivered {
			anyDelivered = true
		}
		if !status.IsFailure(b.Status) {
			allFailed = false
		}
	}
	switch {
	case anyDelivered && allTerminal:
		return CombinedComplete
	case allFailed:
		return CombinedCancelled
	default:
		return CombinedInProgress
	}
}
