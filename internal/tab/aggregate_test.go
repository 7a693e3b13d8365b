package tab

import (
	"testing"

	"github.com/anvay/backend-dinetab/internal/billing"
	"github.com/anvay/backend-dinetab/internal/status"
)

func batchWith(id string, s status.Status, grand billing.Money) OrderBatch {
	return OrderBatch{
		ID:         id,
		Status:     s,
		Subtotal:   grand,
		GrandTotal: grand,
		Items:      []billing.LineItem{{ItemID: "itm-" + id, PortionPrice: grand, Qty: 1}},
	}
}

func TestAggregatePriorityDeliveredBeatsCancelled(t *testing.T) {
	view := AggregateBill(Tab{ID: "t1"}, []OrderBatch{
		batchWith("a", status.Delivered, 10000),
		batchWith("b", status.Cancelled, 5000),
	})
	if view.Status != CombinedComplete {
		t.Fatalf("combined status = %s, want complete", view.Status)
	}
}

func TestAggregateAllFailedIsCancelled(t *testing.T) {
	view := AggregateBill(Tab{ID: "t1"}, []OrderBatch{
		batchWith("a", status.Cancelled, 10000),
		batchWith("b", status.Rejected, 5000),
	})
	if view.Status != CombinedCancelled {
		t.Fatalf("combined status = %s, want cancelled", view.Status)
	}
}

func TestAggregateMixedActiveIsInProgress(t *testing.T) {
	view := AggregateBill(Tab{ID: "t1"}, []OrderBatch{
		batchWith("a", status.Pending, 10000),
		batchWith("b", status.Delivered, 5000),
	})
	if view.Status != CombinedInProgress {
		t.Fatalf("combined status = %s, want in_progress", view.Status)
	}
}

func TestAggregateTotalsAndItemOrigin(t *testing.T) {
	view := AggregateBill(Tab{ID: "t1"}, []OrderBatch{
		batchWith("a", status.Delivered, 10000),
		batchWith("b", status.Delivered, 5000),
	})
	if view.GrandTotal != 15000 {
		t.Fatalf("grand total = %d, want 15000", view.GrandTotal)
	}
	if len(view.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(view.Items))
	}
	if view.Items[0].BatchID != "a" || view.Items[1].BatchID != "b" {
		t.Fatalf("items must preserve batch origin: %+v", view.Items)
	}
}

func TestAggregateEmptyTab(t *testing.T) {
	view := AggregateBill(Tab{ID: "t1"}, nil)
	if view.GrandTotal != 0 || view.Status != CombinedInProgress {
		t.Fatalf("unexpected empty bill: %+v", view)
	}
}
