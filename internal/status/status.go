package status

import "strings"

// Status is the lifecycle state of one order batch as reported by the kitchen
// upstream. The engine never invents a transition locally; every status it
// holds was observed from a fetch response.
type Status string

const (
	Pending        Status = "pending"
	Confirmed      Status = "confirmed"
	Preparing      Status = "preparing"
	ReadyForPickup Status = "ready_for_pickup"
	Ready          Status = "ready"
	Delivered      Status = "delivered"
	Rejected       Status = "rejected"
	Cancelled      Status = "cancelled"
)

// Flow selects which status ladder a batch follows.
type Flow string

const (
	// FlowDineIn is the full ladder: pending, confirmed, preparing,
	// ready_for_pickup, delivered.
	FlowDineIn Flow = "dine_in"
	// FlowPreOrder collapses to confirmed, ready, delivered.
	FlowPreOrder Flow = "pre_order"
)

var dineInSteps = map[Status]int{
	Pending:        0,
	Confirmed:      1,
	Preparing:      2,
	ReadyForPickup: 3,
	Delivered:      4,
}

var preOrderSteps = map[Status]int{
	Confirmed: 0,
	Ready:     1,
	Delivered: 2,
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	return s == Delivered || s == Rejected || s == Cancelled
}

// IsFailure reports whether the status is a terminal failure.
func IsFailure(s Status) bool {
	return s == Rejected || s == Cancelled
}

// CanUserCancel reports whether the customer may still request cancellation.
// Once preparation begins the kitchen has committed ingredients, so
// cancellation is refused from preparing onwards.
func CanUserCancel(s Status) bool {
	return s == Pending || s == Confirmed
}

// Step returns the progress-bar ordinal for the status within the flow, or -1
// for terminal failures and statuses outside the flow.
func Step(s Status, f Flow) int {
	steps := dineInSteps
	if f == FlowPreOrder {
		steps = preOrderSteps
	}
	if step, ok := steps[s]; ok {
		return step
	}
	return -1
}

// Newer reports whether next may replace prev: forward moves and terminal
// failures are accepted, backward moves and transitions out of a terminal
// state are not. Used to discard stale fetch responses.
func Newer(prev, next Status, f Flow) bool {
	if prev == "" {
		return true
	}
	if IsTerminal(prev) {
		return false
	}
	if IsFailure(next) {
		return true
	}
	return Step(next, f) >= Step(prev, f)
}

// Parse normalises an upstream status label. Unknown labels map to pending so
// a new batch shows the earliest step rather than an error.
func Parse(label string) Status {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending", "placed", "received":
		return Pending
	case "confirmed", "accepted":
		return Confirmed
	case "preparing", "cooking", "in_kitchen":
		return Preparing
	case "ready_for_pickup", "ready-for-pickup", "ready_for_delivery":
		return ReadyForPickup
	case "ready":
		return Ready
	case "delivered", "completed", "served":
		return Delivered
	case "rejected", "declined":
		return Rejected
	case "cancelled", "canceled":
		return Cancelled
	}
	return Pending
}

// DisplayStatus is the timeline rendering contract exposed to the UI layer.
type DisplayStatus struct {
	Label        string `json:"label"`
	ProgressStep int    `json:"progress_step"`
	IsError      bool   `json:"is_error"`
}

var labels = map[Status]string{
	Pending:        "Order placed",
	Confirmed:      "Confirmed",
	Preparing:      "Preparing",
	ReadyForPickup: "Ready for pickup",
	Ready:          "Ready",
	Delivered:      "Delivered",
	Rejected:       "Rejected",
	Cancelled:      "Cancelled",
}

// Display maps a status onto its UI representation for the given flow.
func Display(s Status, f Flow) DisplayStatus {
	label, ok := labels[s]
	if !ok {
		label = labels[Pending]
	}
	return DisplayStatus{
		Label:        label,
		ProgressStep: Step(s, f),
		IsError:      IsFailure(s),
	}
}
