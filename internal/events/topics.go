package events

// Topics emitted by the engine.
const (
	// TopicBatchStatusChanged fires when a tracked batch's observed status
	// moves. Payload: BatchStatusChanged.
	TopicBatchStatusChanged = "batch.status_changed"
	// TopicOrderSubmitted fires after the upstream accepts an order.
	TopicOrderSubmitted = "order.submitted"
	// TopicOrderCancelled fires after the upstream confirms a cancellation.
	TopicOrderCancelled = "order.cancelled"
	// TopicTabOpened fires when a tab is opened.
	TopicTabOpened = "tab.opened"
	// TopicTabClosed fires when an empty tab is closed.
	TopicTabClosed = "tab.closed"
	// TopicTrackingStopped fires when polling for a batch ends. Payload:
	// TrackingStopped.
	TopicTrackingStopped = "batch.tracking_stopped"
)

// BatchStatusChanged is the payload for TopicBatchStatusChanged.
type BatchStatusChanged struct {
	BatchID string
	From    string
	To      string
}

// TrackingStopped is the payload for TopicTrackingStopped. Cause is one of
// terminal, ceiling, not_found or manual.
type TrackingStopped struct {
	BatchID string
	Cause   string
}
