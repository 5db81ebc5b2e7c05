package bus

const (
	EventStagedAdjusted EventType = iota + 1
	EventStagingCommitted
	EventStagingRejected
)

// --- Event payloads ---

// StagedAdjustedEvent fires after a successful stage/unstage on one
// item. Staged carries the post-adjustment value.
type StagedAdjustedEvent struct {
	ItemID int64 `json:"item_id"`
	Delta  int64 `json:"delta"`
	Staged int64 `json:"staged"`
}

// StagingCommittedEvent fires after a commit batch; Items counts the
// rows whose reservations became deductions.
type StagingCommittedEvent struct {
	BatchID string `json:"batch_id"`
	Items   int64  `json:"items"`
}

// StagingRejectedEvent fires when an adjustment hit the [0, quantity]
// bound. Informational; the row did not change.
type StagingRejectedEvent struct {
	ItemID int64 `json:"item_id"`
	Delta  int64 `json:"delta"`
}
