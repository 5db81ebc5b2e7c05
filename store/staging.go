package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrStagingRejected reports an adjustment that would leave the staged
// count outside [0, quantity], or targets an item without a quantity.
// It is a normal outcome, not a store failure; the row is untouched.
var ErrStagingRejected = errors.New("staging change rejected")

// AdjustStaged moves an item's staged count by delta. The bound check
// lives in the WHERE clause so it is re-derived at write time inside
// the store; concurrent adjusters on the same row serialize there
// instead of racing a read-modify-write in the application.
func (db *DB) AdjustStaged(id int64, delta int64) (int64, error) {
	var staged int64
	err := db.QueryRow(db.Q(`
		UPDATE inventory
		SET staged = COALESCE(staged, 0) + ?
		WHERE id = ?
		  AND quantity IS NOT NULL
		  AND COALESCE(staged, 0) + ? >= 0
		  AND COALESCE(staged, 0) + ? <= quantity
		RETURNING staged`),
		delta, id, delta, delta).Scan(&staged)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStagingRejected
	}
	if err != nil {
		return 0, fmt.Errorf("adjust staged: %w", err)
	}
	return staged, nil
}

// CommitReceipt describes one staging commit batch. It is also the
// outbox payload published for external catalog tooling.
type CommitReceipt struct {
	BatchID     string    `json:"batch_id"`
	Items       int64     `json:"items"`
	CommittedAt time.Time `json:"committed_at"`
}

// CommitStaged converts every valid staged reservation into a quantity
// deduction in one set-based statement: rows with a nonzero staged
// count no greater than their quantity lose that much stock and drop
// back to staged NULL, all others stay untouched. The receipt counts
// only those rows, so a staged count of zero never inflates it. The notification row for
// notifyTopic rides in the same transaction, so a published commit is
// always a committed commit. Pass "" to skip the notification.
func (db *DB) CommitStaged(notifyTopic string) (*CommitReceipt, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("commit staged: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(db.Q(`
		UPDATE inventory
		SET quantity = quantity - staged, staged = NULL
		WHERE staged IS NOT NULL
		  AND staged <> 0
		  AND quantity IS NOT NULL
		  AND staged <= quantity`))
	if err != nil {
		return nil, fmt.Errorf("commit staged: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("commit staged rows: %w", err)
	}

	receipt := &CommitReceipt{
		BatchID:     uuid.NewString(),
		Items:       n,
		CommittedAt: time.Now(),
	}

	if notifyTopic != "" {
		payload, err := json.Marshal(receipt)
		if err != nil {
			return nil, fmt.Errorf("commit staged payload: %w", err)
		}
		if _, err := tx.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type) VALUES (?, ?, ?)`),
			notifyTopic, payload, "staging-committed"); err != nil {
			return nil, fmt.Errorf("commit staged outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit staged: %w", err)
	}
	return receipt, nil
}
