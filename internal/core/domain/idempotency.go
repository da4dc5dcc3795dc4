package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog is the durable record of a transfer response, keyed by the
// caller-supplied reference. Replays of the same reference return the stored
// response instead of moving money again.
type IdempotencyLog struct {
	Key           string    `json:"key"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey builds the dedup key for a transfer: the reference is
// unique per source wallet owner, so the key pairs the two.
func BuildIdempotencyKey(fromOwnerID uuid.UUID, reference string) string {
	return fmt.Sprintf("%s:%s", fromOwnerID, reference)
}
