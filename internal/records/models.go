package records

import (
	"errors"
	"time"

	"github.com/fairytail9511-bot/eiken-mvp/internal/pronunciation"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one evaluated speaking attempt.
type Record struct {
	ID         string               `json:"id"`
	CreatedAt  time.Time            `json:"savedAt"`
	Language   string               `json:"language"`
	Transcript string               `json:"transcript"`
	Evaluation pronunciation.Result `json:"pronunciation"`
	AudioKey   string               `json:"audioKey,omitempty"`
}
