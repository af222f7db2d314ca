package resilience

import (
	"time"

	"github.com/timewise-games/content-cli/internal/model"
)

// DLQEntry records a year whose generation pipeline failed, so a later batch
// run can retry it.
type DLQEntry struct {
	ID           string    `json:"id"`
	Year         int       `json:"year"`
	Era          model.Era `json:"era"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// CanRetry returns true if this entry is transient and hasn't exhausted its
// retry budget.
func (e *DLQEntry) CanRetry() bool {
	return e.ErrorType == "transient" && e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsRetryable(err) {
		return "transient"
	}
	return "permanent"
}
