package queue

import (
	"time"

	"github.com/hibiken/asynq"
)

// retryBackoffBase is the delay before the first retry; each further retry
// doubles it.
const retryBackoffBase = 5 * time.Second

// backoffDelay returns the delay before retry number attempt (1-based):
// base * 2^(attempt-1). Delays are strictly increasing.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return retryBackoffBase * time.Duration(1<<uint(attempt-1))
}

// RetryDelay adapts backoffDelay to asynq's RetryDelayFunc. asynq passes
// the number of completed retries, so the upcoming retry is n+1.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return backoffDelay(n + 1)
}
