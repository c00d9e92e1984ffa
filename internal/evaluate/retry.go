package evaluate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// Oracle is what WithRetry drives. Satisfied by *Engine.
type Oracle interface {
	Evaluate(ctx context.Context, entries []model.TranscriptEntry, courseTopic, moduleSummary string) (*model.EvaluationResult, error)
}

// WithRetry calls the oracle, retrying provider failures up to maxRetries
// times with doubling backoff. Validation errors are returned immediately:
// a contract mismatch does not get better by asking again.
func WithRetry(ctx context.Context, oracle Oracle, entries []model.TranscriptEntry, courseTopic, moduleSummary string, maxRetries int, backoff time.Duration) (*model.EvaluationResult, error) {
	if backoff <= 0 {
		backoff = time.Second
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying evaluation", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		result, err := oracle.Evaluate(ctx, entries, courseTopic, moduleSummary)
		if err == nil {
			return result, nil
		}
		var provErr *model.ProviderError
		if !errors.As(err, &provErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
