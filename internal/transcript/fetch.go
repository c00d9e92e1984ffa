package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// Source is the conversation store the fetcher polls. Satisfied by
// *room.Client.
type Source interface {
	FetchLog(ctx context.Context, conversationID string) (entries []model.RawTranscriptEntry, ready bool, err error)
}

// Fetcher polls a conversation store until its transcript is ready or a
// bounded number of attempts is exhausted.
type Fetcher struct {
	source   Source
	interval time.Duration
	attempts int
}

// NewFetcher creates a fetcher. interval and attempts fall back to the
// defaults of 1s and 30 when zero.
func NewFetcher(source Source, interval time.Duration, attempts int) *Fetcher {
	if interval <= 0 {
		interval = time.Second
	}
	if attempts <= 0 {
		attempts = 30
	}
	return &Fetcher{source: source, interval: interval, attempts: attempts}
}

// Fetch polls until the transcript is ready, then normalizes it. It stops
// immediately when ctx is cancelled and returns ErrTranscriptUnavailable
// after exhausting all attempts. Transient fetch errors count as attempts
// rather than aborting the poll.
func (f *Fetcher) Fetch(ctx context.Context, conversationID string) ([]model.TranscriptEntry, error) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= f.attempts; attempt++ {
		raw, ready, err := f.source.FetchLog(ctx, conversationID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("transcript poll failed", "conversation_id", conversationID, "attempt", attempt, "error", err)
		} else if ready {
			return Normalize(raw)
		}
		if attempt == f.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("conversation %s after %d attempts: %w", conversationID, f.attempts, model.ErrTranscriptUnavailable)
}
