package backend

import (
	"context"

	"github.com/rs/zerolog"
)

// ReplayResult summarizes one replay pass over the failure queue.
type ReplayResult struct {
	Delivered int
	Remaining int
}

// Replay re-attempts every queued entry. Successes are removed from the
// queue; failures stay with an incremented attempt count. Cancellation keeps
// the untried tail untouched. The queue file is rewritten once at the end.
func Replay(ctx context.Context, q *Queue, client *Client, logger *zerolog.Logger) (ReplayResult, error) {
	entries, err := q.Entries()
	if err != nil {
		return ReplayResult{}, err
	}

	var remaining []QueueEntry

	for i, entry := range entries {
		if ctx.Err() != nil {
			remaining = append(remaining, entries[i:]...)

			break
		}

		if err := client.Deliver(ctx, &entry.Record); err != nil {
			logger.Warn().Err(err).
				Str("unique_id", entry.Record.UniqueID).
				Int("attempts", entry.AttemptCount).
				Msg("replay attempt failed")

			entry.AttemptCount++
			remaining = append(remaining, entry)

			continue
		}

		logger.Info().Str("unique_id", entry.Record.UniqueID).Msg("replayed from failure queue")
	}

	if err := q.Rewrite(remaining); err != nil {
		return ReplayResult{}, err
	}

	return ReplayResult{
		Delivered: len(entries) - len(remaining),
		Remaining: len(remaining),
	}, nil
}
